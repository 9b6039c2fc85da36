package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulnkb/vulnkb/ingest"
	"github.com/vulnkb/vulnkb/ingest/cvefeed"
)

var batchCmd = &cobra.Command{
	Use:   "ingest-batch",
	Short: "Ingest CVE records from a local NDJSON file or a feed repository",
	RunE:  runIngestBatch,
}

var batchFlags = struct {
	input       string
	repo        string
	repoPath    string
	incremental bool
	batchSize   int
	progress    bool
}{}

func runIngestBatch(cmd *cobra.Command, args []string) error {
	defer closeDB(App().DB)

	if batchFlags.input == "" && batchFlags.repo == "" {
		return fmt.Errorf("either --input or --repo is required")
	}

	var src ingest.RecordSource
	if batchFlags.repo != "" {
		src = cvefeed.Source{Remote: batchFlags.repo, Path: batchFlags.repoPath}
	} else {
		src = ingest.FileSource{Path: batchFlags.input}
	}

	embedder := &ingest.EmbeddingClient{
		Endpoint:       App().Config.Embedding.Endpoint,
		APIKey:         App().Config.Embedding.APIKey,
		Model:          App().Config.Embedding.Model,
		TokenBudget:    App().Config.Embedding.TokenBudget,
		FallbackTokens: App().Config.Embedding.FallbackTokens,
	}

	stats, err := ingest.IngestBatch(
		context.Background(),
		App().DB,
		embedder,
		App().Config,
		src,
		ingest.BatchOptions{
			Incremental: batchFlags.incremental,
			BatchSize:   batchFlags.batchSize,
			Progress:    batchFlags.progress,
		},
	)

	fmt.Print(stats.Summary())
	if err != nil {
		return err
	}
	if stats.Errors > 0 {
		return fmt.Errorf("run completed with %d item errors", stats.Errors)
	}
	return nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFlags.input, "input", "", "Path to a newline-delimited JSON record file")
	batchCmd.Flags().StringVar(&batchFlags.repo, "repo", "", "URL of a git repository holding record files")
	batchCmd.Flags().StringVar(&batchFlags.repoPath, "repo-path", "cvefeed.git", "Local mirror directory for --repo")
	batchCmd.Flags().BoolVar(&batchFlags.incremental, "incremental", false, "Overwrite records whose CVE id already exists")
	batchCmd.Flags().IntVar(&batchFlags.batchSize, "batch-size", 0, "Records per batch (default from config)")
	batchCmd.Flags().BoolVar(&batchFlags.progress, "progress", false, "Show a progress bar per batch")
	rootCmd.AddCommand(batchCmd)
}
