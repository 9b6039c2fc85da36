package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulnkb/vulnkb/ingest"
)

var remoteCmd = &cobra.Command{
	Use:   "ingest-remote",
	Short: "Ingest advisories from the remote API, resuming at the checkpoint",
	RunE:  runIngestRemote,
}

var remoteFlags = struct {
	maxPages  int
	ecosystem string
	severity  string
	reset     bool
}{}

func runIngestRemote(cmd *cobra.Command, args []string) error {
	defer closeDB(App().DB)

	api := &ingest.APIClient{
		Endpoint: App().Config.AdvisoryAPI.Endpoint,
		Token:    App().Config.AdvisoryAPI.Token,
	}
	embedder := &ingest.EmbeddingClient{
		Endpoint:       App().Config.Embedding.Endpoint,
		APIKey:         App().Config.Embedding.APIKey,
		Model:          App().Config.Embedding.Model,
		TokenBudget:    App().Config.Embedding.TokenBudget,
		FallbackTokens: App().Config.Embedding.FallbackTokens,
	}

	stats, err := ingest.IngestRemote(
		context.Background(),
		App().DB,
		api,
		embedder,
		App().Config,
		ingest.RemoteOptions{
			Ecosystem: remoteFlags.ecosystem,
			Severity:  remoteFlags.severity,
			MaxPages:  remoteFlags.maxPages,
			Reset:     remoteFlags.reset,
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
	remoteCmd.Flags().IntVar(&remoteFlags.maxPages, "max-pages", 0, "Maximum pages to process this invocation (0 = until exhausted)")
	remoteCmd.Flags().StringVar(&remoteFlags.ecosystem, "ecosystem", "", "Only ingest advisories for this package ecosystem")
	remoteCmd.Flags().StringVar(&remoteFlags.severity, "severity", "", "Only ingest advisories with this severity")
	remoteCmd.Flags().BoolVar(&remoteFlags.reset, "reset", false, "Rewind the checkpoint to page 1 before the run")
	rootCmd.AddCommand(remoteCmd)
}
