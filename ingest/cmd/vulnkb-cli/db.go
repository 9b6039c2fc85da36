package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulnkb/vulnkb/vulnkb"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Commands to work with the database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runDBMigrate,
}

var dbResetCheckpointCmd = &cobra.Command{
	Use:   "reset-checkpoint <source>",
	Short: "Rewind an ingestion checkpoint to page 1 and zero its totals",
	RunE:  runDBResetCheckpoint,
}

var checkpointFlags = struct {
	ecosystem string
	severity  string
	dryRun    bool
}{}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	defer closeDB(App().DB)

	return App().DB.AutoMigrate(
		&vulnkb.Vulnerability{},
		&vulnkb.CodeExample{},
		&vulnkb.CweCveMapping{},
		&vulnkb.IngestionCheckpoint{},
	)
}

func runDBResetCheckpoint(cmd *cobra.Command, args []string) error {
	defer closeDB(App().DB)

	if len(args) < 1 {
		return cmd.Usage()
	}
	source := args[0]

	checkpoints := vulnkb.CheckpointStore{DB: App().DB}
	checkpoint, err := checkpoints.Get(source, checkpointFlags.ecosystem, checkpointFlags.severity)
	if err != nil {
		return err
	}

	fmt.Printf(
		"Checkpoint for %s: next_page=%d fetched=%d inserted=%d exhausted=%t\n",
		source,
		checkpoint.NextPage,
		checkpoint.TotalFetched,
		checkpoint.TotalInserted,
		checkpoint.Exhausted,
	)

	if checkpointFlags.dryRun {
		return nil
	}

	fmt.Printf("Resetting checkpoint for %s\n", source)
	return checkpoints.Reset(source, checkpointFlags.ecosystem, checkpointFlags.severity)
}

func init() {
	dbResetCheckpointCmd.Flags().StringVar(&checkpointFlags.ecosystem, "ecosystem", "", "Ecosystem filter of the checkpoint key")
	dbResetCheckpointCmd.Flags().StringVar(&checkpointFlags.severity, "severity", "", "Severity filter of the checkpoint key")
	dbResetCheckpointCmd.Flags().BoolVarP(&checkpointFlags.dryRun, "dry-run", "n", false, "Only show the checkpoint, do not reset it")

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCheckpointCmd)
	rootCmd.AddCommand(dbCmd)
}
