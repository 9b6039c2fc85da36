package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/vulnkb/vulnkb/vulnkb"
)

var rootCmd = &cobra.Command{
	Use:   "vulnkb-cli",
	Short: "Ingest vulnerability advisories into the knowledge store",
}

var configPath string

var _app app

type app struct {
	DB     *gorm.DB
	Config vulnkb.Config
}

func App() app {
	return _app
}

func main() {
	err := run()
	if err != nil {
		fmt.Printf("FATAL: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cobra.OnInitialize(func() {
		var err error
		_app, err = initApp()
		if err != nil {
			fmt.Printf("FATAL: %s\n", err)
			os.Exit(1)
		}
	})

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	err := rootCmd.Execute()
	if err != nil {
		return err
	}
	return nil
}

func initApp() (app, error) {
	var app app
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	config, err := vulnkb.ParseConfigFromFile(configPath)
	if err != nil {
		return app, fmt.Errorf("error reading %q: %w", configPath, err)
	}
	app.Config = config

	db, err := gorm.Open(sqlite.Open(config.DBPath), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return app, fmt.Errorf("could not open %s: %w", config.DBPath, err)
	}
	app.DB = db

	return app, nil
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/vulnkb.toml", "Path to the configuration file")
}
