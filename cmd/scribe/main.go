package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "scribe",
		Short:         "lecture retrieval-augmented chat service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	root.AddCommand(newServeCommand(), newBackfillCommand(), newMigrateCommand())

	if err := root.Execute(); err != nil {
		slog.Error("scribe failed", "error", err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and transcript consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func newBackfillCommand() *cobra.Command {
	var (
		classID string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "embed chunks of a class that have no vector yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(classID)
			if err != nil {
				return fmt.Errorf("invalid --class: %w", err)
			}

			cfg := loadConfig()
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if limit <= 0 {
				limit = cfg.Tuning.BackfillLimit
			}
			res, err := app.indexer.Backfill(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&classID, "class", "", "class id to backfill")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum chunks to embed (default BACKFILL_LIMIT)")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			db, err := store.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			slog.Info("schema applied")
			return nil
		},
	}
}

func loadConfig() config.Config {
	cfg := config.Load()
	setupLogging(cfg.LogLevel, cfg.LogFile)
	return cfg
}

func setupLogging(level, file string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var writer io.Writer = os.Stdout
	if file != "" {
		writer = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
