// Package main is the entry point of the dogbot command.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgard/dogbot/internal/bot/tasks"
	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/logger"

	_ "modernc.org/sqlite"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx, os.Args[1:])
	stop()
	os.Exit(exitCode)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("Command failed", "error", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dogbot",
		Short:         "Telegram group chat bot that summarizes and answers conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bot (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migrateDB(configPath)
			},
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Delete history older than the retention windows and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return purge(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// setup loads the configuration and installs the default logger.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON, "version", version)
	return cfg, log, nil
}

func migrateDB(configPath string) error {
	cfg, _, err := setup(configPath)
	if err != nil {
		return err
	}
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	database.CloseDB(db)
	return nil
}

func purge(ctx context.Context, configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.CloseDB(db)

	res, err := tasks.RunPurge(ctx, tasks.TaskDeps{
		Logger: log,
		Store:  database.NewStore(db, log),
		Config: cfg,
	})
	if err != nil {
		return err
	}
	log.Info("Purge finished", "deleted_messages", res.Messages, "deleted_summaries", res.Summaries)
	return nil
}
