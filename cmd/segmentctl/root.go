package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"segmentation_backend/internal/scheduler"
	"segmentation_backend/internal/segmentation"
	"segmentation_backend/internal/segmentation/service"
	"segmentation_backend/platform/config"
	"segmentation_backend/platform/db"
	"segmentation_backend/platform/logger"
	"segmentation_backend/platform/validator"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the segmentctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "segmentctl",
		Short:         "Segmentation operations",
		Long:          "Run batch segment syncs, evaluate click rules and inspect stored sync runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging on stderr")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCheckClicksCommand(opts))
	cmd.AddCommand(NewActiveProfilesCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// session is the wiring shared by commands that touch the segmentation module.
type session struct {
	module *segmentation.Module
	close  func()
}

func loadConfig(opts *RootOptions) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	env := cfg.Env
	if opts.Verbose {
		env = "development"
	}
	return cfg, logger.NewWithWriter(env, os.Stderr), nil
}

func newSession(ctx context.Context, opts *RootOptions) (*session, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	closers := []func(){pool.Close}

	// Share the scheduler's lock so a CLI run never overlaps a scheduled one.
	var lock service.RunLock
	if cfg.GetRedisURL() != "" {
		redisLock, err := scheduler.NewRedisLock(cfg, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("initialize sync lock: %w", err)
		}
		lock = redisLock
		closers = append(closers, func() { _ = redisLock.Close() })
	}

	module := segmentation.NewModule(pool, cfg, nil, "", lock, validator.New(), log)

	return &session{
		module: module,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func writeJSON(w io.Writer, value interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
