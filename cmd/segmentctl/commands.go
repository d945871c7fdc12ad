package main

import (
	"fmt"
	"strings"

	"segmentation_backend/internal/segmentation/service"
	"segmentation_backend/platform/db"

	"github.com/spf13/cobra"
)

// NewSyncCommand runs one batch sync in the foreground and prints its report.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one batch segment sync now",
		Long: `Run both batch passes (purchases, then inactive) once and print the
run report as JSON. The command exits non-zero when the run could not
complete; per-user failures are listed in the report.

Example:
  segmentctl sync
  segmentctl sync --failed-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.close()

			report, runErr := rt.module.Orchestrator().Run(cmd.Context(), service.TriggerCLI)
			if failedOnly {
				report.Results = report.FailedResults()
			}
			if report.RunID != "" {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			}
			if runErr != nil {
				return fmt.Errorf("segment sync failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed-only", false, "print only failed user results")

	return cmd
}

// NewCheckClicksCommand evaluates the click rules for one user.
func NewCheckClicksCommand(opts *RootOptions) *cobra.Command {
	var userID, category string

	cmd := &cobra.Command{
		Use:   "check-clicks",
		Short: "Evaluate click rules for one user",
		Long: `Evaluate the category click and engagement rules for one user, assigning
CRM segments when a rule fires.

Example:
  segmentctl check-clicks --user u-123 --category Travel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.module.Service().CheckClicks(cmd.Context(), service.CheckClicksInput{
				UserID:         userID,
				PolicyCategory: category,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&category, "category", "", "policy category (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

// NewActiveProfilesCommand prints profile counts per email.
func NewActiveProfilesCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "active-profiles",
		Short: "List emails by number of profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.close()

			activity, err := rt.module.Service().ActiveProfiles(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(activity) > limit {
				activity = activity[:limit]
			}
			return writeJSON(cmd.OutOrStdout(), activity)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of emails to print (0 prints all)")

	return cmd
}

// NewRunCommand prints a stored batch run.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "run <run-id>",
		Short: "Show a stored batch run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.close()

			report, err := rt.module.Service().GetRun(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if failedOnly {
				report.Results = report.FailedResults()
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed-only", false, "print only failed user results")

	return cmd
}

// NewMigrateCommand applies pending database migrations.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			if err := db.RunMigrations(cmd.Context(), cfg, dir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			log.Info("database migrations complete", "dir", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")

	return cmd
}
