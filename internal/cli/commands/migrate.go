package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/metricsd/internal/cli/ui"
	"github.com/conduit-lang/metricsd/internal/indexer"
	"github.com/conduit-lang/metricsd/internal/orm/migrate"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the tables metricsd owns in the primary database",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), opts, func(ctx context.Context, r *migrate.Runner) error {
				n, err := r.MigrateUp(ctx, indexer.Migrations())
				if err != nil {
					return err
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Applied %d migration(s)", n), opts.noColor)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), opts, func(ctx context.Context, r *migrate.Runner) error {
				m, err := r.MigrateDown(ctx, indexer.Migrations())
				if errors.Is(err, migrate.ErrNothingToRollback) {
					fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("No migrations to roll back", opts.noColor))
					return nil
				}
				if err != nil {
					return err
				}
				ui.WriteSuccess(cmd.OutOrStdout(), "Rolled back "+m.Name, opts.noColor)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), opts, func(ctx context.Context, r *migrate.Runner) error {
				status, err := r.Status(ctx, indexer.Migrations())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				table := ui.NewTable(out, []string{"VERSION", "NAME", "APPLIED"}, opts.noColor)
				for _, m := range status.Applied {
					table.AddRow(strconv.FormatInt(m.Version, 10), m.Name, m.AppliedAt.UTC().Format("2006-01-02 15:04:05"))
				}
				for _, m := range status.Pending {
					table.AddRow(strconv.FormatInt(m.Version, 10), m.Name, "pending")
				}
				table.Render()
				fmt.Fprintln(out, status.Summary())
				return nil
			})
		},
	})
	return cmd
}

func withRunner(ctx context.Context, opts *rootOptions, fn func(ctx context.Context, r *migrate.Runner) error) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := openDB(cfg.Database.Driver, cfg.Database.URL, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := migrate.NewRunner(db, migrate.Dialect(cfg.Database.Driver), logger)
	if err := runner.Initialize(ctx); err != nil {
		return err
	}
	return fn(ctx, runner)
}
