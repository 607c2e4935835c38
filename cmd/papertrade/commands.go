package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and seed feature switches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(true)
			if err != nil {
				return err
			}
			defer a.close()
			if a.db == nil {
				return errors.New("migrate needs store.driver=postgres")
			}
			if err := a.settings.EnsureDefaults(cmd.Context()); err != nil {
				return errors.Wrap(err, "seed feature switches")
			}
			a.logger.Info("migration complete")
			return nil
		},
	}
}

func provisionCmd() *cobra.Command {
	var owner uint64
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the paper wallets of an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == 0 {
				return errors.New("--owner is required")
			}
			a, err := loadApp(false)
			if err != nil {
				return err
			}
			defer a.close()
			wallets, err := a.ledger.Provision(cmd.Context(), owner)
			if err != nil {
				return err
			}
			for _, w := range wallets {
				cmd.Printf("%-8s %s\n", w.Product, w.Balance.StringFixed(2))
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&owner, "owner", 0, "owner id")
	return cmd
}

func sweepCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a risk sweep over every open position",
		Long:  "Runs one sweep and exits, or with --interval keeps sweeping until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(false)
			if err != nil {
				return err
			}
			defer a.close()
			if interval > 0 {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				a.logger.Info("sweeping", zap.Duration("interval", interval))
				if err := a.monitor.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			res, err := a.monitor.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("sweep done",
				zap.Int("checked", res.Checked),
				zap.Int("liquidated", res.Liquidated),
				zap.Int("failed", res.Failed),
				zap.Bool("skipped", res.Skipped),
			)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "keep sweeping at this interval")
	return cmd
}
