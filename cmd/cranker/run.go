package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nft-rental-escrow/internal/app"
	"nft-rental-escrow/internal/config"
	"nft-rental-escrow/internal/jobs"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/scheduler"
	"nft-rental-escrow/internal/security"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the crank jobs on their cron schedules until interrupted",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner, closeApp, err := newRunner(ctx)
		cobra.CheckErr(err)
		defer closeApp()

		sched, err := scheduler.NewScheduler(runner)
		cobra.CheckErr(err)
		sched.Start()

		<-ctx.Done()
		logger.Info("Received shutdown signal")
		sched.Stop()
	},
}

var onceCmd = &cobra.Command{
	Use:       "once <crank|sweep|prune|all>",
	Short:     "Run one job immediately and exit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"crank", "sweep", "prune", "all"},
	Run: func(cmd *cobra.Command, args []string) {
		runner, closeApp, err := newRunner(cmd.Context())
		cobra.CheckErr(err)
		defer closeApp()

		if !runner.Run(args[0]) {
			cobra.CheckErr(fmt.Errorf("unknown job %q", args[0]))
		}
	},
}

// newRunner wires a job runner acting as the cranker identity in the key file.
func newRunner(ctx context.Context) (*jobs.JobRunner, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting cranker...", "log_level", cfg.Log.Level)

	signer, err := security.LoadSigner(cfg.Cranker.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load cranker key: %w", err)
	}
	logger.Info("Cranker identity", "address", signer.Address().String())

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	runner := jobs.NewJobRunner(&jobs.Services{
		Ledger:  a.Submitter,
		Bridge:  a.Bridge,
		Queue:   a.Queue,
		Rentals: a.Store.Rentals(),
	}, signer, a.Metrics, cfg)
	return runner, a.Close, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
}
