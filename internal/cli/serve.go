package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	appLog "calsync/internal/log"
	"calsync/internal/scheduler"
	"calsync/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the refresh scheduler and the JSON API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// listenOverride is a flag for the serve command.
var listenOverride string

func init() {
	serveCmd.Flags().StringVar(&listenOverride, "listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := loadApp()
	if err != nil {
		return err
	}
	if listenOverride != "" {
		a.cfg.Listen = listenOverride
	}

	if err := a.loadCollections(ctx); err != nil {
		return err
	}

	sched, err := scheduler.New(
		a.cfg.RefreshCron,
		a.cfg.Location(),
		scheduler.Window{
			Backfill: time.Duration(a.cfg.BackfillDays) * 24 * time.Hour,
			Horizon:  time.Duration(a.cfg.HorizonDays) * 24 * time.Hour,
		},
		a.cfg.RequestTimeout()*4,
		a.engine,
	)
	if err != nil {
		return err
	}

	// First refresh before serving; a failure here is not fatal, the next
	// tick retries.
	if err := sched.RunOnce(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	return web.NewServer(a.cfg, a.engine).Run(ctx)
}
