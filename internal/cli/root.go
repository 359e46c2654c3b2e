// Package cli is the calsync command tree.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"calsync/internal/catalog"
	"calsync/internal/config"
	"calsync/internal/dav"
	"calsync/internal/engine"
	"calsync/internal/ics"
	appLog "calsync/internal/log"
)

const version = "0.1.0"

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "calsync",
	Short:         "Keep a local, editable projection of CalDAV calendars",
	Long:          `calsync fetches CalDAV calendars and CardDAV address books, keeps them in memory and serves a JSON API to read and edit events, including single occurrences of recurring series.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/calsync/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// app is the wired object graph shared by every command.
type app struct {
	cfg    *config.Config
	engine *engine.Engine
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	level := appLog.ParseLevel(cfg.LogLevel)
	if debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
		"backfill_days", cfg.BackfillDays,
		"sources", len(cfg.Sources),
	)

	gw, err := dav.NewGateway(dav.Options{
		Codec:                  ics.NewCodec(cfg.Location()),
		Timeout:                cfg.RequestTimeout(),
		RequestsPerSecond:      cfg.RateLimit.RequestsPerSecond,
		Burst:                  cfg.RateLimit.Burst,
		MaxOccurrencesPerEvent: 5000,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		engine: engine.New(catalog.New(gw), gw),
	}, nil
}

// loadCollections resolves calendars and address books. Address book
// discovery failures are logged, not fatal: many CalDAV servers have no
// CardDAV side.
func (a *app) loadCollections(ctx context.Context) error {
	sources := a.cfg.ModelSources()
	if err := a.engine.LoadCalendars(ctx, sources); err != nil {
		return fmt.Errorf("load calendars: %w", err)
	}
	if err := a.engine.LoadAddressBooks(ctx, sources); err != nil {
		appLog.Warn("address books unavailable", "error", err.Error())
	}
	return nil
}

// window returns the default refresh window in the configured timezone.
func (a *app) window(now time.Time) (time.Time, time.Time) {
	loc := a.cfg.Location()
	n := now.In(loc)
	day := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -a.cfg.BackfillDays), day.AddDate(0, 0, a.cfg.HorizonDays)
}
