// Package scheduler refreshes the engine's event and contact caches on a
// cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// Refresher is what a refresh run drives.
type Refresher interface {
	FetchAndLoadEvents(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error)
	FetchAndLoadContacts(ctx context.Context) ([]model.AddressBookContact, error)
}

// Window is the refreshed range relative to the run time.
type Window struct {
	Backfill time.Duration
	Horizon  time.Duration
}

// Range returns [now-Backfill, now+Horizon) with now truncated to the day in
// loc.
func (w Window) Range(now time.Time, loc *time.Location) (time.Time, time.Time) {
	n := now.In(loc)
	day := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return day.Add(-w.Backfill), day.Add(w.Horizon)
}

type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	window    Window
	loc       *time.Location
	timeout   time.Duration
	now       func() time.Time

	// serializes runs; a tick that finds a run in progress is skipped
	running sync.Mutex
}

// New validates spec and registers the refresh job. Nothing runs until
// Start.
func New(spec string, loc *time.Location, window Window, timeout time.Duration, r Refresher) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		refresher: r,
		window:    window,
		loc:       loc,
		timeout:   timeout,
		now:       time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("scheduler: invalid refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	appLog.Info("scheduler started", "location", s.loc.String())
	s.cron.Start()
}

// Stop stops scheduling and waits for a running refresh to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		appLog.Warn("refresh skipped, previous run still in progress")
		return
	}
	defer s.running.Unlock()

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.run(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
}

// RunOnce performs one refresh immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.running.Lock()
	defer s.running.Unlock()
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) error {
	start, end := s.window.Range(s.now(), s.loc)
	began := time.Now()

	events, err := s.refresher.FetchAndLoadEvents(ctx, start, end)
	if err != nil {
		return fmt.Errorf("refresh events: %w", err)
	}
	contacts, err := s.refresher.FetchAndLoadContacts(ctx)
	if err != nil {
		return fmt.Errorf("refresh contacts: %w", err)
	}

	appLog.Info("refresh done",
		"start", start.Format(time.RFC3339),
		"end", end.Format(time.RFC3339),
		"events", len(events),
		"contacts", len(contacts),
		"took", time.Since(began).Round(time.Millisecond).String(),
	)
	return nil
}
