package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		eventsStart, eventsEnd = "", ""
		debug = false
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "calendars", "events", "contacts"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestCalendarsWithoutSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "--config", path, "calendars")
	require.NoError(t, err)
	assert.Contains(t, out, "No calendars found.")
	assert.FileExists(t, path)
}

func TestEventsWithoutSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "--config", path, "events", "--start", "2025-01-01T00:00:00Z", "--end", "2025-02-01T00:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "0 events between 2025-01-01T00:00:00Z and 2025-02-01T00:00:00Z")
}

func TestEventsRejectsBadWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := run(t, "--config", path, "events", "--start", "tomorrow")
	assert.ErrorContains(t, err, "invalid --start")
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.Timezone = "Nowhere/Special"
	require.NoError(t, config.Save(path, cfg))

	_, err := run(t, "--config", path, "calendars")
	assert.ErrorContains(t, err, "invalid config")
}

func TestContactsWithoutSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "--config", path, "contacts")
	require.NoError(t, err)
	assert.Contains(t, out, "0 contacts")
}

func TestAppWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BackfillDays = 2
	cfg.HorizonDays = 3
	a := &app{cfg: cfg}

	start, end := a.window(time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC))
	assert.True(t, start.Equal(time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)))
	assert.True(t, end.Equal(time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)))
}
