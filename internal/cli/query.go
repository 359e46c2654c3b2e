package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var calendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "List the calendars of every configured source",
	Args:  cobra.NoArgs,
	RunE:  runCalendars,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Fetch and print events",
	Long:  `Fetches every calendar over a window (default: the configured backfill/horizon around today) and prints one line per event or occurrence.`,
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Fetch and print address book contacts",
	Args:  cobra.NoArgs,
	RunE:  runContacts,
}

// Flags for the events command.
var (
	eventsStart string
	eventsEnd   string
)

func init() {
	eventsCmd.Flags().StringVar(&eventsStart, "start", "", "Window start (RFC 3339)")
	eventsCmd.Flags().StringVar(&eventsEnd, "end", "", "Window end (RFC 3339)")

	rootCmd.AddCommand(calendarsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(contactsCmd)
}

func runCalendars(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.engine.LoadCalendars(cmd.Context(), a.cfg.ModelSources()); err != nil {
		return err
	}

	cals := a.engine.Calendars()
	if len(cals) == 0 {
		cmd.Println("No calendars found.")
		return nil
	}
	for _, c := range cals {
		name := c.DisplayName
		if name == "" {
			name = "(unnamed)"
		}
		cmd.Printf("%s\t%s\n", name, c.URL)
	}
	return nil
}

func runEvents(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	start, end := a.window(time.Now())
	if start, err = parseFlagTime(eventsStart, start); err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	if end, err = parseFlagTime(eventsEnd, end); err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	if err := a.engine.LoadCalendars(cmd.Context(), a.cfg.ModelSources()); err != nil {
		return err
	}
	events, err := a.engine.FetchAndLoadEvents(cmd.Context(), start, end)
	if err != nil {
		return err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Event.Start.Time.Before(events[j].Event.Start.Time)
	})

	loc := a.cfg.Location()
	for _, ce := range events {
		ev := ce.Event
		when := ev.Start.Time.In(loc).Format("2006-01-02 15:04")
		if ev.Start.AllDay {
			when = ev.Start.Time.Format("2006-01-02") + " (all day)"
		}
		marker := ""
		if ev.RecurrenceID != nil {
			marker = " [occurrence]"
		}
		cmd.Printf("%s\t%s%s\t%s\n", when, ev.Summary, marker, ev.UID)
	}
	cmd.Printf("%d events between %s and %s\n", len(events), start.Format(time.RFC3339), end.Format(time.RFC3339))
	return nil
}

func runContacts(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.engine.LoadAddressBooks(cmd.Context(), a.cfg.ModelSources()); err != nil {
		return err
	}
	contacts, err := a.engine.FetchAndLoadContacts(cmd.Context())
	if err != nil {
		return err
	}
	for _, c := range contacts {
		cmd.Printf("%s <%s>\n", c.Contact.Name, c.Contact.Email)
	}
	cmd.Printf("%d contacts\n", len(contacts))
	return nil
}

func parseFlagTime(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, s)
}
