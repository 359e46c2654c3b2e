// Package catalog keeps the set of calendars and address books resolved from
// the configured sources.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// Lister resolves sources into collections.
type Lister interface {
	ListCalendars(ctx context.Context, src model.Source) ([]model.Calendar, error)
	ListAddressBooks(ctx context.Context, src model.Source) ([]model.AddressBook, error)
}

type Catalog struct {
	lister Lister

	mu           sync.RWMutex
	calendars    []model.Calendar
	addressBooks []model.AddressBook
}

func New(lister Lister) *Catalog {
	return &Catalog{lister: lister}
}

// Load resolves every source concurrently and replaces the calendar list
// wholesale. A single failing source fails the whole load and the previous
// list stays in place.
func (c *Catalog) Load(ctx context.Context, sources []model.Source) error {
	perSource := make([][]model.Calendar, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			cals, err := c.lister.ListCalendars(gctx, src)
			if err != nil {
				return fmt.Errorf("catalog: source %q: %w", src.ID, err)
			}
			perSource[i] = cals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []model.Calendar
	for _, cals := range perSource {
		all = append(all, cals...)
	}

	c.mu.Lock()
	c.calendars = all
	c.mu.Unlock()

	appLog.Info("calendars loaded", "sources", len(sources), "calendars", len(all))
	return nil
}

// Calendars returns a snapshot of the loaded calendars.
func (c *Catalog) Calendars() []model.Calendar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Calendar(nil), c.calendars...)
}

// CalendarByURL looks a calendar up by its url.
func (c *Catalog) CalendarByURL(url string) (model.Calendar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cal := range c.calendars {
		if cal.URL == url {
			return cal, true
		}
	}
	return model.Calendar{}, false
}

// LoadAddressBooks is Load for address books.
func (c *Catalog) LoadAddressBooks(ctx context.Context, sources []model.Source) error {
	perSource := make([][]model.AddressBook, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			books, err := c.lister.ListAddressBooks(gctx, src)
			if err != nil {
				return fmt.Errorf("catalog: source %q: %w", src.ID, err)
			}
			perSource[i] = books
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []model.AddressBook
	for _, books := range perSource {
		all = append(all, books...)
	}

	c.mu.Lock()
	c.addressBooks = all
	c.mu.Unlock()

	appLog.Info("address books loaded", "sources", len(sources), "address_books", len(all))
	return nil
}

func (c *Catalog) AddressBooks() []model.AddressBook {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.AddressBook(nil), c.addressBooks...)
}

func (c *Catalog) AddressBookByURL(url string) (model.AddressBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.addressBooks {
		if b.URL == url {
			return b, true
		}
	}
	return model.AddressBook{}, false
}
