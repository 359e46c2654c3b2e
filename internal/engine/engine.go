// Package engine keeps the local projection of the remote calendars: the
// expanded occurrence cache used for display, the raw series cache used for
// writes, and the recurrence-aware create/update/delete operations on top
// of them.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// Catalog is the part of catalog.Catalog the engine depends on.
type Catalog interface {
	Load(ctx context.Context, sources []model.Source) error
	Calendars() []model.Calendar
	CalendarByURL(url string) (model.Calendar, bool)
	LoadAddressBooks(ctx context.Context, sources []model.Source) error
	AddressBooks() []model.AddressBook
}

// Gateway is the remote store.
type Gateway interface {
	FetchDocuments(ctx context.Context, cal model.Calendar, q model.Query) ([]*model.Document, error)
	CreateDocument(ctx context.Context, cal model.Calendar, col model.Collection) (model.Result, string)
	UpdateDocument(ctx context.Context, cal model.Calendar, doc model.Document) (model.Result, string)
	DeleteDocument(ctx context.Context, cal model.Calendar, doc model.Document) (model.Result, string)
	FetchContacts(ctx context.Context, book model.AddressBook) ([]model.Contact, error)
}

// calendarCache holds what one fetch brought back for one calendar.
type calendarCache struct {
	calendarURL string
	// objects come from the expanded fetch and are read-only projections
	// for recurring series.
	objects []*model.Document
	// recurring holds the unexpanded form of every object above that
	// contains a recurrence-id.
	recurring []*model.Document
}

type bookContacts struct {
	addressBookURL string
	contacts       []model.Contact
}

type Engine struct {
	catalog Catalog
	gateway Gateway

	// generation is bumped by every fetch and catalog reload; a fetch only
	// commits when it still holds the latest value.
	generation atomic.Uint64

	mu       sync.Mutex
	caches   []calendarCache
	contacts []bookContacts
}

func New(catalog Catalog, gateway Gateway) *Engine {
	return &Engine{catalog: catalog, gateway: gateway}
}

// LoadCalendars reloads the catalog and empties the event caches. Fetches
// still in flight against the previous catalog are discarded.
func (e *Engine) LoadCalendars(ctx context.Context, sources []model.Source) error {
	if err := e.catalog.Load(ctx, sources); err != nil {
		return err
	}
	e.mu.Lock()
	e.generation.Add(1)
	e.caches = nil
	e.mu.Unlock()
	return nil
}

func (e *Engine) Calendars() []model.Calendar {
	return e.catalog.Calendars()
}

func (e *Engine) CalendarByURL(url string) (model.Calendar, bool) {
	return e.catalog.CalendarByURL(url)
}

// FetchAndLoadEvents fetches [start, end) from every calendar and returns
// every cached event with its calendar url. When a newer fetch was started
// meanwhile, this call's results are dropped and the returned events are
// whatever is cached at that point.
func (e *Engine) FetchAndLoadEvents(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	token := e.generation.Add(1)
	cals := e.catalog.Calendars()
	fetched := make([]calendarCache, len(cals))

	g, gctx := errgroup.WithContext(ctx)
	for i, cal := range cals {
		g.Go(func() error {
			c, err := e.fetchCalendar(gctx, cal, start, end)
			if err != nil {
				return err
			}
			fetched[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.generation.Load() == token {
		e.caches = fetched
		appLog.Debug("events committed", "generation", token, "calendars", len(fetched))
	} else {
		appLog.Debug("stale fetch discarded", "generation", token)
	}
	return e.eventsLocked(), nil
}

func (e *Engine) fetchCalendar(ctx context.Context, cal model.Calendar, start, end time.Time) (calendarCache, error) {
	objects, err := e.gateway.FetchDocuments(ctx, cal, model.Query{Start: start, End: end, Expand: true})
	if err != nil {
		return calendarCache{}, err
	}

	var urls []string
	for _, doc := range objects {
		if doc.HasRecurrenceID() {
			urls = append(urls, doc.URL)
		}
	}

	var recurring []*model.Document
	if len(urls) > 0 {
		recurring, err = e.gateway.FetchDocuments(ctx, cal, model.Query{ObjectURLs: urls})
		if err != nil {
			return calendarCache{}, err
		}
	}

	return calendarCache{calendarURL: cal.URL, objects: objects, recurring: recurring}, nil
}

func (e *Engine) eventsLocked() []model.CalendarEvent {
	var out []model.CalendarEvent
	for _, c := range e.caches {
		for _, doc := range c.objects {
			for _, ev := range doc.Events {
				out = append(out, model.CalendarEvent{CalendarURL: c.calendarURL, Event: ev.Clone()})
			}
		}
	}
	return out
}

// CalendarEvent looks ref up among the fetched occurrences. For an
// occurrence, RecurringEvent is set to the series master when the owning
// document holds one.
func (e *Engine) CalendarEvent(ref model.EventRef) (model.DisplayedEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.caches {
		for _, doc := range c.objects {
			i := doc.IndexOf(ref)
			if i < 0 {
				continue
			}
			out := model.DisplayedEvent{CalendarURL: c.calendarURL, Event: doc.Events[i].Clone()}
			if out.Event.RecurrenceID != nil {
				if owner := e.resolveLocked(ref.UID); owner != nil {
					if m, ok := owner.Master(ref.UID); ok {
						master := m.Clone()
						out.RecurringEvent = &master
					}
				}
			}
			return out, true
		}
	}
	return model.DisplayedEvent{}, false
}

// resolveLocked finds the writable document holding uid. Occurrences of a
// recurring series live in the expanded cache as projections; their owner is
// the matching unexpanded document.
func (e *Engine) resolveLocked(uid string) *model.Document {
	for _, c := range e.caches {
		for _, doc := range c.objects {
			for _, ev := range doc.Events {
				if ev.UID != uid {
					continue
				}
				if ev.RecurrenceID == nil {
					return doc
				}
				return e.recurringLocked(uid)
			}
		}
	}
	return nil
}

func (e *Engine) recurringLocked(uid string) *model.Document {
	for _, c := range e.caches {
		for _, doc := range c.recurring {
			for _, ev := range doc.Events {
				if ev.UID == uid {
					return doc
				}
			}
		}
	}
	appLog.Debug("series document not cached", "uid", uid)
	return nil
}

// CreateEvent stores ev as a new single-event document in the calendar.
func (e *Engine) CreateEvent(ctx context.Context, calendarURL string, ev model.Event) (model.Result, string) {
	cal, ok := e.catalog.CalendarByURL(calendarURL)
	if !ok {
		return model.NotFound(), ""
	}
	col := model.Collection{Events: []model.Event{ev.Clone()}}
	return e.gateway.CreateDocument(ctx, cal, col)
}

// UpdateEvent writes ev into its owning document and submits the document.
// The local document is restored when the write fails.
func (e *Engine) UpdateEvent(ctx context.Context, ev model.Event) (model.Result, string) {
	e.mu.Lock()
	doc, cal, ok := e.ownerLocked(ev.UID)
	if !ok {
		e.mu.Unlock()
		return model.NotFound(), ""
	}
	snapshot := doc.Events
	events, ok := applyUpdate(snapshot, ev)
	if !ok {
		e.mu.Unlock()
		return model.NotFound(), ""
	}
	doc.Events = events
	pending := doc.Clone()
	e.mu.Unlock()

	res, text := e.gateway.UpdateDocument(ctx, cal, pending)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !res.OK {
		doc.Events = snapshot
		return res, text
	}
	if res.ETag != "" {
		doc.ETag = res.ETag
	}
	return res, text
}

// DeleteEvent removes ev from its owning document. The document is deleted
// remotely when nothing is left in it and updated otherwise. The local
// document is restored when the write fails.
func (e *Engine) DeleteEvent(ctx context.Context, ev model.Event) (model.Result, string) {
	e.mu.Lock()
	doc, cal, ok := e.ownerLocked(ev.UID)
	if !ok {
		e.mu.Unlock()
		return model.NotFound(), ""
	}
	snapshot := doc.Events
	events, ok := applyDelete(snapshot, ev)
	if !ok {
		e.mu.Unlock()
		return model.NotFound(), ""
	}
	doc.Events = events
	pending := doc.Clone()
	e.mu.Unlock()

	var (
		res  model.Result
		text string
	)
	removed := len(pending.Events) == 0
	if removed {
		res, text = e.gateway.DeleteDocument(ctx, cal, pending)
	} else {
		res, text = e.gateway.UpdateDocument(ctx, cal, pending)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !res.OK:
		doc.Events = snapshot
	case removed:
		e.dropLocked(doc.URL)
	case res.ETag != "":
		doc.ETag = res.ETag
	}
	return res, text
}

func (e *Engine) ownerLocked(uid string) (*model.Document, model.Calendar, bool) {
	doc := e.resolveLocked(uid)
	if doc == nil {
		return nil, model.Calendar{}, false
	}
	cal, ok := e.catalog.CalendarByURL(doc.CalendarURL)
	if !ok {
		return nil, model.Calendar{}, false
	}
	return doc, cal, true
}

// dropLocked forgets a document deleted on the store.
func (e *Engine) dropLocked(url string) {
	for i := range e.caches {
		e.caches[i].objects = withoutURL(e.caches[i].objects, url)
		e.caches[i].recurring = withoutURL(e.caches[i].recurring, url)
	}
}

func withoutURL(docs []*model.Document, url string) []*model.Document {
	out := make([]*model.Document, 0, len(docs))
	for _, d := range docs {
		if d.URL != url {
			out = append(out, d)
		}
	}
	return out
}
