package model

import "time"

// Transport is the per-collection auth/transport context inherited from the
// source that produced the collection.
type Transport struct {
	Headers  map[string]string
	Username string
	Password string
}

// Clone returns a copy whose header map is not shared.
func (t Transport) Clone() Transport {
	out := t
	if t.Headers != nil {
		out.Headers = make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// Source is one configured origin of calendars and address books. A source
// with ServerURL enumerates every collection of the account; otherwise
// CalendarURL (or AddressBookURL) names a single collection.
type Source struct {
	ID             string
	ServerURL      string
	CalendarURL    string
	AddressBookURL string
	// CalendarUID is an optional caller-supplied identifier copied onto the
	// calendar resolved from CalendarURL.
	CalendarUID string
	Transport   Transport
}

func (s Source) IsServer() bool {
	return s.ServerURL != ""
}

// Calendar is a remote calendar collection handle. URL is unique.
type Calendar struct {
	URL         string
	DisplayName string
	Description string
	Color       string
	Components  []string
	UID         string
	Transport   Transport
}

// AddressBook is a remote address book collection handle.
type AddressBook struct {
	URL         string
	DisplayName string
	Description string
	Transport   Transport
}

type Contact struct {
	Name  string
	Email string
}

type AddressBookContact struct {
	AddressBookURL string
	Contact        Contact
}

// Attendee covers both ORGANIZER and ATTENDEE values.
type Attendee struct {
	Email    string
	Name     string
	Role     string
	PartStat string
}

// Event is one VEVENT: either a series master (no RecurrenceID) or an
// override of a single occurrence.
type Event struct {
	UID          string
	RecurrenceID *DateTime
	Sequence     int

	Summary     string
	Description string
	Location    string
	Status      string

	Start DateTime
	End   DateTime

	// RRule is the raw RRULE value (without the "RRULE:" prefix); empty when
	// the event does not repeat.
	RRule   string
	ExDates []DateTime

	Organizer *Attendee
	Attendees []Attendee
}

// IsRecurring reports whether the event carries a recurrence rule.
func (e Event) IsRecurring() bool {
	return e.RRule != ""
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	out := e
	if e.RecurrenceID != nil {
		rid := *e.RecurrenceID
		out.RecurrenceID = &rid
	}
	if e.ExDates != nil {
		out.ExDates = append([]DateTime(nil), e.ExDates...)
	}
	if e.Organizer != nil {
		org := *e.Organizer
		out.Organizer = &org
	}
	if e.Attendees != nil {
		out.Attendees = append([]Attendee(nil), e.Attendees...)
	}
	return out
}

// CloneEvents deep-copies a slice of events.
func CloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, ev := range events {
		out[i] = ev.Clone()
	}
	return out
}

// Timezone is a VTIMEZONE definition kept as a property tree so that it can
// be written back without interpretation.
type Timezone struct {
	ID    string
	Props []Property
	Rules []TimezoneRule
}

// TimezoneRule is a STANDARD or DAYLIGHT sub-component.
type TimezoneRule struct {
	Kind  string
	Props []Property
}

type Property struct {
	Name   string
	Params map[string][]string
	Value  string
}

// Collection is the structured payload of one calendar document.
type Collection struct {
	ProdID    string
	Events    []Event
	Timezones []Timezone
}

// Document is one remote calendar object: a series master plus its stored
// overrides, or a single event.
type Document struct {
	URL         string
	ETag        string
	CalendarURL string
	Collection
}

// Clone returns a deep copy of the document's events. Timezones are treated
// as immutable and shared.
func (d *Document) Clone() Document {
	out := *d
	out.Events = CloneEvents(d.Events)
	if d.Timezones != nil {
		out.Timezones = append([]Timezone(nil), d.Timezones...)
	}
	return out
}

// HasRecurrenceID reports whether any event of the document is an occurrence
// instance.
func (d *Document) HasRecurrenceID() bool {
	for _, ev := range d.Events {
		if ev.RecurrenceID != nil {
			return true
		}
	}
	return false
}

// IndexOf returns the position of the event with the given identity, or -1.
func (d *Document) IndexOf(ref EventRef) int {
	return IndexOf(d.Events, ref)
}

// Master returns the recurrence master for uid within the document.
func (d *Document) Master(uid string) (Event, bool) {
	i := MasterIndex(d.Events, uid)
	if i < 0 {
		return Event{}, false
	}
	return d.Events[i], true
}

// Query selects documents from a calendar: either a time range (optionally
// expanded into occurrences) or an explicit list of object URLs.
type Query struct {
	Start      time.Time
	End        time.Time
	Expand     bool
	ObjectURLs []string
}

// CalendarEvent pairs an event with the url of its owning calendar.
type CalendarEvent struct {
	CalendarURL string
	Event       Event
}

// DisplayedEvent is an event looked up for display. RecurringEvent is the
// series master when Event is an occurrence and the master is known.
type DisplayedEvent struct {
	CalendarURL    string
	Event          Event
	RecurringEvent *Event
}
