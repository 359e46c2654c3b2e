package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rid(t time.Time) *DateTime {
	return &DateTime{Time: t}
}

func TestSameEvent(t *testing.T) {
	at := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	master := EventRef{UID: "S1"}
	occ := EventRef{UID: "S1", RecurrenceID: rid(at)}
	// Same instant written in another zone.
	occZoned := EventRef{UID: "S1", RecurrenceID: &DateTime{Time: at.In(paris), TZID: "Europe/Paris"}}
	other := EventRef{UID: "S1", RecurrenceID: rid(at.Add(7 * 24 * time.Hour))}

	refs := []EventRef{master, occ, occZoned, other, {UID: "S2"}}
	for _, r := range refs {
		assert.True(t, SameEvent(r, r), "reflexive for %+v", r)
	}
	for _, a := range refs {
		for _, b := range refs {
			assert.Equal(t, SameEvent(a, b), SameEvent(b, a), "symmetric")
		}
	}

	assert.True(t, SameEvent(occ, occZoned))
	assert.False(t, SameEvent(master, occ))
	assert.False(t, SameEvent(occ, other))
	assert.False(t, SameEvent(master, EventRef{UID: "S2"}))
}

func TestIsMasterOf(t *testing.T) {
	at := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	occ := EventRef{UID: "S1", RecurrenceID: rid(at)}

	assert.True(t, IsMasterOf(occ, EventRef{UID: "S1"}))
	assert.False(t, IsMasterOf(occ, occ))
	assert.False(t, IsMasterOf(occ, EventRef{UID: "S2"}))
}

func TestIndexHelpers(t *testing.T) {
	at := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	events := []Event{
		{UID: "S1", RecurrenceID: rid(at)},
		{UID: "S1", RRule: "FREQ=WEEKLY"},
	}

	assert.Equal(t, 0, IndexOf(events, EventRef{UID: "S1", RecurrenceID: rid(at)}))
	assert.Equal(t, 1, IndexOf(events, EventRef{UID: "S1"}))
	assert.Equal(t, -1, IndexOf(events, EventRef{UID: "nope"}))
	assert.Equal(t, 1, MasterIndex(events, "S1"))
	assert.Equal(t, -1, MasterIndex(events, "S2"))
}

func TestEventClone(t *testing.T) {
	at := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	ev := Event{
		UID:          "S1",
		RecurrenceID: rid(at),
		ExDates:      []DateTime{{Time: at}},
		Organizer:    &Attendee{Email: "a@example.com"},
		Attendees:    []Attendee{{Email: "b@example.com"}},
	}

	cp := ev.Clone()
	cp.RecurrenceID.Time = at.Add(time.Hour)
	cp.ExDates[0].Time = at.Add(time.Hour)
	cp.Organizer.Email = "changed"
	cp.Attendees[0].Email = "changed"

	assert.True(t, ev.RecurrenceID.Time.Equal(at))
	assert.True(t, ev.ExDates[0].Time.Equal(at))
	assert.Equal(t, "a@example.com", ev.Organizer.Email)
	assert.Equal(t, "b@example.com", ev.Attendees[0].Email)
}

func TestDocumentHelpers(t *testing.T) {
	at := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	doc := &Document{Collection: Collection{Events: []Event{
		{UID: "S1", RRule: "FREQ=WEEKLY", Summary: "master"},
		{UID: "S1", RecurrenceID: rid(at)},
	}}}

	assert.True(t, doc.HasRecurrenceID())
	m, ok := doc.Master("S1")
	require.True(t, ok)
	assert.Equal(t, "master", m.Summary)

	cp := doc.Clone()
	cp.Events[0].Summary = "edited"
	assert.Equal(t, "master", doc.Events[0].Summary)

	single := &Document{Collection: Collection{Events: []Event{{UID: "E1"}}}}
	assert.False(t, single.HasRecurrenceID())
}

func TestNotFound(t *testing.T) {
	res := NotFound()
	assert.False(t, res.OK)
	assert.Equal(t, 404, res.Status)
	assert.NoError(t, res.Err)
}
