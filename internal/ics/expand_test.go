package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/model"
)

func utc(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func weeklySeries() model.Document {
	rid := model.DateTime{Time: utc(2025, 1, 13, 9)}
	return model.Document{
		URL:         "https://dav.example.com/cal/S1.ics",
		CalendarURL: "https://dav.example.com/cal/",
		Collection: model.Collection{Events: []model.Event{
			{
				UID:     "S1",
				Summary: "Standup",
				Start:   model.DateTime{Time: utc(2025, 1, 6, 9)},
				End:     model.DateTime{Time: utc(2025, 1, 6, 10)},
				RRule:   "FREQ=WEEKLY",
				ExDates: []model.DateTime{{Time: utc(2025, 1, 20, 9)}},
			},
			{
				UID:          "S1",
				RecurrenceID: &rid,
				Summary:      "Standup (moved)",
				Start:        model.DateTime{Time: utc(2025, 1, 13, 10)},
				End:          model.DateTime{Time: utc(2025, 1, 13, 11)},
			},
		}},
	}
}

func TestExpandWeeklySeries(t *testing.T) {
	doc := weeklySeries()

	got, err := Expand(doc, ExpandConfig{RangeStart: utc(2025, 1, 6, 0), RangeEnd: utc(2025, 2, 3, 0)})
	require.NoError(t, err)

	assert.Equal(t, doc.URL, got.URL)
	require.Len(t, got.Events, 3)

	starts := map[time.Time]model.Event{}
	for _, ev := range got.Events {
		require.NotNil(t, ev.RecurrenceID, "every expanded event carries a recurrence-id")
		assert.Empty(t, ev.RRule)
		assert.Empty(t, ev.ExDates)
		starts[ev.RecurrenceID.Time] = ev
	}

	assert.Contains(t, starts, utc(2025, 1, 6, 9))
	assert.Contains(t, starts, utc(2025, 1, 27, 9))
	assert.NotContains(t, starts, utc(2025, 1, 20, 9), "EXDATE suppresses the occurrence")

	moved, ok := starts[utc(2025, 1, 13, 9)]
	require.True(t, ok)
	assert.Equal(t, "Standup (moved)", moved.Summary)
	assert.True(t, moved.Start.Time.Equal(utc(2025, 1, 13, 10)))

	// The stored document is untouched.
	assert.Equal(t, "FREQ=WEEKLY", doc.Events[0].RRule)
	assert.Len(t, doc.Events, 2)
}

func TestExpandKeepsOverlappingSingleEvents(t *testing.T) {
	doc := model.Document{Collection: model.Collection{Events: []model.Event{
		{UID: "in", Start: model.DateTime{Time: utc(2025, 1, 1, 23)}, End: model.DateTime{Time: utc(2025, 1, 2, 1)}},
		{UID: "out", Start: model.DateTime{Time: utc(2025, 3, 1, 9)}, End: model.DateTime{Time: utc(2025, 3, 1, 10)}},
		{UID: "edge", Start: model.DateTime{Time: utc(2025, 1, 9, 0)}, End: model.DateTime{Time: utc(2025, 1, 9, 1)}},
	}}}

	got, err := Expand(doc, ExpandConfig{RangeStart: utc(2025, 1, 2, 0), RangeEnd: utc(2025, 1, 9, 0)})
	require.NoError(t, err)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "in", got.Events[0].UID)
	assert.Nil(t, got.Events[0].RecurrenceID)
}

func TestExpandCap(t *testing.T) {
	doc := model.Document{Collection: model.Collection{Events: []model.Event{{
		UID:   "D",
		Start: model.DateTime{Time: utc(2025, 1, 1, 9)},
		End:   model.DateTime{Time: utc(2025, 1, 1, 10)},
		RRule: "FREQ=DAILY",
	}}}}

	got, err := Expand(doc, ExpandConfig{RangeStart: utc(2025, 1, 1, 0), RangeEnd: utc(2026, 1, 1, 0), MaxOccurrencesPerEvent: 10})
	require.NoError(t, err)
	assert.Len(t, got.Events, 10)
}

func TestExpandBadRange(t *testing.T) {
	_, err := Expand(weeklySeries(), ExpandConfig{RangeStart: utc(2025, 2, 1, 0), RangeEnd: utc(2025, 1, 1, 0)})
	assert.Error(t, err)
}

func TestExpandInvalidRRuleYieldsNothing(t *testing.T) {
	doc := model.Document{Collection: model.Collection{Events: []model.Event{{
		UID:   "bad",
		Start: model.DateTime{Time: utc(2025, 1, 1, 9)},
		End:   model.DateTime{Time: utc(2025, 1, 1, 10)},
		RRule: "FREQ=NEVER",
	}}}}
	got, err := Expand(doc, ExpandConfig{RangeStart: utc(2025, 1, 1, 0), RangeEnd: utc(2025, 2, 1, 0)})
	require.NoError(t, err)
	assert.Empty(t, got.Events)
}
