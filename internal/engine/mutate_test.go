package engine

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/model"
)

func TestApplyUpdateDoesNotAliasInput(t *testing.T) {
	events := seriesDoc().Events
	before := model.CloneEvents(events)

	master := events[0]
	master.Start = at(6, 11)
	out, ok := applyUpdate(events, master)
	require.True(t, ok)

	assert.Equal(t, before, events)
	assert.True(t, out[1].RecurrenceID.Time.Equal(at(13, 11).Time))
	assert.Equal(t, 1, out[0].Sequence)
}

func TestApplyUpdateShiftsByExactDelta(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	local := func(day, hour int) model.DateTime {
		return model.DateTime{Time: time.Date(2025, 3, day, hour, 0, 0, 0, paris), TZID: "Europe/Paris"}
	}

	events := []model.Event{
		{UID: "S2", Start: local(3, 9), RRule: "FREQ=DAILY", ExDates: []model.DateTime{local(5, 9), local(7, 9)}},
		{UID: "S2", RecurrenceID: ptr(local(4, 9)), Start: local(4, 14)},
		{UID: "S2", RecurrenceID: ptr(local(6, 9)), Start: local(6, 9)},
		{UID: "other", RecurrenceID: ptr(local(4, 9)), Start: local(4, 9)},
	}

	master := events[0]
	master.Start = local(3, 9).Offset(-90 * time.Minute)
	out, ok := applyUpdate(events, master)
	require.True(t, ok)

	delta := -90 * time.Minute
	for i := 1; i <= 2; i++ {
		assert.Equal(t, delta, out[i].RecurrenceID.Time.Sub(events[i].RecurrenceID.Time))
		assert.Equal(t, "Europe/Paris", out[i].RecurrenceID.TZID)
	}
	for i, ex := range out[0].ExDates {
		assert.Equal(t, delta, ex.Time.Sub(events[0].ExDates[i].Time))
	}
	assert.True(t, out[3].RecurrenceID.Equal(*events[3].RecurrenceID), "other series is untouched")
}

func TestApplyUpdateNonRecurringDoesNotReanchor(t *testing.T) {
	events := seriesDoc().Events
	ov := events[1]
	ov.Start = at(13, 12)
	out, ok := applyUpdate(events, ov)
	require.True(t, ok)
	assert.Equal(t, events[0], out[0])
	assert.True(t, out[1].RecurrenceID.Equal(at(13, 9)))
}

func TestApplyUpdateUnknownEvent(t *testing.T) {
	events := []model.Event{{UID: "S1", RecurrenceID: ptr(at(13, 9))}}

	_, ok := applyUpdate(events, model.Event{UID: "S1"})
	assert.False(t, ok)

	out, ok := applyUpdate(events, model.Event{UID: "S1", RecurrenceID: ptr(at(20, 9))})
	require.True(t, ok)
	assert.Len(t, out, 2)
}

func TestApplyDelete(t *testing.T) {
	events := seriesDoc().Events
	before := model.CloneEvents(events)

	out, ok := applyDelete(events, model.Event{UID: "S1", RecurrenceID: ptr(at(27, 9))})
	require.True(t, ok)
	assert.Equal(t, before, events)
	require.Len(t, out, 2)
	assert.Len(t, out[0].ExDates, 2)

	_, ok = applyDelete(events, model.Event{UID: "nope"})
	assert.False(t, ok)

	_, ok = applyDelete([]model.Event{{UID: "S1", RecurrenceID: ptr(at(13, 9))}}, model.Event{UID: "S1", RecurrenceID: ptr(at(20, 9))})
	assert.False(t, ok, "occurrence without a master and without a stored override")
}

func TestApplyDeleteMasterKeepsOtherSeries(t *testing.T) {
	events := append(seriesDoc().Events, model.Event{UID: "S9", Start: at(2, 8)})

	out, ok := applyDelete(events, events[0])
	require.True(t, ok)
	require.Len(t, out, 1)
	assert.Equal(t, "S9", out[0].UID)
}
