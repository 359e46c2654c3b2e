package ics

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/model"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

const seriesICS = `
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VTIMEZONE
TZID:Europe/Paris
BEGIN:DAYLIGHT
DTSTART:19700329T020000
TZOFFSETFROM:+0100
TZOFFSETTO:+0200
TZNAME:CEST
RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU
END:DAYLIGHT
BEGIN:STANDARD
DTSTART:19701025T030000
TZOFFSETFROM:+0200
TZOFFSETTO:+0100
TZNAME:CET
RRULE:FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU
END:STANDARD
END:VTIMEZONE
BEGIN:VEVENT
UID:S1
SEQUENCE:2
DTSTAMP:20250101T000000Z
DTSTART;TZID=Europe/Paris:20250106T090000
DTEND;TZID=Europe/Paris:20250106T100000
SUMMARY:Standup
RRULE:FREQ=WEEKLY
EXDATE;TZID=Europe/Paris:20250120T090000
ORGANIZER;CN=Alice:mailto:alice@example.com
ATTENDEE;CN=Bob;ROLE=REQ-PARTICIPANT;PARTSTAT=ACCEPTED:mailto:bob@example.com
END:VEVENT
BEGIN:VEVENT
UID:S1
DTSTAMP:20250101T000000Z
RECURRENCE-ID;TZID=Europe/Paris:20250113T090000
DTSTART;TZID=Europe/Paris:20250113T100000
DTEND;TZID=Europe/Paris:20250113T110000
SUMMARY:Standup (moved)
END:VEVENT
END:VCALENDAR
`

func TestDecodeSeries(t *testing.T) {
	c := NewCodec(time.UTC)
	col, err := c.Decode(crlf(seriesICS))
	require.NoError(t, err)

	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	assert.Equal(t, "-//test//EN", col.ProdID)
	require.Len(t, col.Timezones, 1)
	assert.Equal(t, "Europe/Paris", col.Timezones[0].ID)
	assert.Len(t, col.Timezones[0].Rules, 2)

	require.Len(t, col.Events, 2)
	master := col.Events[0]
	assert.Equal(t, "S1", master.UID)
	assert.Equal(t, 2, master.Sequence)
	assert.Nil(t, master.RecurrenceID)
	assert.Equal(t, "FREQ=WEEKLY", master.RRule)
	assert.Equal(t, "Europe/Paris", master.Start.TZID)
	assert.True(t, master.Start.Time.Equal(time.Date(2025, 1, 6, 9, 0, 0, 0, paris)))
	require.Len(t, master.ExDates, 1)
	assert.True(t, master.ExDates[0].Time.Equal(time.Date(2025, 1, 20, 9, 0, 0, 0, paris)))
	require.NotNil(t, master.Organizer)
	assert.Equal(t, "alice@example.com", master.Organizer.Email)
	assert.Equal(t, "Alice", master.Organizer.Name)
	require.Len(t, master.Attendees, 1)
	assert.Equal(t, model.Attendee{Email: "bob@example.com", Name: "Bob", Role: "REQ-PARTICIPANT", PartStat: "ACCEPTED"}, master.Attendees[0])

	override := col.Events[1]
	require.NotNil(t, override.RecurrenceID)
	assert.True(t, override.RecurrenceID.Time.Equal(time.Date(2025, 1, 13, 9, 0, 0, 0, paris)))
	assert.Equal(t, "Standup (moved)", override.Summary)
}

func TestDecodeAllDayAndMissingUID(t *testing.T) {
	raw := crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250101
SUMMARY:no uid
END:VEVENT
BEGIN:VEVENT
UID:D1
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250101
SUMMARY:Holiday
END:VEVENT
END:VCALENDAR
`)
	col, err := NewCodec(time.UTC).Decode(raw)
	require.NoError(t, err)
	require.Len(t, col.Events, 1)

	ev := col.Events[0]
	assert.Equal(t, "D1", ev.UID)
	assert.True(t, ev.Start.AllDay)
	assert.True(t, ev.Start.Time.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 24*time.Hour, ev.End.Time.Sub(ev.Start.Time))
}

func TestDecodeEmpty(t *testing.T) {
	_, err := NewCodec(time.UTC).Decode([]byte("  "))
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	c := NewCodec(time.UTC)
	c.Now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	rid := model.DateTime{Time: time.Date(2025, 1, 13, 9, 0, 0, 0, paris), TZID: "Europe/Paris"}
	col := model.Collection{
		Events: []model.Event{
			{
				UID:      "S1",
				Sequence: 3,
				Summary:  "Standup",
				Start:    model.DateTime{Time: time.Date(2025, 1, 6, 9, 0, 0, 0, paris), TZID: "Europe/Paris"},
				End:      model.DateTime{Time: time.Date(2025, 1, 6, 10, 0, 0, 0, paris), TZID: "Europe/Paris"},
				RRule:    "FREQ=WEEKLY",
				ExDates:  []model.DateTime{{Time: time.Date(2025, 1, 20, 9, 0, 0, 0, paris), TZID: "Europe/Paris"}},
				Attendees: []model.Attendee{
					{Email: "bob@example.com", Name: "Bob"},
				},
			},
			{
				UID:          "S1",
				RecurrenceID: &rid,
				Summary:      "Moved",
				Start:        model.DateTime{Time: time.Date(2025, 1, 13, 10, 0, 0, 0, paris), TZID: "Europe/Paris"},
				End:          model.DateTime{Time: time.Date(2025, 1, 13, 11, 0, 0, 0, paris), TZID: "Europe/Paris"},
			},
		},
		Timezones: []model.Timezone{{ID: "America/New_York", Props: []model.Property{{Name: "TZID", Value: "America/New_York"}}}},
	}

	raw, err := c.Encode(col)
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, "PRODID:"+DefaultProdID)
	assert.Contains(t, text, "BEGIN:VTIMEZONE")
	assert.Contains(t, text, "TZID:Europe/Paris")
	assert.NotContains(t, text, "America/New_York")
	assert.Contains(t, text, "DTSTART;TZID=Europe/Paris:20250106T090000")
	assert.Contains(t, text, "DTSTAMP:20250101T000000Z")

	back, err := c.Decode(raw)
	require.NoError(t, err)
	require.Len(t, back.Events, 2)
	require.Len(t, back.Timezones, 1)
	assert.Equal(t, "Europe/Paris", back.Timezones[0].ID)

	m := back.Events[0]
	assert.Equal(t, 3, m.Sequence)
	assert.Equal(t, "FREQ=WEEKLY", m.RRule)
	require.Len(t, m.ExDates, 1)
	assert.True(t, m.ExDates[0].Time.Equal(col.Events[0].ExDates[0].Time))
	require.Len(t, m.Attendees, 1)
	assert.Equal(t, "bob@example.com", m.Attendees[0].Email)

	o := back.Events[1]
	require.NotNil(t, o.RecurrenceID)
	assert.True(t, o.RecurrenceID.Time.Equal(rid.Time))
	assert.Equal(t, "Moved", o.Summary)

	// The input collection keeps its own timezone list.
	assert.Equal(t, "America/New_York", col.Timezones[0].ID)
}

func TestEncodeUTCAndAllDay(t *testing.T) {
	c := NewCodec(time.UTC)
	col := model.Collection{Events: []model.Event{{
		UID:   "E1",
		Start: model.DateTime{Time: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)},
		End:   model.DateTime{Time: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), AllDay: true},
	}}}

	raw, err := c.Encode(col)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "DTSTART:20250301T083000Z")
	assert.Contains(t, text, "DTEND;VALUE=DATE:20250302")
	assert.NotContains(t, text, "BEGIN:VTIMEZONE")
}

func TestEncodeEmptyAndMissingUID(t *testing.T) {
	raw, err := NewCodec(time.UTC).Encode(model.Collection{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "BEGIN:VCALENDAR")
	assert.NotContains(t, string(raw), "BEGIN:VEVENT")

	_, err = NewCodec(time.UTC).Encode(model.Collection{Events: []model.Event{{Summary: "x"}}})
	assert.Error(t, err)
}

const exchangeICS = `
BEGIN:VCALENDAR
VERSION:2.0
PRODID:Microsoft Exchange Server 2010
BEGIN:VTIMEZONE
TZID:W. Europe Standard Time
BEGIN:STANDARD
DTSTART:16010101T030000
TZOFFSETFROM:+0200
TZOFFSETTO:+0100
RRULE:FREQ=YEARLY;INTERVAL=1;BYDAY=-1SU;BYMONTH=10
END:STANDARD
BEGIN:DAYLIGHT
DTSTART:16010101T020000
TZOFFSETFROM:+0100
TZOFFSETTO:+0200
RRULE:FREQ=YEARLY;INTERVAL=1;BYDAY=-1SU;BYMONTH=3
END:DAYLIGHT
END:VTIMEZONE
BEGIN:VEVENT
UID:X1
DTSTAMP:20250101T000000Z
DTSTART;TZID=W. Europe Standard Time:20250106T090000
DTEND;TZID=W. Europe Standard Time:20250106T100000
SUMMARY:Winter
END:VEVENT
BEGIN:VEVENT
UID:X2
DTSTAMP:20250101T000000Z
DTSTART;TZID=W. Europe Standard Time:20250707T090000
DTEND;TZID=W. Europe Standard Time:20250707T100000
SUMMARY:Summer
END:VEVENT
END:VCALENDAR
`

func TestVTimezoneOnlyZoneRoundTrip(t *testing.T) {
	const tzid = "W. Europe Standard Time"
	c := NewCodec(time.UTC)

	col, err := c.Decode(crlf(exchangeICS))
	require.NoError(t, err)
	require.Len(t, col.Events, 2)

	winter, summer := col.Events[0], col.Events[1]
	assert.Equal(t, tzid, winter.Start.TZID)
	assert.True(t, winter.Start.Time.Equal(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)), winter.Start.Time.String())
	assert.True(t, summer.Start.Time.Equal(time.Date(2025, 7, 7, 7, 0, 0, 0, time.UTC)), summer.Start.Time.String())

	raw, err := c.Encode(col)
	require.NoError(t, err)
	text := string(raw)
	assert.Equal(t, 1, strings.Count(text, "BEGIN:VTIMEZONE"))
	assert.Contains(t, text, "20250106T090000")
	assert.Contains(t, text, "20250707T090000")
	assert.NotContains(t, text, "20250106T080000Z")
	assert.NotContains(t, text, "20250707T070000Z")

	back, err := c.Decode(raw)
	require.NoError(t, err)
	require.Len(t, back.Events, 2)
	require.Len(t, back.Timezones, 1)
	assert.Equal(t, tzid, back.Timezones[0].ID)
	for i, ev := range back.Events {
		assert.Equal(t, tzid, ev.Start.TZID)
		assert.True(t, ev.Start.Time.Equal(col.Events[i].Start.Time))
		assert.True(t, ev.End.Time.Equal(col.Events[i].End.Time))
	}
}

func TestUnknownZoneWithoutDefinitionKeepsWallClock(t *testing.T) {
	raw := crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:U1
DTSTAMP:20250101T000000Z
DTSTART;TZID=Custom Zone:20250106T090000
DTEND;TZID=Custom Zone:20250106T100000
END:VEVENT
END:VCALENDAR
`)
	c := NewCodec(time.UTC)
	col, err := c.Decode(raw)
	require.NoError(t, err)
	require.Len(t, col.Events, 1)
	assert.Equal(t, "Custom Zone", col.Events[0].Start.TZID)

	out, err := c.Encode(col)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "20250106T090000")
	assert.NotContains(t, text, "20250106T090000Z")

	back, err := c.Decode(out)
	require.NoError(t, err)
	require.Len(t, back.Events, 1)
	assert.Equal(t, "Custom Zone", back.Events[0].Start.TZID)
	assert.True(t, back.Events[0].Start.Time.Equal(col.Events[0].Start.Time))
}

func TestParseUTCOffset(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"+0100", 3600, true},
		{"-0530", -(5*3600 + 30*60), true},
		{"+013015", 3600 + 30*60 + 15, true},
		{"0100", 0, false},
		{"+1", 0, false},
	}
	for _, tt := range tests {
		got, err := parseUTCOffset(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
