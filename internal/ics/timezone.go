package ics

import (
	"fmt"
	"sort"
	"time"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// NormalizeTimezones returns col with exactly one VTIMEZONE per TZID
// referenced by the events: unused definitions are dropped and missing ones
// are generated from the Go tz database.
func NormalizeTimezones(col model.Collection) model.Collection {
	wanted := map[string]int{} // tzid -> earliest referenced year
	note := func(d model.DateTime) {
		if d.TZID == "" || d.AllDay {
			return
		}
		y := d.Time.Year()
		if cur, ok := wanted[d.TZID]; !ok || y < cur {
			wanted[d.TZID] = y
		}
	}
	for _, ev := range col.Events {
		note(ev.Start)
		note(ev.End)
		if ev.RecurrenceID != nil {
			note(*ev.RecurrenceID)
		}
		for _, ex := range ev.ExDates {
			note(ex)
		}
	}

	kept := make([]model.Timezone, 0, len(wanted))
	have := map[string]bool{}
	for _, tz := range col.Timezones {
		if _, ok := wanted[tz.ID]; ok && !have[tz.ID] {
			kept = append(kept, tz)
			have[tz.ID] = true
		}
	}

	missing := make([]string, 0)
	for id := range wanted {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)

	for _, id := range missing {
		tz, err := GenerateTimezone(id, wanted[id])
		if err != nil {
			appLog.Error("ics timezone generation failed", err, "tzid", id)
			continue
		}
		kept = append(kept, tz)
	}

	col.Timezones = kept
	return col
}

type transition struct {
	at       time.Time
	from, to int
	name     string
	dst      bool
}

// GenerateTimezone builds a VTIMEZONE for tzid from the rules in force
// during year. Zones with a yearly DST switch get one STANDARD and one
// DAYLIGHT rule with a yearly RRULE; fixed zones get a single STANDARD.
func GenerateTimezone(tzid string, year int) (model.Timezone, error) {
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return model.Timezone{}, fmt.Errorf("load location %q: %w", tzid, err)
	}

	out := model.Timezone{
		ID:    tzid,
		Props: []model.Property{{Name: "TZID", Value: tzid}},
	}

	start := time.Date(year, 1, 1, 0, 0, 0, 0, loc)
	trs := findTransitions(start, start.AddDate(1, 0, 0))

	if len(trs) == 0 {
		name, off := start.Zone()
		out.Rules = append(out.Rules, model.TimezoneRule{
			Kind: "STANDARD",
			Props: []model.Property{
				{Name: "DTSTART", Value: "19700101T000000"},
				{Name: "TZOFFSETFROM", Value: formatOffset(off)},
				{Name: "TZOFFSETTO", Value: formatOffset(off)},
				{Name: "TZNAME", Value: name},
			},
		})
		return out, nil
	}

	for _, tr := range trs {
		kind := "STANDARD"
		if tr.dst {
			kind = "DAYLIGHT"
		}
		// DTSTART is the wall clock just before the switch, in the old offset.
		wall := tr.at.UTC().Add(time.Duration(tr.from) * time.Second)
		props := []model.Property{
			{Name: "DTSTART", Value: wall.Format(layoutDateTime)},
			{Name: "TZOFFSETFROM", Value: formatOffset(tr.from)},
			{Name: "TZOFFSETTO", Value: formatOffset(tr.to)},
			{Name: "TZNAME", Value: tr.name},
		}
		if len(trs) == 2 {
			props = append(props, model.Property{Name: "RRULE", Value: yearlyRule(wall)})
		}
		out.Rules = append(out.Rules, model.TimezoneRule{Kind: kind, Props: props})
	}
	return out, nil
}

// findTransitions scans [from, to) hourly and bisects each offset change
// down to the second.
func findTransitions(from, to time.Time) []transition {
	var out []transition
	prev := from
	_, prevOff := prev.Zone()
	for cur := from.Add(time.Hour); cur.Before(to); cur = cur.Add(time.Hour) {
		_, off := cur.Zone()
		if off == prevOff {
			prev = cur
			continue
		}
		lo, hi := prev, cur
		for hi.Sub(lo) > time.Second {
			mid := lo.Add(hi.Sub(lo) / 2)
			if _, o := mid.Zone(); o == prevOff {
				lo = mid
			} else {
				hi = mid
			}
		}
		name, _ := hi.Zone()
		out = append(out, transition{at: hi, from: prevOff, to: off, name: name, dst: hi.IsDST()})
		prev, prevOff = cur, off
	}
	return out
}

// yearlyRule expresses the date of wall as "nth weekday of month", using -1
// for the last occurrence in the month.
func yearlyRule(wall time.Time) string {
	days := []string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}
	nth := (wall.Day()-1)/7 + 1
	lastDay := time.Date(wall.Year(), wall.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if wall.Day()+7 > lastDay {
		nth = -1
	}
	return fmt.Sprintf("FREQ=YEARLY;BYMONTH=%d;BYDAY=%d%s", int(wall.Month()), nth, days[wall.Weekday()])
}

func formatOffset(sec int) string {
	sign := '+'
	if sec < 0 {
		sign = '-'
		sec = -sec
	}
	return fmt.Sprintf("%c%02d%02d", sign, sec/3600, (sec%3600)/60)
}
