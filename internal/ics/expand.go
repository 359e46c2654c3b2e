package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the half-open window [start, end).
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// Expand returns the occurrence-expanded view of a stored document, the way
// a CalDAV server answers an expanded calendar-query:
//
//   - every recurring master is replaced by one event per occurrence in the
//     window, each carrying a RECURRENCE-ID equal to its original start and
//     no RRULE/EXDATE;
//   - EXDATEs suppress occurrences;
//   - stored overrides stand in for the occurrence they replace and are kept
//     if they overlap the window;
//   - non-recurring events are kept if they overlap the window.
//
// The input document is not modified.
func Expand(doc model.Document, cfg ExpandConfig) (model.Document, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return model.Document{}, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overridesByUID := make(map[string][]model.Event)
	for _, ev := range doc.Events {
		if ev.RecurrenceID != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		}
	}

	out := doc
	out.Events = make([]model.Event, 0, len(doc.Events))

	for _, ev := range doc.Events {
		switch {
		case ev.RecurrenceID != nil, !ev.IsRecurring():
			if overlaps(ev.Start.Time, ev.End.Time, cfg.RangeStart, cfg.RangeEnd) {
				out.Events = append(out.Events, ev.Clone())
			}
		default:
			occ, hitCap := expandRecurring(ev, overridesByUID[ev.UID], cfg)
			if hitCap {
				appLog.Error("expand: truncated occurrences for UID due to cap",
					errors.New("max occurrences reached"),
					"uid", ev.UID,
					"cap", cfg.MaxOccurrencesPerEvent,
				)
			}
			out.Events = append(out.Events, occ...)
		}
	}

	return out, nil
}

func expandRecurring(ev model.Event, overrides []model.Event, cfg ExpandConfig) ([]model.Event, bool) {
	out := make([]model.Event, 0)

	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
		return out, false
	}

	start := ev.Start.Time
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.Time.In(start.Location()))
	}

	dur := ev.End.Time.Sub(start)
	if dur < 0 {
		dur = 0
	}

	// Occurrences starting up to one duration before the window can still
	// overlap it.
	rangeStart := cfg.RangeStart.Add(-dur).In(start.Location())
	rangeEnd := cfg.RangeEnd.In(start.Location())

	hitCap := false
	for _, occStart := range set.Between(rangeStart, rangeEnd, true) {
		if len(out) >= cfg.MaxOccurrencesPerEvent {
			hitCap = true
			break
		}
		occEnd := occStart.Add(dur)
		if !overlaps(occStart, occEnd, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		if hasOverride(overrides, occStart) {
			continue
		}

		inst := ev.Clone()
		inst.RRule = ""
		inst.ExDates = nil
		inst.Start = model.DateTime{Time: occStart, TZID: ev.Start.TZID, AllDay: ev.Start.AllDay}
		inst.End = model.DateTime{Time: occEnd, TZID: ev.End.TZID, AllDay: ev.End.AllDay}
		rid := inst.Start
		inst.RecurrenceID = &rid

		out = append(out, inst)
	}

	return out, hitCap
}

// hasOverride reports whether a stored override replaces the occurrence
// starting at occStart.
func hasOverride(overrides []model.Event, occStart time.Time) bool {
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Time.Equal(occStart) {
			return true
		}
	}
	return false
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd). A
// zero-length event is treated as the instant aStart.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
