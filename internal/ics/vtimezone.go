package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// zoneRules resolves wall clocks of a TZID the Go tz database does not
// know (Exchange names such as "W. Europe Standard Time") through the
// document's own VTIMEZONE definition.
type zoneRules struct {
	id    string
	rules []onsetRule
}

// onsetRule is one STANDARD or DAYLIGHT block. start is the DTSTART wall
// clock carried as a UTC time.
type onsetRule struct {
	start    time.Time
	from, to int
	rrule    *rrule.RRule
	standard bool
}

// compileZones builds resolvers for every VTIMEZONE whose id is unknown to
// the Go tz database. Blocks that cannot be read are skipped.
func compileZones(tzs []model.Timezone) map[string]*zoneRules {
	out := map[string]*zoneRules{}
	for _, tz := range tzs {
		if tz.ID == "" || knownZone(tz.ID) {
			continue
		}
		z := &zoneRules{id: tz.ID}
		for _, r := range tz.Rules {
			rule, err := compileRule(r)
			if err != nil {
				appLog.Warn("ics vtimezone rule skipped", "tzid", tz.ID, "kind", r.Kind, "error", err.Error())
				continue
			}
			z.rules = append(z.rules, rule)
		}
		if len(z.rules) > 0 {
			out[tz.ID] = z
		}
	}
	return out
}

func compileRule(r model.TimezoneRule) (onsetRule, error) {
	out := onsetRule{standard: r.Kind != "DAYLIGHT"}
	var haveFrom, haveTo bool
	var rruleText string
	for _, p := range r.Props {
		var err error
		switch p.Name {
		case "DTSTART":
			out.start, err = time.Parse(layoutDateTime, strings.TrimSuffix(p.Value, "Z"))
		case "TZOFFSETFROM":
			out.from, err = parseUTCOffset(p.Value)
			haveFrom = true
		case "TZOFFSETTO":
			out.to, err = parseUTCOffset(p.Value)
			haveTo = true
		case "RRULE":
			rruleText = p.Value
		}
		if err != nil {
			return onsetRule{}, fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	if out.start.IsZero() || !haveTo {
		return onsetRule{}, errors.New("DTSTART and TZOFFSETTO are required")
	}
	if !haveFrom {
		out.from = out.to
	}
	if rruleText != "" {
		opt, err := rrule.StrToROption(rruleText)
		if err != nil {
			return onsetRule{}, fmt.Errorf("RRULE: %w", err)
		}
		opt.Dtstart = out.start
		rr, err := rrule.NewRRule(*opt)
		if err != nil {
			return onsetRule{}, fmt.Errorf("RRULE: %w", err)
		}
		out.rrule = rr
	}
	return out, nil
}

// lastOnset returns the latest onset wall clock not after wall.
func (r onsetRule) lastOnset(wall time.Time) (time.Time, bool) {
	if wall.Before(r.start) {
		return time.Time{}, false
	}
	if r.rrule == nil {
		return r.start, true
	}
	t := r.rrule.Before(wall, true)
	return t, !t.IsZero()
}

// offsetAtWall returns the UTC offset in seconds in force at a wall clock
// (carried as a UTC time).
func (z *zoneRules) offsetAtWall(wall time.Time) int {
	var (
		best  time.Time
		off   int
		found bool
	)
	for _, r := range z.rules {
		onset, ok := r.lastOnset(wall)
		if ok && (!found || onset.After(best)) {
			best, off, found = onset, r.to, true
		}
	}
	if found {
		return off
	}
	return z.fallback()
}

// offsetAt returns the UTC offset in seconds in force at instant t.
func (z *zoneRules) offsetAt(t time.Time) int {
	var (
		best  time.Time
		off   int
		found bool
	)
	utc := t.UTC()
	for _, r := range z.rules {
		// An onset wall clock is expressed in the offset it switches from.
		onset, ok := r.lastOnset(utc.Add(time.Duration(r.from) * time.Second))
		if !ok {
			continue
		}
		at := onset.Add(-time.Duration(r.from) * time.Second)
		if !found || at.After(best) {
			best, off, found = at, r.to, true
		}
	}
	if found {
		return off
	}
	return z.fallback()
}

func (z *zoneRules) fallback() int {
	for _, r := range z.rules {
		if r.standard {
			return r.to
		}
	}
	return z.rules[0].to
}

// instant converts a wall clock in the zone into an absolute time whose
// location carries the zone's name and offset.
func (z *zoneRules) instant(wall time.Time) time.Time {
	off := z.offsetAtWall(wall)
	return wall.Add(-time.Duration(off) * time.Second).In(time.FixedZone(z.id, off))
}

// wallClock is the inverse of instant.
func (z *zoneRules) wallClock(t time.Time) time.Time {
	off := z.offsetAt(t)
	return t.In(time.FixedZone(z.id, off))
}

// parseUTCOffset reads "+HHMM", "-HHMM" or "+HHMMSS" into seconds.
func parseUTCOffset(v string) (int, error) {
	v = strings.TrimSpace(v)
	if len(v) != 5 && len(v) != 7 {
		return 0, fmt.Errorf("invalid utc offset %q", v)
	}
	sign := 1
	switch v[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("invalid utc offset %q", v)
	}
	h, err := strconv.Atoi(v[1:3])
	if err != nil {
		return 0, fmt.Errorf("invalid utc offset %q", v)
	}
	m, err := strconv.Atoi(v[3:5])
	if err != nil {
		return 0, fmt.Errorf("invalid utc offset %q", v)
	}
	s := 0
	if len(v) == 7 {
		if s, err = strconv.Atoi(v[5:7]); err != nil {
			return 0, fmt.Errorf("invalid utc offset %q", v)
		}
	}
	return sign * (h*3600 + m*60 + s), nil
}
