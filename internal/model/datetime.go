package model

import "time"

// DateTime is an absolute instant plus the optional local form it was
// written in: a TZID for zoned wall-clock values, or AllDay for DATE values.
type DateTime struct {
	Time   time.Time
	TZID   string
	AllDay bool
}

// Local returns the wall clock of the instant in TZID, falling back to the
// instant's own location when TZID is empty or unknown.
func (d DateTime) Local() time.Time {
	if d.TZID == "" {
		return d.Time
	}
	loc, err := time.LoadLocation(d.TZID)
	if err != nil {
		return d.Time
	}
	return d.Time.In(loc)
}

// Offset shifts the instant by off and keeps the local form.
func (d DateTime) Offset(off time.Duration) DateTime {
	return DateTime{
		Time:   d.Time.Add(off),
		TZID:   d.TZID,
		AllDay: d.AllDay,
	}
}

// Equal compares instants only.
func (d DateTime) Equal(o DateTime) bool {
	return d.Time.Equal(o.Time)
}

func (d DateTime) IsZero() bool {
	return d.Time.IsZero()
}
