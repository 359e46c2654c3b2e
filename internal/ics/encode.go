package ics

import (
	"errors"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"calsync/internal/model"
)

// Encode serializes a collection into an iCalendar document. The timezone
// set is normalized first (see NormalizeTimezones); the input is not
// modified.
func (c *Codec) Encode(col model.Collection) ([]byte, error) {
	col = NormalizeTimezones(col)

	cal := ical.NewCalendar()
	prodID := col.ProdID
	if prodID == "" {
		prodID = DefaultProdID
	}
	cal.SetProductId(prodID)

	for _, tz := range col.Timezones {
		cal.Components = append(cal.Components, encodeTimezone(tz))
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	stamp := now().UTC().Format(layoutUTC)
	w := dateWriter{loc: c.Location, zones: compileZones(col.Timezones)}

	for _, ev := range col.Events {
		if ev.UID == "" {
			return nil, errors.New("ics: event without UID")
		}
		ve := cal.AddEvent(ev.UID)
		ve.SetProperty(ical.ComponentPropertyDtstamp, stamp)
		ve.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(ev.Sequence))

		w.set(ve, ical.ComponentPropertyDtStart, ev.Start, false)
		if !ev.End.IsZero() {
			w.set(ve, ical.ComponentPropertyDtEnd, ev.End, false)
		}
		if ev.RecurrenceID != nil {
			w.set(ve, ical.ComponentProperty("RECURRENCE-ID"), *ev.RecurrenceID, false)
		}

		if ev.Summary != "" {
			ve.SetProperty(ical.ComponentPropertySummary, ev.Summary)
		}
		if ev.Description != "" {
			ve.SetProperty(ical.ComponentPropertyDescription, ev.Description)
		}
		if ev.Location != "" {
			ve.SetProperty(ical.ComponentPropertyLocation, ev.Location)
		}
		if ev.Status != "" {
			ve.SetProperty(ical.ComponentProperty("STATUS"), ev.Status)
		}
		if ev.RRule != "" {
			ve.SetProperty(ical.ComponentPropertyRrule, ev.RRule)
		}
		for _, ex := range ev.ExDates {
			w.set(ve, ical.ComponentPropertyExdate, ex, true)
		}

		if ev.Organizer != nil {
			ve.SetProperty(ical.ComponentPropertyOrganizer, "mailto:"+ev.Organizer.Email, attendeeParams(*ev.Organizer)...)
		}
		for _, a := range ev.Attendees {
			ve.AddProperty(ical.ComponentPropertyAttendee, "mailto:"+a.Email, attendeeParams(a)...)
		}
	}

	return []byte(cal.Serialize()), nil
}

// dateWriter renders DATE and DATE-TIME values. loc and zones mirror what
// Decode used to read them, so a decoded value is written back as it was.
type dateWriter struct {
	loc   *time.Location
	zones map[string]*zoneRules
}

// wall returns the wall clock of d in its TZID.
func (w dateWriter) wall(d model.DateTime) time.Time {
	if knownZone(d.TZID) {
		return d.Local()
	}
	if z, ok := w.zones[d.TZID]; ok {
		return z.wallClock(d.Time)
	}
	loc := w.loc
	if loc == nil {
		loc = time.Local
	}
	return d.Time.In(loc)
}

// set writes d in its local form: VALUE=DATE, TZID-qualified wall clock,
// or UTC.
func (w dateWriter) set(ve *ical.VEvent, prop ical.ComponentProperty, d model.DateTime, add bool) {
	var (
		value  string
		params []ical.PropertyParameter
	)
	switch {
	case d.AllDay:
		value = d.Time.Format(layoutDate)
		params = append(params, param("VALUE", "DATE"))
	case d.TZID != "":
		value = w.wall(d).Format(layoutDateTime)
		params = append(params, param("TZID", d.TZID))
	default:
		value = d.Time.UTC().Format(layoutUTC)
	}

	if add {
		ve.AddProperty(prop, value, params...)
		return
	}
	ve.SetProperty(prop, value, params...)
}

func attendeeParams(a model.Attendee) []ical.PropertyParameter {
	var out []ical.PropertyParameter
	if a.Name != "" {
		out = append(out, param("CN", a.Name))
	}
	if a.Role != "" {
		out = append(out, param("ROLE", a.Role))
	}
	if a.PartStat != "" {
		out = append(out, param("PARTSTAT", a.PartStat))
	}
	return out
}

func encodeTimezone(tz model.Timezone) *ical.VTimezone {
	vt := &ical.VTimezone{}
	vt.Properties = encodeProps(tz.Props)
	for _, r := range tz.Rules {
		switch r.Kind {
		case "DAYLIGHT":
			d := &ical.Daylight{}
			d.Properties = encodeProps(r.Props)
			vt.Components = append(vt.Components, d)
		default:
			s := &ical.Standard{}
			s.Properties = encodeProps(r.Props)
			vt.Components = append(vt.Components, s)
		}
	}
	return vt
}

func encodeProps(props []model.Property) []ical.IANAProperty {
	out := make([]ical.IANAProperty, 0, len(props))
	for _, p := range props {
		ip := ical.IANAProperty{}
		ip.IANAToken = p.Name
		ip.Value = p.Value
		ip.ICalParameters = map[string][]string{}
		for k, v := range p.Params {
			ip.ICalParameters[k] = append([]string(nil), v...)
		}
		out = append(out, ip)
	}
	return out
}

func param(key, value string) ical.PropertyParameter {
	return &ical.KeyValues{Key: key, Value: []string{value}}
}

func knownZone(tzid string) bool {
	_, err := time.LoadLocation(tzid)
	return err == nil
}
