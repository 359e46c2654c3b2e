package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

const (
	// DefaultProdID is written on documents that do not carry their own.
	DefaultProdID = "-//calsync//NONSGML calsync//EN"

	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
	layoutUTC      = "20060102T150405Z"
)

// Codec maps raw iCalendar documents to model.Collection and back.
type Codec struct {
	// Location resolves floating DATE-TIME values and DATE values.
	Location *time.Location
	// Now stamps DTSTAMP on encode.
	Now func() time.Time
}

// NewCodec returns a Codec resolving floating times in loc (time.Local if nil).
func NewCodec(loc *time.Location) *Codec {
	if loc == nil {
		loc = time.Local
	}
	return &Codec{Location: loc, Now: time.Now}
}

// Decode parses a single iCalendar payload.
//
//   - DTSTART/DTEND/EXDATE/RECURRENCE-ID honour TZID and VALUE=DATE.
//   - RRULE is kept raw; see Expand for materialization.
//   - A VEVENT without UID is logged and skipped.
//   - VTIMEZONE components are kept as property trees.
func (c *Codec) Decode(raw []byte) (model.Collection, error) {
	var out model.Collection
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(raw))
	if err != nil {
		return out, fmt.Errorf("ics: parse calendar: %w", err)
	}

	for _, p := range cal.CalendarProperties {
		if p.IANAToken == "PRODID" {
			out.ProdID = p.Value
		}
	}

	for _, comp := range cal.Components {
		tz, ok := comp.(*ical.VTimezone)
		if !ok {
			continue
		}
		out.Timezones = append(out.Timezones, decodeTimezone(tz))
	}

	zones := compileZones(out.Timezones)
	for _, ve := range cal.Events() {
		ev, perr := c.decodeEvent(ve, zones)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		out.Events = append(out.Events, ev)
	}

	return out, nil
}

func (c *Codec) decodeEvent(ve *ical.VEvent, zones map[string]*zoneRules) (model.Event, error) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Sequence = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentProperty("STATUS")); p != nil {
		out.Status = p.Value
	}

	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := c.parseDate(p.Value, p.ICalParameters, zones)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start

	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		end, err := c.parseDate(p.Value, p.ICalParameters, zones)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	} else {
		out.End = start
		if start.AllDay {
			out.End = start.Offset(24 * time.Hour)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = strings.TrimPrefix(p.Value, "RRULE:")
	}

	// EXDATE may repeat and may hold comma-separated lists.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			d, err := c.parseDate(part, p.ICalParameters, zones)
			if err != nil {
				appLog.Warn("ics exdate skipped", "uid", out.UID, "value", part)
				continue
			}
			out.ExDates = append(out.ExDates, d)
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		d, err := c.parseDate(p.Value, p.ICalParameters, zones)
		if err != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		out.RecurrenceID = &d
	}

	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		org := decodeAttendee(p.Value, p.ICalParameters)
		out.Organizer = &org
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		out.Attendees = append(out.Attendees, decodeAttendee(p.Value, p.ICalParameters))
	}

	return out, nil
}

// parseDate parses a DATE or DATE-TIME value with its TZID/VALUE parameters.
// A TZID missing from the Go tz database is resolved through the document's
// VTIMEZONE; without one the wall clock is read in c.Location. The id is
// kept either way so that Encode writes the value back unchanged.
func (c *Codec) parseDate(v string, params map[string][]string, zones map[string]*zoneRules) (model.DateTime, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return model.DateTime{}, errors.New("empty time value")
	}

	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	tzid := firstParam(params, "TZID")

	if strings.EqualFold(firstParam(params, "VALUE"), "DATE") || !strings.Contains(v, "T") {
		t, err := time.ParseInLocation(layoutDate, v, loc)
		if err != nil {
			return model.DateTime{}, err
		}
		return model.DateTime{Time: t, AllDay: true}, nil
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		if err != nil {
			return model.DateTime{}, err
		}
		return model.DateTime{Time: t}, nil
	}

	if tzid != "" {
		if zl, err := time.LoadLocation(tzid); err == nil {
			loc = zl
		} else if z, ok := zones[tzid]; ok {
			wall, err := time.Parse(layoutDateTime, v)
			if err != nil {
				return model.DateTime{}, err
			}
			return model.DateTime{Time: z.instant(wall), TZID: tzid}, nil
		} else {
			appLog.Warn("ics unknown TZID; using default location", "tzid", tzid, "location", loc.String())
		}
	}
	t, err := time.ParseInLocation(layoutDateTime, v, loc)
	if err != nil {
		return model.DateTime{}, err
	}
	return model.DateTime{Time: t, TZID: tzid}, nil
}

func decodeAttendee(value string, params map[string][]string) model.Attendee {
	email := value
	if len(email) >= 7 && strings.EqualFold(email[:7], "mailto:") {
		email = email[7:]
	}
	return model.Attendee{
		Email:    email,
		Name:     firstParam(params, "CN"),
		Role:     firstParam(params, "ROLE"),
		PartStat: firstParam(params, "PARTSTAT"),
	}
}

func decodeTimezone(tz *ical.VTimezone) model.Timezone {
	out := model.Timezone{Props: decodeProps(tz.Properties)}
	for _, p := range out.Props {
		if p.Name == "TZID" {
			out.ID = p.Value
		}
	}
	for _, sub := range tz.Components {
		switch r := sub.(type) {
		case *ical.Standard:
			out.Rules = append(out.Rules, model.TimezoneRule{Kind: "STANDARD", Props: decodeProps(r.Properties)})
		case *ical.Daylight:
			out.Rules = append(out.Rules, model.TimezoneRule{Kind: "DAYLIGHT", Props: decodeProps(r.Properties)})
		}
	}
	return out
}

func decodeProps(props []ical.IANAProperty) []model.Property {
	out := make([]model.Property, 0, len(props))
	for _, p := range props {
		mp := model.Property{Name: p.IANAToken, Value: p.Value}
		if len(p.ICalParameters) > 0 {
			mp.Params = make(map[string][]string, len(p.ICalParameters))
			for k, v := range p.ICalParameters {
				mp.Params[k] = append([]string(nil), v...)
			}
		}
		out = append(out, mp)
	}
	return out
}

func firstParam(params map[string][]string, key string) string {
	if params == nil {
		return ""
	}
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
