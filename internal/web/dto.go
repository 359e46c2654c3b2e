package web

import (
	"time"

	"calsync/internal/model"
)

type dateTimeDTO struct {
	Time   time.Time `json:"time"`
	TZID   string    `json:"tzid,omitempty"`
	AllDay bool      `json:"all_day,omitempty"`
}

type attendeeDTO struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	PartStat string `json:"partstat,omitempty"`
}

// eventDTO is the JSON form of model.Event, used both ways.
type eventDTO struct {
	UID          string        `json:"uid"`
	RecurrenceID *dateTimeDTO  `json:"recurrence_id,omitempty"`
	Sequence     int           `json:"sequence"`
	Summary      string        `json:"summary"`
	Description  string        `json:"description,omitempty"`
	Location     string        `json:"location,omitempty"`
	Status       string        `json:"status,omitempty"`
	Start        dateTimeDTO   `json:"start"`
	End          dateTimeDTO   `json:"end"`
	RRule        string        `json:"rrule,omitempty"`
	ExDates      []dateTimeDTO `json:"exdates,omitempty"`
	Organizer    *attendeeDTO  `json:"organizer,omitempty"`
	Attendees    []attendeeDTO `json:"attendees,omitempty"`
}

type calendarDTO struct {
	URL         string   `json:"url"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	Components  []string `json:"components,omitempty"`
	UID         string   `json:"uid,omitempty"`
}

type calendarEventDTO struct {
	CalendarURL string   `json:"calendar_url"`
	Event       eventDTO `json:"event"`
}

type displayedEventDTO struct {
	CalendarURL    string    `json:"calendar_url"`
	Event          eventDTO  `json:"event"`
	RecurringEvent *eventDTO `json:"recurring_event,omitempty"`
}

type eventsResponse struct {
	Events     []calendarEventDTO `json:"events"`
	RangeStart time.Time          `json:"range_start"`
	RangeEnd   time.Time          `json:"range_end"`
	TimeZone   string             `json:"timezone"`
}

type contactDTO struct {
	AddressBookURL string `json:"address_book_url"`
	Name           string `json:"name"`
	Email          string `json:"email"`
}

// mutationRequest is the body of POST/PUT/DELETE /api/events. CalendarURL is
// only read on creation.
type mutationRequest struct {
	CalendarURL string   `json:"calendar_url,omitempty"`
	Event       eventDTO `json:"event"`
}

type mutationResponse struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	ETag   string `json:"etag,omitempty"`
	URL    string `json:"url,omitempty"`
	ICal   string `json:"ical,omitempty"`
	Error  string `json:"error,omitempty"`
}

func toDateTimeDTO(d model.DateTime) dateTimeDTO {
	return dateTimeDTO{Time: d.Time, TZID: d.TZID, AllDay: d.AllDay}
}

func (d dateTimeDTO) model() model.DateTime {
	return model.DateTime{Time: d.Time, TZID: d.TZID, AllDay: d.AllDay}
}

func toAttendeeDTO(a model.Attendee) attendeeDTO {
	return attendeeDTO{Email: a.Email, Name: a.Name, Role: a.Role, PartStat: a.PartStat}
}

func (a attendeeDTO) model() model.Attendee {
	return model.Attendee{Email: a.Email, Name: a.Name, Role: a.Role, PartStat: a.PartStat}
}

func toEventDTO(ev model.Event) eventDTO {
	out := eventDTO{
		UID:         ev.UID,
		Sequence:    ev.Sequence,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Status:      ev.Status,
		Start:       toDateTimeDTO(ev.Start),
		End:         toDateTimeDTO(ev.End),
		RRule:       ev.RRule,
	}
	if ev.RecurrenceID != nil {
		rid := toDateTimeDTO(*ev.RecurrenceID)
		out.RecurrenceID = &rid
	}
	for _, ex := range ev.ExDates {
		out.ExDates = append(out.ExDates, toDateTimeDTO(ex))
	}
	if ev.Organizer != nil {
		org := toAttendeeDTO(*ev.Organizer)
		out.Organizer = &org
	}
	for _, a := range ev.Attendees {
		out.Attendees = append(out.Attendees, toAttendeeDTO(a))
	}
	return out
}

func (e eventDTO) model() model.Event {
	out := model.Event{
		UID:         e.UID,
		Sequence:    e.Sequence,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Status:      e.Status,
		Start:       e.Start.model(),
		End:         e.End.model(),
		RRule:       e.RRule,
	}
	if e.RecurrenceID != nil {
		rid := e.RecurrenceID.model()
		out.RecurrenceID = &rid
	}
	for _, ex := range e.ExDates {
		out.ExDates = append(out.ExDates, ex.model())
	}
	if e.Organizer != nil {
		org := e.Organizer.model()
		out.Organizer = &org
	}
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, a.model())
	}
	return out
}

func toMutationResponse(res model.Result, ical string) mutationResponse {
	out := mutationResponse{
		OK:     res.OK,
		Status: res.Status,
		ETag:   res.ETag,
		URL:    res.URL,
		ICal:   ical,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
