package web

import (
	"encoding/json"
	"net/http"
	"time"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

func (s *Server) handleCalendars(w http.ResponseWriter, _ *http.Request) {
	cals := s.engine.Calendars()
	out := make([]calendarDTO, 0, len(cals))
	for _, c := range cals {
		out = append(out, calendarDTO{
			URL:         c.URL,
			DisplayName: c.DisplayName,
			Description: c.Description,
			Color:       c.Color,
			Components:  c.Components,
			UID:         c.UID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEvents fetches and returns every event overlapping a window.
//
// GET /api/events?start=2025-01-01T00:00:00Z&end=2025-02-01T00:00:00Z
//   - start: RFC 3339, default today minus backfill_days
//   - end:   RFC 3339, default today plus horizon_days
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	loc := s.location()
	n := s.now().In(loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)

	q := r.URL.Query()
	start, err := parseTimeDefault(q.Get("start"), today.AddDate(0, 0, -s.cfg.BackfillDays))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := parseTimeDefault(q.Get("end"), today.AddDate(0, 0, s.cfg.HorizonDays))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	appLog.Info("api events request",
		"range_start", start.Format(time.RFC3339),
		"range_end", end.Format(time.RFC3339),
	)

	events, err := s.engine.FetchAndLoadEvents(r.Context(), start, end)
	if err != nil {
		appLog.Error("api events: fetch failed", err)
		writeError(w, http.StatusBadGateway, "failed to fetch events")
		return
	}

	dtos := make([]calendarEventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, calendarEventDTO{CalendarURL: ev.CalendarURL, Event: toEventDTO(ev.Event)})
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:     dtos,
		RangeStart: start,
		RangeEnd:   end,
		TimeZone:   loc.String(),
	})
}

// handleEvent looks one event up in the loaded events.
//
// GET /api/event?uid=...&recurrence_id=2025-01-13T09:00:00Z
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid := q.Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "uid is required")
		return
	}
	ref := model.EventRef{UID: uid}
	if raw := q.Get("recurrence_id"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recurrence_id: "+err.Error())
			return
		}
		ref.RecurrenceID = &model.DateTime{Time: t}
	}

	found, ok := s.engine.CalendarEvent(ref)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	out := displayedEventDTO{CalendarURL: found.CalendarURL, Event: toEventDTO(found.Event)}
	if found.RecurringEvent != nil {
		master := toEventDTO(*found.RecurringEvent)
		out.RecurringEvent = &master
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMutation(w, r)
	if !ok {
		return
	}
	if req.CalendarURL == "" {
		writeError(w, http.StatusBadRequest, "calendar_url is required")
		return
	}
	res, ical := s.engine.CreateEvent(r.Context(), req.CalendarURL, req.Event.model())
	writeMutation(w, "create", res, ical)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMutation(w, r)
	if !ok {
		return
	}
	if req.Event.UID == "" {
		writeError(w, http.StatusBadRequest, "event.uid is required")
		return
	}
	res, ical := s.engine.UpdateEvent(r.Context(), req.Event.model())
	writeMutation(w, "update", res, ical)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMutation(w, r)
	if !ok {
		return
	}
	if req.Event.UID == "" {
		writeError(w, http.StatusBadRequest, "event.uid is required")
		return
	}
	res, ical := s.engine.DeleteEvent(r.Context(), req.Event.model())
	writeMutation(w, "delete", res, ical)
}

func (s *Server) handleContacts(w http.ResponseWriter, _ *http.Request) {
	contacts := s.engine.Contacts()
	out := make([]contactDTO, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactDTO{AddressBookURL: c.AddressBookURL, Name: c.Contact.Name, Email: c.Contact.Email})
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeMutation(w http.ResponseWriter, r *http.Request) (mutationRequest, bool) {
	var req mutationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return mutationRequest{}, false
	}
	return req, true
}

// writeMutation answers with the store's status: 404 for a local miss, 502
// when the store could not be reached at all.
func writeMutation(w http.ResponseWriter, op string, res model.Result, ical string) {
	status := http.StatusOK
	switch {
	case res.OK:
	case res.Status > 0:
		status = res.Status
	default:
		status = http.StatusBadGateway
	}
	if !res.OK {
		appLog.Warn("api mutation failed", "op", op, "status", res.Status)
	}
	writeJSON(w, status, toMutationResponse(res, ical))
}

func parseTimeDefault(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, s)
}
