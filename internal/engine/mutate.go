package engine

import "calsync/internal/model"

// applyUpdate writes ev into a copy of events. An event that matches nothing
// is appended when it is an occurrence override (first edit of that
// occurrence); otherwise its sequence is bumped and it replaces the match in
// place. Editing a recurring master re-anchors the recurrence-ids of its
// stored overrides and its own exception dates onto the new start.
//
// ok is false when ev matches nothing and carries no recurrence-id.
// events itself is never modified.
func applyUpdate(events []model.Event, ev model.Event) (out []model.Event, ok bool) {
	out = model.CloneEvents(events)
	ev = ev.Clone()

	idx := model.IndexOf(out, ev.Ref())
	if idx < 0 {
		if ev.RecurrenceID == nil {
			return nil, false
		}
		return append(out, ev), true
	}

	oldStart := out[idx].Start
	ev.Sequence++
	out[idx] = ev

	if !ev.IsRecurring() {
		return out, true
	}

	for i := range out {
		if i == idx || out[i].UID != ev.UID || out[i].RecurrenceID == nil {
			continue
		}
		rid := reanchor(*out[i].RecurrenceID, oldStart, ev.Start)
		out[i].RecurrenceID = &rid
	}
	for i, ex := range out[idx].ExDates {
		out[idx].ExDates[i] = reanchor(ex, oldStart, ev.Start)
	}
	return out, true
}

// reanchor keeps d at the same distance from the series start when the start
// moves from oldStart to newStart. The result takes newStart's local form.
func reanchor(d, oldStart, newStart model.DateTime) model.DateTime {
	return newStart.Offset(d.Time.Sub(oldStart.Time))
}

// applyDelete removes ev from a copy of events. Deleting an occurrence adds
// its recurrence-id to the master's exception dates; deleting a recurring
// master removes the whole series.
//
// ok is false when nothing in events refers to ev.
func applyDelete(events []model.Event, ev model.Event) (out []model.Event, ok bool) {
	out = model.CloneEvents(events)

	if ev.RecurrenceID != nil {
		if m := model.MasterIndex(out, ev.UID); m >= 0 {
			ok = true
			if !containsDate(out[m].ExDates, *ev.RecurrenceID) {
				out[m].ExDates = append(out[m].ExDates, *ev.RecurrenceID)
			}
		}
	}

	if idx := model.IndexOf(out, ev.Ref()); idx >= 0 {
		ok = true
		out = append(out[:idx], out[idx+1:]...)
	}

	if ev.IsRecurring() && ev.RecurrenceID == nil {
		kept := out[:0]
		for _, e := range out {
			if e.UID == ev.UID {
				ok = true
				continue
			}
			kept = append(kept, e)
		}
		out = kept
	}

	if !ok {
		return nil, false
	}
	return out, true
}

func containsDate(dates []model.DateTime, d model.DateTime) bool {
	for _, x := range dates {
		if x.Equal(d) {
			return true
		}
	}
	return false
}
