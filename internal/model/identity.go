package model

// EventRef identifies an event independently of any other field.
type EventRef struct {
	UID          string
	RecurrenceID *DateTime
}

func (e Event) Ref() EventRef {
	return EventRef{UID: e.UID, RecurrenceID: e.RecurrenceID}
}

// SameEvent reports whether a and b name the same event: uids match and
// either both lack a recurrence-id or both carry the same instant.
func SameEvent(a, b EventRef) bool {
	if a.UID != b.UID {
		return false
	}
	switch {
	case a.RecurrenceID == nil && b.RecurrenceID == nil:
		return true
	case a.RecurrenceID == nil || b.RecurrenceID == nil:
		return false
	default:
		return a.RecurrenceID.Equal(*b.RecurrenceID)
	}
}

// IsMasterOf reports whether candidate is the recurrence master of the
// series instance belongs to.
func IsMasterOf(instance, candidate EventRef) bool {
	return instance.UID == candidate.UID && candidate.RecurrenceID == nil
}

// IndexOf returns the index of the event matching ref, or -1.
func IndexOf(events []Event, ref EventRef) int {
	for i := range events {
		if SameEvent(events[i].Ref(), ref) {
			return i
		}
	}
	return -1
}

// MasterIndex returns the index of the master event for uid, or -1.
func MasterIndex(events []Event, uid string) int {
	for i := range events {
		if IsMasterOf(EventRef{UID: uid}, events[i].Ref()) {
			return i
		}
	}
	return -1
}
