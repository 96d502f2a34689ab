package domain

import "time"

// Event is what gets pushed to a live connection.
// Payload is a Message, a Notification or an ErrorPayload.
type Event struct {
	Type    EventType
	Payload any
	At      time.Time
}

const EventError EventType = "error"

type ErrorPayload struct {
	Code   int
	Reason string
}

func NewEvent(t EventType, payload any, at time.Time) Event {
	return Event{Type: t, Payload: payload, At: at.UTC()}
}
