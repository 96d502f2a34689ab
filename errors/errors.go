package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrInvalidContent     = fmt.Errorf("invalid content")
	ErrInvalidParticipant = fmt.Errorf("invalid participant")
	ErrInvalidRoom        = fmt.Errorf("invalid room")
	ErrNotFound           = fmt.Errorf("not found")
	ErrResourceExhausted  = fmt.Errorf("resource exhausted")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
)
