package sink

import (
	"context"
	"sync"

	"smartsolve/domain"
	"smartsolve/errors"
)

// ConnectionSink is the write side of one live connection.
// The router pushes into it, the transport writer drains Events.
// The events channel is never closed so a late push can't panic,
// closing only releases Done.
type ConnectionSink struct {
	events chan domain.Event
	done   chan struct{}
	once   sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		events: make(chan domain.Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume is called by the router.
// It blocks while the buffer is full, until ctx expires or the connection closes.
func (s *ConnectionSink) Consume(ctx context.Context, e domain.Event) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ConnectionSink) Events() <-chan domain.Event {
	return s.events
}

func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent.
func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}
