package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"smartsolve/domain"

	"github.com/mama165/sdk-go/logs"
)

var testLog = logs.GetLoggerFromLevel(slog.LevelDebug)

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	got    chan domain.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan domain.Event, 64)}
}

func (s *recordingSink) Consume(_ context.Context, e domain.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	s.got <- e
	return nil
}

func (s *recordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// failingSink always refuses the push.
type failingSink struct{ err error }

func (s failingSink) Consume(context.Context, domain.Event) error { return s.err }

// stuckSink never accepts a push until its context gives up.
type stuckSink struct{}

func (stuckSink) Consume(ctx context.Context, _ domain.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

// ignoringSink ignores cancellation for a while, like a wedged socket write.
type ignoringSink struct{ delay time.Duration }

func (s ignoringSink) Consume(context.Context, domain.Event) error {
	time.Sleep(s.delay)
	return nil
}
