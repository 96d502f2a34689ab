package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"smartsolve/contract"
	"smartsolve/domain"
	"smartsolve/errors"
	"smartsolve/observability"
)

// abandonGrace is how long past the push timeout the router waits for
// a sink that ignores its context before giving up on it.
const abandonGrace = 50 * time.Millisecond

// Router pushes persisted messages and notifications to live connections.
// Every push runs in its own goroutine under the push timeout; the caller
// is never held longer than the timeout plus a short grace, whatever the sinks do.
type Router struct {
	registry    contract.IRegistry
	monitoring  *observability.MonitoringManager
	log         *slog.Logger
	pushTimeout time.Duration
	now         func() time.Time
}

func NewRouter(registry contract.IRegistry, monitoring *observability.MonitoringManager,
	log *slog.Logger, pushTimeout time.Duration) *Router {
	return &Router{
		registry:    registry,
		monitoring:  monitoring,
		log:         log,
		pushTimeout: pushTimeout,
		now:         time.Now,
	}
}

type pushResult struct {
	connection contract.Connection
	err        error
}

// Deliver pushes a new_message event to every live connection of the receiver.
// The sender's other connections get a message_sent echo in the background,
// which never affects the outcome.
func (r *Router) Deliver(ctx context.Context, message domain.Message) domain.DeliveryOutcome {
	outcome := r.PushToUser(ctx, message.Receiver, domain.NewEvent(domain.EventNewMessage, message, r.now()))
	r.log.Debug("Message delivery attempted",
		"message_id", message.ID, "conversation", message.Conversation, "status", outcome.Status)

	if echo := r.registry.ConnectionsFor(message.Sender); len(echo) > 0 {
		e := domain.NewEvent(domain.EventMessageSent, message, r.now())
		go r.push(context.WithoutCancel(ctx), echo, e)
	}
	return outcome
}

func (r *Router) PushToUser(ctx context.Context, userID domain.UserID, e domain.Event) domain.DeliveryOutcome {
	outcome := r.push(ctx, r.registry.ConnectionsFor(userID), e)
	r.monitoring.RecordOutcome(outcome)
	return outcome
}

func (r *Router) PushToRoom(ctx context.Context, room domain.RoomKey, e domain.Event) domain.DeliveryOutcome {
	outcome := r.push(ctx, r.registry.ConnectionsInRoom(room), e)
	r.monitoring.RecordOutcome(outcome)
	return outcome
}

// push fans the event out to the given snapshot. One connection failing or
// hanging never delays nor fails the others.
func (r *Router) push(ctx context.Context, connections []contract.Connection, e domain.Event) domain.DeliveryOutcome {
	if len(connections) == 0 {
		return domain.NewDeliveryOutcome(0, 0)
	}

	// Buffered so that late pushes finish without anyone listening
	results := make(chan pushResult, len(connections))
	for _, c := range connections {
		go func() {
			pushCtx, cancel := context.WithTimeout(ctx, r.pushTimeout)
			defer cancel()
			results <- pushResult{connection: c, err: safeConsume(pushCtx, c.Sink, e)}
		}()
	}

	deadline := time.NewTimer(r.pushTimeout + abandonGrace)
	defer deadline.Stop()

	succeeded, received := 0, 0
wait:
	for received < len(connections) {
		select {
		case res := <-results:
			received++
			if res.err == nil {
				succeeded++
				continue
			}
			r.log.Warn("Push abandoned",
				"user_id", res.connection.UserID,
				"connection_id", res.connection.ID,
				"event_type", e.Type,
				"error", res.err)
		case <-deadline.C:
			r.log.Warn("Push window elapsed",
				"event_type", e.Type, "pending", len(connections)-received)
			break wait
		}
	}
	return domain.NewDeliveryOutcome(len(connections), succeeded)
}

// safeConsume turns a panicking sink into a failed push.
func safeConsume(ctx context.Context, s contract.EventSink, e domain.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: sink: %v", errors.ErrConnectionClosed, p)
		}
	}()
	return s.Consume(ctx, e)
}
