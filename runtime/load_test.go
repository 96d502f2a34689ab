package runtime_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smartsolve/domain"
	"smartsolve/mocks"
	"smartsolve/runtime"
	"smartsolve/sink"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// TestOrchestrator_LoadTest delivers concurrently to many users holding
// several connections each, through real connection sinks.
func TestOrchestrator_LoadTest(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := gomock.NewController(t)
	notifications := mocks.NewMockINotificationRepository(ctrl)
	notifications.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	notifications.EXPECT().MarkDelivered(gomock.Any(), gomock.Any()).Return(domain.Notification{}, nil).AnyTimes()

	log := slog.New(slog.DiscardHandler)
	o := runtime.NewOrchestrator(log, notifications, runtime.OrchestratorConfig{
		Registry:         runtime.RegistryConfig{Shards: 16},
		PushTimeout:      500 * time.Millisecond,
		NumberOfWorkers:  4,
		BufferSize:       1000,
		MetricInterval:   50 * time.Millisecond,
		RestartInterval:  10 * time.Millisecond,
		DisableProcStats: true,
	})
	go o.Start(ctx)
	defer o.Stop()

	// 1. Every user opens devicesPerUser connections, each drained by its own reader
	numUsers, devicesPerUser, messagesPerUser := 100, 3, 50
	var received atomic.Uint64
	var drainers sync.WaitGroup
	for u := 0; u < numUsers; u++ {
		for d := 0; d < devicesPerUser; d++ {
			s := sink.NewConnectionSink(16)
			_, err := o.Registry().Register(userID(u), s)
			req.NoError(err)
			drainers.Add(1)
			go func() {
				defer drainers.Done()
				for {
					select {
					case <-s.Events():
						received.Add(1)
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	// 2. Traffic: each user receives messagesPerUser messages from its neighbour
	start := time.Now()
	var delivered atomic.Uint64
	var senders sync.WaitGroup
	for u := 0; u < numUsers; u++ {
		senders.Add(1)
		go func(u int) {
			defer senders.Done()
			for j := 0; j < messagesPerUser; j++ {
				msg := domain.Message{
					ID:           uuid.New(),
					Sender:       userID((u + 1) % numUsers),
					Receiver:     userID(u),
					Conversation: domain.NewConversationKey(userID((u+1)%numUsers), userID(u)),
					Content:      "load",
					CreatedAt:    time.Now().UTC(),
				}
				if o.Router().Deliver(ctx, msg).Status == domain.Delivered {
					delivered.Add(1)
				}
			}
		}(u)
	}
	senders.Wait()
	duration := time.Since(start)

	// 3. Every push reached every device, plus the sender echoes
	expected := uint64(numUsers * messagesPerUser)
	req.Equal(expected, delivered.Load())
	req.Eventually(func() bool {
		return received.Load() >= expected*uint64(devicesPerUser)
	}, 5*time.Second, 10*time.Millisecond)

	fmt.Printf("\n--- LOAD TEST ---\n")
	fmt.Printf("Duration        : %v\n", duration)
	fmt.Printf("Connections     : %d\n", o.Registry().Count())
	fmt.Printf("Events received : %d\n", received.Load())
	fmt.Printf("Throughput      : %.2f deliveries/sec\n", float64(delivered.Load())/duration.Seconds())
	fmt.Printf("-----------------\n")

	cancel()
	drainers.Wait()
}

func userID(i int) domain.UserID {
	return domain.UserID(fmt.Sprintf("user-%d", i))
}
