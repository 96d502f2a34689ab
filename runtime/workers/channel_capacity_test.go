package workers

import (
	"context"
	"testing"
	"time"

	"smartsolve/observability"

	"github.com/stretchr/testify/require"
)

func TestChannelCapacityWorker_Reports_Queue_Fill(t *testing.T) {
	req := require.New(t)

	// Given a queue filled at 3/4
	queue := make(chan int, 4)
	queue <- 1
	queue <- 2
	queue <- 3
	samples := make(chan observability.ChannelCapacity, 4)
	worker := NewChannelCapacityWorker(testLog, []NamedChannel{
		{Name: "notification_jobs", Channel: queue},
		{Name: "not_a_channel", Channel: 42},
	}, samples, 10*time.Millisecond, 50)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	// Then only the real channel is sampled
	select {
	case sample := <-samples:
		req.Equal("notification_jobs", sample.Name)
		req.Equal(4, sample.Capacity)
		req.Equal(3, sample.Length)
		req.True(worker.isLow(sample))
	case <-time.After(2 * time.Second):
		req.Fail("no sample received")
	}
	cancel()
	req.NoError(<-done)
}

func TestChannelCapacityWorker_Threshold_Disabled(t *testing.T) {
	worker := NewChannelCapacityWorker(testLog, nil, nil, time.Second, 0)
	require.False(t, worker.isLow(observability.ChannelCapacity{Capacity: 1, Length: 1}))
}
