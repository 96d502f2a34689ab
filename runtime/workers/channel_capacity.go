package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"smartsolve/observability"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically reports the current channel capacity and length.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with other goroutines. A dropped sample is fine, the next tick sends a fresh one.
type ChannelCapacityWorker struct {
	log                  *slog.Logger
	channels             []NamedChannel
	samples              chan<- observability.ChannelCapacity
	metricInterval       time.Duration
	lowCapacityThreshold int
}

// NewChannelCapacityWorker warns once a channel is filled at lowCapacityThreshold percent or more.
// A threshold of 0 disables the warning.
func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	samples chan<- observability.ChannelCapacity, metricInterval time.Duration,
	lowCapacityThreshold int) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:                  log,
		channels:             channels,
		samples:              samples,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			for _, nc := range w.channels {
				v := reflect.ValueOf(nc.Channel)
				if v.Kind() != reflect.Chan {
					w.log.Error("Provided object is not a channel", "name", nc.Name)
					continue
				}
				sample := observability.ChannelCapacity{Name: nc.Name, Capacity: v.Cap(), Length: v.Len()}
				if w.isLow(sample) {
					w.log.Warn("Channel close to saturation", "name", nc.Name, "length", sample.Length, "capacity", sample.Capacity)
				}
				select {
				case w.samples <- sample:
				default:
					w.log.Debug("Channel capacity sample lost", "name", nc.Name)
				}
			}
		}
	}
}

func (w *ChannelCapacityWorker) isLow(sample observability.ChannelCapacity) bool {
	return w.lowCapacityThreshold > 0 && sample.Capacity > 0 &&
		sample.Length*100 >= sample.Capacity*w.lowCapacityThreshold
}
