package observability

import (
	"context"
	"log/slog"
	"maps"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"smartsolve/domain"
)

// ProcessStats is what the health monitoring worker samples from the OS.
type ProcessStats struct {
	PID           int32   `json:"pid"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
	RSSMb         uint64  `json:"rss_mb"`
	Threads       int32   `json:"threads"`
}

// ChannelCapacity is a fill sample of an internal queue.
type ChannelCapacity struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Length   int    `json:"length"`
}

// MonitoringStats aggregates the hub counters for /debug/stats.
type MonitoringStats struct {
	// --- STORE ---
	MessagesPersisted uint64 `json:"messages_persisted"`
	PersistFailures   uint64 `json:"persist_failures"`

	// --- DELIVERY ---
	Delivered          uint64 `json:"delivered"`
	PartiallyDelivered uint64 `json:"partially_delivered"`
	Undelivered        uint64 `json:"undelivered"`
	PushesAbandoned    uint64 `json:"pushes_abandoned"`

	// --- FAN-OUT ---
	NotificationsQueued  uint64 `json:"notifications_queued"`
	NotificationsDropped uint64 `json:"notifications_dropped"`

	// --- CONNECTIONS ---
	ConnectionsRefused uint64 `json:"connections_refused"`

	// --- SYSTEM ---
	AllocMemMb uint64                     `json:"alloc_mem_mb"`
	NumGC      uint32                     `json:"num_gc"`
	Goroutines int                        `json:"goroutines"`
	Process    ProcessStats               `json:"process"`
	Channels   map[string]ChannelCapacity `json:"channels,omitempty"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

// MonitoringManager keeps the hub telemetry.
// Counters are atomics, the sampled part is refreshed by Run.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	processChan chan ProcessStats
	channelChan chan ChannelCapacity
	interval    time.Duration

	messagesPersisted    atomic.Uint64
	persistFailures      atomic.Uint64
	delivered            atomic.Uint64
	partiallyDelivered   atomic.Uint64
	undelivered          atomic.Uint64
	pushesAbandoned      atomic.Uint64
	notificationsQueued  atomic.Uint64
	notificationsDropped atomic.Uint64
	connectionsRefused   atomic.Uint64
}

func NewMonitoringManager(log *slog.Logger, interval time.Duration) *MonitoringManager {
	if interval <= 0 {
		interval = time.Second
	}
	return &MonitoringManager{
		log:         log,
		interval:    interval,
		processChan: make(chan ProcessStats, 1),
		channelChan: make(chan ChannelCapacity, 8),
	}
}

func (mm *MonitoringManager) IncrMessagesPersisted() { mm.messagesPersisted.Add(1) }

func (mm *MonitoringManager) IncrPersistFailures() { mm.persistFailures.Add(1) }

func (mm *MonitoringManager) IncrNotificationsQueued() { mm.notificationsQueued.Add(1) }

func (mm *MonitoringManager) IncrNotificationsDropped() { mm.notificationsDropped.Add(1) }

func (mm *MonitoringManager) IncrConnectionsRefused() { mm.connectionsRefused.Add(1) }

// RecordOutcome counts one delivery attempt.
func (mm *MonitoringManager) RecordOutcome(outcome domain.DeliveryOutcome) {
	switch outcome.Status {
	case domain.Delivered:
		mm.delivered.Add(1)
	case domain.PartiallyDelivered:
		mm.partiallyDelivered.Add(1)
	default:
		mm.undelivered.Add(1)
	}
	if outcome.Abandoned > 0 {
		mm.pushesAbandoned.Add(uint64(outcome.Abandoned))
	}
}

// ProcessChan receives samples from the health monitoring worker.
// Only the latest sample matters, stale ones may be dropped by the sender.
func (mm *MonitoringManager) ProcessChan() chan<- ProcessStats {
	return mm.processChan
}

// ChannelChan receives queue fill samples from the channel capacity worker.
func (mm *MonitoringManager) ChannelChan() chan<- ChannelCapacity {
	return mm.channelChan
}

// Run refreshes the sampled stats until ctx is done.
func (mm *MonitoringManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Monitoring manager stopped")
			return nil
		case <-ticker.C:
			mm.updateStats()
		case stats := <-mm.processChan:
			mm.mu.Lock()
			mm.latestStats.Process = stats
			mm.mu.Unlock()
		case sample := <-mm.channelChan:
			mm.mu.Lock()
			if mm.latestStats.Channels == nil {
				mm.latestStats.Channels = make(map[string]ChannelCapacity)
			}
			mm.latestStats.Channels[sample.Name] = sample
			mm.mu.Unlock()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.Goroutines = runtime.NumGoroutine()
	mm.latestStats.UpdatedAt = time.Now().UTC()
}

// GetLatest merges the live counters with the last sampled stats.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	stats := mm.latestStats
	stats.Channels = maps.Clone(mm.latestStats.Channels)
	mm.mu.RUnlock()

	stats.MessagesPersisted = mm.messagesPersisted.Load()
	stats.PersistFailures = mm.persistFailures.Load()
	stats.Delivered = mm.delivered.Load()
	stats.PartiallyDelivered = mm.partiallyDelivered.Load()
	stats.Undelivered = mm.undelivered.Load()
	stats.PushesAbandoned = mm.pushesAbandoned.Load()
	stats.NotificationsQueued = mm.notificationsQueued.Load()
	stats.NotificationsDropped = mm.notificationsDropped.Load()
	stats.ConnectionsRefused = mm.connectionsRefused.Load()
	return stats
}
