// Package runtime owns the live side of the hub: who is connected, how events
// reach them, and the supervised workers behind notification fan-out.
// It holds no business rule beyond delivery.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"smartsolve/contract"
	"smartsolve/observability"
	"smartsolve/repositories"
	"smartsolve/runtime/workers"
)

type OrchestratorConfig struct {
	Registry         RegistryConfig
	PushTimeout      time.Duration
	NumberOfWorkers  int
	BufferSize       int
	MetricInterval   time.Duration
	RestartInterval  time.Duration
	DisableProcStats bool

	// LowCapacityThreshold is the queue fill percentage that triggers a warning.
	LowCapacityThreshold int
}

// Orchestrator wires the registry, router and fan-out together and runs
// their workers under one supervisor. One instance per process.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	registry   *Registry
	router     *Router
	fanout     *Fanout
	monitoring *observability.MonitoringManager
	supervisor *workers.Supervisor
	config     OrchestratorConfig
	extra      []contract.Worker
	started    bool
}

func NewOrchestrator(log *slog.Logger, notifications repositories.INotificationRepository,
	config OrchestratorConfig) *Orchestrator {
	monitoring := observability.NewMonitoringManager(log, config.MetricInterval)
	registry := NewRegistry(config.Registry, log)
	router := NewRouter(registry, monitoring, log, config.PushTimeout)
	return &Orchestrator{
		log:        log,
		registry:   registry,
		router:     router,
		fanout:     NewFanout(router, notifications, monitoring, log, config.NumberOfWorkers, config.BufferSize),
		monitoring: monitoring,
		supervisor: workers.NewSupervisor(log, config.RestartInterval),
		config:     config,
	}
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

func (o *Orchestrator) Router() *Router { return o.router }

func (o *Orchestrator) Fanout() *Fanout { return o.fanout }

func (o *Orchestrator) Monitoring() *observability.MonitoringManager { return o.monitoring }

// Supervise adds transport-side workers to the supervised set. Call it before Start.
func (o *Orchestrator) Supervise(worker ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, worker...)
}

// Start registers every worker and runs the supervisor.
// It blocks until ctx is canceled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		o.log.Warn("Orchestrator already started")
		return
	}
	o.started = true

	pool := o.fanout.Workers()
	o.supervisor.Add(pool...)
	o.supervisor.Add(o.monitoring)
	o.supervisor.Add(o.extra...)
	if o.config.MetricInterval > 0 {
		o.supervisor.Add(workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{o.fanout.Queue()},
			o.monitoring.ChannelChan(), o.config.MetricInterval, o.config.LowCapacityThreshold))
	}
	if !o.config.DisableProcStats && o.config.MetricInterval > 0 {
		o.supervisor.Add(workers.NewHealthMonitoringWorker(o.log, o.monitoring.ProcessChan(), o.config.MetricInterval))
	}
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "notification_workers", len(pool))
	o.supervisor.Run(ctx)
	o.log.Info("Orchestrator stopped")
}

// Stop signals every worker to stop. Start returns once they are done.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// Stats is the live view exposed on the debug server.
type Stats struct {
	Registry      RegistryStats                 `json:"registry"`
	Monitoring    observability.MonitoringStats `json:"monitoring"`
	FanoutQueue   int                           `json:"fanout_queue"`
	WorkerCrashes uint64                        `json:"worker_crashes"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Registry:      o.registry.Stats(),
		Monitoring:    o.monitoring.GetLatest(),
		FanoutQueue:   o.fanout.QueueLength(),
		WorkerCrashes: o.supervisor.Restarts(),
	}
}

var _ contract.IRegistry = (*Registry)(nil)
var _ contract.IRouter = (*Router)(nil)
