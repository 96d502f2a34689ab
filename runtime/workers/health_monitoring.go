package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"smartsolve/observability"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker samples the hub process and publishes the result.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	statsChan      chan<- observability.ProcessStats
	metricInterval time.Duration
	pid            int32
}

func NewHealthMonitoringWorker(log *slog.Logger, statsChan chan<- observability.ProcessStats,
	metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		statsChan:      statsChan,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process sampling")
			return nil
		case <-ticker.C:
			stats, err := w.sample(p)
			if err != nil {
				w.log.Error("Error while sampling process", "pid", w.pid, "error", err)
				continue
			}
			select {
			case w.statsChan <- stats:
			default:
				w.log.Debug("Process sample dropped, previous one not consumed yet")
			}
		}
	}
}

func (w *HealthMonitoringWorker) sample(p *process.Process) (observability.ProcessStats, error) {
	cpu, err := p.CPUPercent()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	threads, err := p.NumThreads()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	return observability.ProcessStats{
		PID:           w.pid,
		CPUPercent:    cpu,
		MemoryPercent: ram,
		RSSMb:         mem.RSS / 1024 / 1024,
		Threads:       threads,
	}, nil
}
