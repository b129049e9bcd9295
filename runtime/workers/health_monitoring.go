package workers

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter is satisfied by the grpc health server.
type HealthReporter interface {
	SetServingStatus(service string, servingStatus grpc_health_v1.HealthCheckResponse_ServingStatus)
}

// HealthMonitoringWorker probes the store every interval and publishes the result to the health service.
type HealthMonitoringWorker struct {
	log      *slog.Logger
	reporter HealthReporter
	probe    func() error
	interval time.Duration
	serving  *bool
}

func NewHealthMonitoringWorker(log *slog.Logger, reporter HealthReporter, probe func() error,
	interval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, reporter: reporter, probe: probe, interval: interval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.check()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

// check only logs transitions.
func (w *HealthMonitoringWorker) check() {
	err := w.probe()
	serving := err == nil
	if w.serving != nil && *w.serving == serving {
		return
	}
	w.serving = &serving

	if serving {
		w.log.Info("Store healthy, serving")
		w.reporter.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		return
	}
	w.log.Error("Store probe failed, not serving", "error", err)
	w.reporter.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}
