package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter flips the serving status of the booking service with the
// result of a readiness probe.
type HealthReporter struct {
	srv      *health.Server
	probe    func(ctx context.Context) error
	interval time.Duration
	log      *slog.Logger
}

func NewHealthReporter(srv *health.Server, probe func(ctx context.Context) error, interval time.Duration, log *slog.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &HealthReporter{
		srv:      srv,
		probe:    probe,
		interval: interval,
		log:      log.With(slog.String("component", "health")),
	}
}

// Check probes once and publishes the result for the overall server and the
// booking service.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := h.probe(ctx); err != nil {
		h.log.Warn("readiness probe failed", slog.Any("err", err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
	return st
}

// Run probes on every tick until ctx is done, then marks everything as not
// serving.
func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return nil
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
