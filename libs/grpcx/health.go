package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/agendave/agendave/libs/runtime"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// WatchReadiness flips the health server between SERVING and NOT_SERVING based on
// the same checks backing /readyz, until ctx is done.
func WatchReadiness(ctx context.Context, hs *health.Server, logger *slog.Logger, every time.Duration, checks ...runtime.ReadyCheck) {
	if every <= 0 {
		every = 10 * time.Second
	}
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if failures := runtime.RunChecks(ctx, checks); len(failures) > 0 {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("readiness degraded", "failures", failures)
		}
		hs.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
