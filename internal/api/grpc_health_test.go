package api

import (
	"context"
	"errors"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServerFollowsDependencies(t *testing.T) {
	var dbErr error
	h := NewHealthServer(map[string]Pinger{
		"postgres": func(ctx context.Context) error { return dbErr },
		"redis":    func(ctx context.Context) error { return nil },
	}, time.Minute)

	ctx := context.Background()
	if status := h.Check(ctx); status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", status)
	}
	resp, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: StockServiceName})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health service must report SERVING, got %v %v", resp, err)
	}

	dbErr = errors.New("connection refused")
	if status := h.Check(ctx); status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", status)
	}
	resp, err = h.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("overall status must follow dependencies, got %v %v", resp, err)
	}
}
