package api

import (
	"context"
	"net"
	"time"

	"hotelstock/server/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StockServiceName имя сервиса в gRPC health
const StockServiceName = "hotelstock.StockService"

// Pinger проверка зависимости (Postgres, Redis)
type Pinger func(ctx context.Context) error

// HealthServer gRPC health-сервис, статус которого следует за проверками зависимостей
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]Pinger
	interval time.Duration
}

// NewHealthServer создает gRPC сервер с зарегистрированным health-сервисом
func NewHealthServer(checks map[string]Pinger, interval time.Duration) *HealthServer {
	h := &HealthServer{
		server:   grpc.NewServer(),
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.health.SetServingStatus(StockServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Check выполняет все проверки и выставляет статус
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, ping := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := ping(checkCtx)
		cancel()
		if err != nil {
			config.GetLogger().WithError(err).WithField("dependency", name).Warn("Проверка зависимости не прошла")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus(StockServiceName, status)
	h.health.SetServingStatus("", status)
	return status
}

// Serve слушает addr и обновляет статус до отмены ctx
func (h *HealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		h.Check(ctx)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.server.GracefulStop()
				return
			case <-ticker.C:
				h.Check(ctx)
			}
		}
	}()

	config.GetLogger().WithField("addr", addr).Info("gRPC health сервер запущен")
	return h.server.Serve(lis)
}
