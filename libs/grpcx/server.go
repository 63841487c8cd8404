package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRecoveryInterceptor(logger),
			UnaryServerRequestIDInterceptor(),
		),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// RegisterHealth registers the standard health service. The overall status and
// the named service status follow the ready checks, re-evaluated every interval
// until ctx is done.
func RegisterHealth(ctx context.Context, srv *grpc.Server, service string, interval time.Duration, checks ...runtime.ReadyCheck) *health.Server {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if interval <= 0 {
		interval = 10 * time.Second
	}

	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if len(runtime.RunChecks(ctx, checks)) > 0 {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(service, st)
	}
	update()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				return
			case <-t.C:
				update()
			}
		}
	}()
	return hs
}

// Serve listens on port and stops gracefully once ctx is done.
func Serve(ctx context.Context, logger *slog.Logger, srv *grpc.Server, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	return nil
}

// CheckHealth asks a remote health service for the status of service ("" for
// the server as a whole).
func CheckHealth(ctx context.Context, conn *grpc.ClientConn, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
