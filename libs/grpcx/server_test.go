package grpcx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthFollowsReadyChecks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(logger)
	RegisterHealth(ctx, srv, "clinic-service", time.Hour, runtime.ReadyCheck{
		Name:  "db",
		Check: func(context.Context) error { return errors.New("down") },
	})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := Dial("passthrough:///bufnet", DialOptions{
		TransportCredentials: grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	st, err := CheckHealth(callCtx, conn, "clinic-service")
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", st)
	}
}
