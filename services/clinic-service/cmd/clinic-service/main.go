package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/libs/grpcx"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/libs/runtime"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/appointments"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/reconcile"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage/postgres"
)

func main() {
	_ = config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	store := postgres.New(pool)
	if config.Bool("AUTO_MIGRATE", true) {
		if err := store.Migrate(ctx); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
	}

	loc, err := config.Location("CLINIC_TIMEZONE", "America/Sao_Paulo")
	if err != nil {
		logger.Warn("falling back to UTC", "err", err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(pool)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	svc := appointments.NewService(store, outboxRepo, conflict.New(loc), logger)
	engine := reconcile.NewEngine(store, logger, reconcile.WithBatchSize(config.Int("RECONCILE_BATCH_SIZE", 100)))

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if url := config.String("JWKS_URL", ""); url != "" {
		verifier.JWKS = auth.NewJWKSClient(url, config.Duration("JWKS_CACHE_TTL", 5*time.Minute))
	}
	if verifier.Secret == "" && verifier.JWKS == nil {
		logger.Error("no token verification configured: set JWT_SECRET or JWKS_URL")
		panic("auth not configured")
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "clinic-rl")).WithKey(auth.PrincipalKey)
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).WithKey(auth.PrincipalKey).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Register(mux, verifier, rateLimitMW,
		handlers.NewAppointmentHandler(svc, logger),
		handlers.NewReconcileHandler(engine, logger),
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic")

	grpcServer := grpcx.NewServer(logger)
	grpcx.RegisterHealth(ctx, grpcServer, service, 10*time.Second, checks...)
	if err := grpcx.Serve(ctx, logger, grpcServer, grpcPort); err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
