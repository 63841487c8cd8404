package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/libs/runtime"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/alerts"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/events"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/reconcile"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage/postgres"
)

func main() {
	_ = config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "clinic-worker")
	port, err := config.Port("PORT", "8081")
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
	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	store := postgres.New(pool)
	inboxRepo := inbox.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "clinic-worker")

	var sync calendar.Sync
	switch strings.ToLower(config.String("CALENDAR_PROVIDER", "noop")) {
	case "webhook":
		sync = calendar.NewWebhookSync(config.String("CALENDAR_WEBHOOK_URL", ""), config.String("CALENDAR_WEBHOOK_TOKEN", ""))
	default:
		sync = calendar.NewNoopSync()
	}
	delivery := calendar.NewDelivery(sync, calendar.NewRepository(pool), logger)

	startConsumer := func(topic string, handler consumer.Handler) {
		if brokers == "" {
			return
		}
		c := consumer.New(logger, inboxRepo, consumer.Config{Brokers: brokers, GroupID: groupID, Topic: topic}, handler)
		go c.Run(ctx)
	}
	if brokers == "" {
		logger.Warn("event consumers disabled (no kafka brokers configured)")
	}
	startConsumer(events.TopicCalendarPush, delivery.Handle)
	startConsumer(events.TopicCalendarDelete, delivery.Handle)
	startConsumer(events.TopicLowStock, alerts.Handler(alerts.NewRepository(pool), logger))

	if config.Bool("RECONCILE_ENABLED", true) {
		engine := reconcile.NewEngine(store, logger, reconcile.WithBatchSize(config.Int("RECONCILE_BATCH_SIZE", 100)))
		runner := reconcile.NewRunner(engine, store, pool, postgres.NewReportRepository(pool), logger, reconcile.RunnerConfig{
			Interval:        config.Duration("RECONCILE_INTERVAL", time.Hour),
			AdvisoryLockKey: int64(config.Int("RECONCILE_LOCK_KEY", 0)),
		})
		go runner.Run(ctx)
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "clinic-worker"),
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
