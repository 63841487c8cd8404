package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

// Locker elects one runner across instances. db.Pool satisfies it.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

type Report struct {
	RunID     string
	CompanyID string
	Findings  []Finding
	CreatedAt time.Time
}

type ReportWriter interface {
	SaveReport(ctx context.Context, r Report) error
}

type RunnerConfig struct {
	Interval        time.Duration
	AdvisoryLockKey int64
}

// Runner diagnoses every company with settled appointments on an interval
// and stores what it finds. It never repairs anything.
type Runner struct {
	engine  *Engine
	store   storage.Store
	locker  Locker
	reports ReportWriter
	logger  *slog.Logger
	cfg     RunnerConfig
}

// NewRunner builds a runner. A nil locker runs without election; a nil
// reports writer only logs.
func NewRunner(engine *Engine, store storage.Store, locker Locker, reports ReportWriter, logger *slog.Logger, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 7341001
	}
	return &Runner{engine: engine, store: store, locker: locker, reports: reports, logger: logger, cfg: cfg}
}

func (r *Runner) Run(ctx context.Context) {
	if r.locker != nil {
		release, ok := r.acquire(ctx)
		if !ok {
			return
		}
		defer release()
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

// acquire blocks until this instance holds the advisory lock or ctx ends.
func (r *Runner) acquire(ctx context.Context) (func(), bool) {
	for {
		release, ok, err := r.locker.TryAdvisoryLock(ctx, r.cfg.AdvisoryLockKey)
		wait := 30 * time.Second
		switch {
		case err != nil:
			r.logger.Error("reconcile: failed to acquire advisory lock", "err", err)
			wait = 5 * time.Second
		case ok:
			r.logger.Info("reconcile: advisory lock acquired", "lock_key", r.cfg.AdvisoryLockKey)
			return release, true
		default:
			r.logger.Info("reconcile: advisory lock held by another instance", "lock_key", r.cfg.AdvisoryLockKey)
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(wait):
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("reconcile: run failed", "err", err)
	}
}

// RunOnce diagnoses every company once and returns the number of problems
// found. A failing company is logged and skipped.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	companies, err := r.store.SettledCompanies(ctx)
	if err != nil {
		return 0, err
	}

	runID := uuid.NewString()
	total := 0
	for _, companyID := range companies {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		findings, err := r.engine.Diagnose(ctx, companyID)
		if err != nil {
			r.logger.Warn("reconcile: diagnose failed", "err", err, "company_id", companyID)
			continue
		}
		total += len(findings)
		if len(findings) == 0 {
			continue
		}
		r.logger.Warn("reconcile: ledger drift detected", "company_id", companyID, "problems", len(findings), "run_id", runID)
		if r.reports == nil {
			continue
		}
		report := Report{RunID: runID, CompanyID: companyID, Findings: findings, CreatedAt: r.engine.now()}
		if err := r.reports.SaveReport(ctx, report); err != nil {
			r.logger.Warn("reconcile: save report failed", "err", err, "company_id", companyID, "run_id", runID)
		}
	}
	return total, nil
}
