package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/reconcile"
)

// ReportRepository persists drift reports written by the reconcile runner.
type ReportRepository struct {
	pool *db.Pool
}

func NewReportRepository(pool *db.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

func (r *ReportRepository) SaveReport(ctx context.Context, rep reconcile.Report) error {
	if len(rep.Findings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range rep.Findings {
		batch.Queue(`
			INSERT INTO reconciliation_reports
				(run_id, company_id, appointment_id, problem, correct_supply_cost, current_amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rep.RunID, rep.CompanyID, f.AppointmentID, string(f.Problem), f.CorrectSupplyCost, f.CurrentAmount, rep.CreatedAt)
	}
	err := r.pool.RunInTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("save reconciliation report: %w", err)
	}
	return nil
}
