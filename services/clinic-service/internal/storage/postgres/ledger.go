package postgres

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

const transactionColumns = `
	id::text, company_id::text, date, description, amount, type, category, status, payment_method,
	COALESCE(appointment_id::text, ''), COALESCE(patient_id::text, ''), COALESCE(professional_id::text, ''), created_at`

func (t *tenantTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	tr.CompanyID = t.companyID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions
			(company_id, date, description, amount, type, category, status, payment_method, appointment_id, patient_id, professional_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, '')::uuid, NULLIF($10, '')::uuid, NULLIF($11, '')::uuid)
		RETURNING id::text, created_at
	`, t.companyID, tr.Date, tr.Description, tr.Amount, string(tr.Type), tr.Category, tr.Status, tr.PaymentMethod,
		tr.AppointmentID, tr.PatientID, tr.ProfessionalID).Scan(&tr.ID, &tr.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("insert %s transaction for appointment %s: %w", tr.Type, tr.AppointmentID, storage.ErrDuplicate)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *tenantTx) AppointmentTransactions(ctx context.Context, appointmentID string, typ model.TransactionType, category string) ([]model.Transaction, error) {
	if !validID(appointmentID) {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE company_id = $1
			AND appointment_id = $2
			AND type = $3
			AND ($4 = '' OR category = $4)
		ORDER BY created_at ASC, id ASC
	`, t.companyID, appointmentID, string(typ), category)
	if err != nil {
		return nil, fmt.Errorf("appointment transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var tr model.Transaction
		var typ string
		if err := rows.Scan(&tr.ID, &tr.CompanyID, &tr.Date, &tr.Description, &tr.Amount, &typ, &tr.Category, &tr.Status,
			&tr.PaymentMethod, &tr.AppointmentID, &tr.PatientID, &tr.ProfessionalID, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Type = model.TransactionType(typ)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *tenantTx) DeleteTransactions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `
		DELETE FROM transactions
		WHERE company_id = $1 AND id::text = ANY($2)
	`, t.companyID, ids)
	if err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	return nil
}

func (t *tenantTx) DeleteTransactionsByCategory(ctx context.Context, typ model.TransactionType, category string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM transactions
		WHERE company_id = $1 AND type = $2 AND category = $3
	`, t.companyID, string(typ), category)
	if err != nil {
		return 0, fmt.Errorf("delete %s transactions: %w", category, err)
	}
	return tag.RowsAffected(), nil
}

func (t *tenantTx) InsertActivity(ctx context.Context, a *model.Activity) error {
	a.CompanyID = t.companyID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointment_activities (company_id, appointment_id, actor_id, action, from_status, to_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`, t.companyID, a.AppointmentID, a.ActorID, a.Action, string(a.FromStatus), string(a.ToStatus), a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}
