package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

const appointmentColumns = `
	id::text, company_id::text, patient_id::text, professional_id::text, procedure_id::text,
	date, duration_minutes, price, status, paid, stock_deducted, notes,
	external_calendar_event_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.CompanyID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.ProcedureID,
		&a.Date,
		&a.DurationMinutes,
		&a.Price,
		&status,
		&a.Paid,
		&a.StockDeducted,
		&a.Notes,
		&a.ExternalCalendarEventID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	a.Status = model.Status(status)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *tenantTx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	for field, id := range map[string]string{"patient_id": a.PatientID, "professional_id": a.ProfessionalID, "procedure_id": a.ProcedureID} {
		if !validID(id) {
			return model.Invalid(field, "must be a UUID")
		}
	}
	a.CompanyID = t.companyID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(company_id, patient_id, professional_id, procedure_id, date, duration_minutes, price, status, paid, stock_deducted, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id::text, created_at, updated_at
	`, t.companyID, a.PatientID, a.ProfessionalID, a.ProcedureID, a.Date, a.DurationMinutes, a.Price,
		string(a.Status), a.Paid, a.StockDeducted, a.Notes).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *tenantTx) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return t.getAppointment(ctx, id, "")
}

func (t *tenantTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return t.getAppointment(ctx, id, "FOR UPDATE")
}

func (t *tenantTx) getAppointment(ctx context.Context, id, lock string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, model.ErrNotFound)
	}
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND company_id = $2
		`+lock, id, t.companyID))
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment "+id)
	}
	return a, nil
}

func (t *tenantTx) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	for field, id := range map[string]string{"patient_id": a.PatientID, "professional_id": a.ProfessionalID, "procedure_id": a.ProcedureID} {
		if !validID(id) {
			return model.Invalid(field, "must be a UUID")
		}
	}
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET patient_id = $3,
			professional_id = $4,
			procedure_id = $5,
			date = $6,
			duration_minutes = $7,
			price = $8,
			status = $9,
			paid = $10,
			stock_deducted = $11,
			notes = $12,
			updated_at = now()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at
	`, a.ID, t.companyID, a.PatientID, a.ProfessionalID, a.ProcedureID, a.Date, a.DurationMinutes, a.Price,
		string(a.Status), a.Paid, a.StockDeducted, a.Notes).Scan(&a.UpdatedAt)
	if err != nil {
		return notFound(err, "update appointment "+a.ID)
	}
	return nil
}

func (t *tenantTx) ListAppointments(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	where := []string{"company_id = $1"}
	args := []any{t.companyID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("date < $%d", f.To)
	}
	if f.ProfessionalID != "" {
		if !validID(f.ProfessionalID) {
			return nil, nil
		}
		add("professional_id = $%d", f.ProfessionalID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := t.tx.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM appointments
		WHERE %s
		ORDER BY date ASC, id ASC
		LIMIT $%d
	`, appointmentColumns, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

// LockProfessionalDay takes a transaction-scoped advisory lock so two bookings
// for the same professional and day cannot both pass the overlap check.
func (t *tenantTx) LockProfessionalDay(ctx context.Context, professionalID string, day time.Time) error {
	key := t.companyID + "|" + professionalID + "|" + day.Format("2006-01-02")
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("lock agenda: %w", err)
	}
	return nil
}

func (t *tenantTx) ActiveAppointmentsBetween(ctx context.Context, professionalID string, from, to time.Time, excludeID string) ([]model.Appointment, error) {
	if !validID(professionalID) {
		return nil, model.Invalid("professional_id", "must be a UUID")
	}
	if !validID(excludeID) {
		excludeID = "00000000-0000-0000-0000-000000000000"
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE company_id = $1
			AND professional_id = $2
			AND status IN ('SCHEDULED', 'CONFIRMED')
			AND date >= $3
			AND date < $4
			AND id <> $5
		ORDER BY date ASC
	`, t.companyID, professionalID, from, to, excludeID)
	if err != nil {
		return nil, fmt.Errorf("active appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (t *tenantTx) SettledAppointments(ctx context.Context, afterID string, limit int) ([]model.Appointment, error) {
	if !validID(afterID) {
		afterID = "00000000-0000-0000-0000-000000000000"
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE company_id = $1
			AND (paid OR stock_deducted)
			AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`, t.companyID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("settled appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (t *tenantTx) ClaimIdempotencyKey(ctx context.Context, key string) (string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_idempotency_keys (company_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (company_id, idempotency_key) DO NOTHING
	`, t.companyID, key)
	if err != nil {
		return "", fmt.Errorf("claim idempotency key: %w", err)
	}

	var appointmentID string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM appointment_idempotency_keys
		WHERE company_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, t.companyID, key).Scan(&appointmentID)
	if err != nil {
		return "", fmt.Errorf("lock idempotency key: %w", err)
	}
	return appointmentID, nil
}

func (t *tenantTx) FinalizeIdempotencyKey(ctx context.Context, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointment_idempotency_keys
		SET appointment_id = $3
		WHERE company_id = $1 AND idempotency_key = $2
	`, t.companyID, key, appointmentID)
	if err != nil {
		return fmt.Errorf("finalize idempotency key: %w", err)
	}
	return nil
}
