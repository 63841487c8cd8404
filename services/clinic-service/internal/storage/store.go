// Package storage defines the tenant-scoped data access used by the clinic
// service. A Tx is bound to one company when it is opened, so no query can be
// built without a tenant.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

type Store interface {
	// InTenant runs fn in one serializable transaction scoped to companyID.
	// fn may be re-run when the database reports a serialization failure, so it
	// must not leak side effects outside tx.
	InTenant(ctx context.Context, companyID string, fn func(ctx context.Context, tx Tx) error) error

	// SettledCompanies lists companies that have at least one paid or deducted
	// appointment.
	SettledCompanies(ctx context.Context) ([]string, error)
}

type ListFilter struct {
	From           time.Time
	To             time.Time
	ProfessionalID string
	Status         model.Status
	Limit          int
}

type Tx interface {
	CompanyID() string

	InsertAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// GetAppointmentForUpdate locks the row until the transaction ends.
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a *model.Appointment) error
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	LockProfessionalDay(ctx context.Context, professionalID string, day time.Time) error
	ActiveAppointmentsBetween(ctx context.Context, professionalID string, from, to time.Time, excludeID string) ([]model.Appointment, error)
	// SettledAppointments pages paid or deducted appointments ordered by ID.
	SettledAppointments(ctx context.Context, afterID string, limit int) ([]model.Appointment, error)

	// ClaimIdempotencyKey returns the appointment already created under key, or
	// "" after reserving key for this transaction.
	ClaimIdempotencyKey(ctx context.Context, key string) (string, error)
	FinalizeIdempotencyKey(ctx context.Context, key, appointmentID string) error

	GetProcedure(ctx context.Context, id string) (model.Procedure, error)
	SupplyLines(ctx context.Context, procedureID string) ([]model.SupplyLine, error)
	GetPatient(ctx context.Context, id string) (model.Patient, error)

	DecrementStock(ctx context.Context, itemID string, qty decimal.Decimal) (model.InventoryItem, error)
	InsertStockMovement(ctx context.Context, m *model.StockMovement) error

	InsertTransaction(ctx context.Context, t *model.Transaction) error
	AppointmentTransactions(ctx context.Context, appointmentID string, typ model.TransactionType, category string) ([]model.Transaction, error)
	DeleteTransactions(ctx context.Context, ids []string) error
	DeleteTransactionsByCategory(ctx context.Context, typ model.TransactionType, category string) (int64, error)

	InsertActivity(ctx context.Context, a *model.Activity) error
}

// ErrDuplicate is returned when a write would break a uniqueness rule, such
// as a second INCOME entry for one appointment.
var ErrDuplicate = errors.New("duplicate record")
