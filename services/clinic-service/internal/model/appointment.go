package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusScheduled       Status = "SCHEDULED"
	StatusConfirmed       Status = "CONFIRMED"
	StatusCompleted       Status = "COMPLETED"
	StatusCanceled        Status = "CANCELED"
)

// Appointment is a scheduled procedure for one patient with one professional.
// StockDeducted records that the inventory deduction and the supply expense
// have been applied; it never goes back to false.
type Appointment struct {
	ID                      string
	CompanyID               string
	PatientID               string
	ProfessionalID          string
	ProcedureID             string
	Date                    time.Time
	DurationMinutes         int
	Price                   decimal.Decimal
	Status                  Status
	Paid                    bool
	StockDeducted           bool
	Notes                   string
	ExternalCalendarEventID *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (a Appointment) End() time.Time {
	return a.Date.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Settled appointments carry derived ledger entries and are the ones
// reconciliation looks at.
func (a Appointment) Settled() bool {
	return a.Paid || a.StockDeducted
}

type Patient struct {
	ID        string
	CompanyID string
	Name      string
}

// Activity is the audit row written for every lifecycle change.
type Activity struct {
	ID            string
	CompanyID     string
	AppointmentID string
	ActorID       string
	Action        string
	FromStatus    Status
	ToStatus      Status
	CreatedAt     time.Time
}

const (
	ActionCreated    = "appointment.created"
	ActionUpdated    = "appointment.updated"
	ActionTransition = "appointment.status_changed"
	ActionPaid       = "appointment.paid"
)
