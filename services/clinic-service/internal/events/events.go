// Package events holds the topics and payloads the clinic service emits after
// a committed lifecycle change.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicCalendarPush   = "calendar.appointment.push.v1"
	TopicCalendarDelete = "calendar.appointment.delete.v1"
	TopicLowStock       = "inventory.low_stock.v1"
)

type CalendarAppointment struct {
	AppointmentID   string    `json:"appointment_id"`
	CompanyID       string    `json:"company_id"`
	PatientID       string    `json:"patient_id"`
	ProfessionalID  string    `json:"professional_id"`
	ProcedureID     string    `json:"procedure_id"`
	Status          string    `json:"status"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ExternalEventID string    `json:"external_event_id,omitempty"`
}

type LowStock struct {
	CompanyID       string          `json:"company_id"`
	InventoryItemID string          `json:"inventory_item_id"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit"`
	CurrentStock    decimal.Decimal `json:"current_stock"`
	MinStock        decimal.Decimal `json:"min_stock"`
	AppointmentID   string          `json:"appointment_id"`
}
