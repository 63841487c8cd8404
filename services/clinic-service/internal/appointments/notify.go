package appointments

import (
	"context"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/events"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/inventory"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/outbox"
)

// Notifications are enqueued after commit. Failures are logged and dropped:
// they never undo or fail the operation that triggered them.

func (s *Service) notifyCalendar(ctx context.Context, appt model.Appointment) {
	topic := events.TopicCalendarPush
	if appt.Status == model.StatusCanceled {
		topic = events.TopicCalendarDelete
	}
	payload := events.CalendarAppointment{
		AppointmentID:  appt.ID,
		CompanyID:      appt.CompanyID,
		PatientID:      appt.PatientID,
		ProfessionalID: appt.ProfessionalID,
		ProcedureID:    appt.ProcedureID,
		Status:         string(appt.Status),
		Start:          appt.Date,
		End:            appt.End(),
	}
	if appt.ExternalCalendarEventID != nil {
		payload.ExternalEventID = *appt.ExternalCalendarEventID
	}
	s.enqueue(ctx, "appointment", appt.ID, appt.CompanyID, topic, payload)
}

func (s *Service) notifyLowStock(ctx context.Context, alerts []inventory.LowStockAlert) {
	for _, a := range alerts {
		s.enqueue(ctx, "inventory_item", a.InventoryItemID, a.CompanyID, events.TopicLowStock, events.LowStock{
			CompanyID:       a.CompanyID,
			InventoryItemID: a.InventoryItemID,
			Name:            a.Name,
			Unit:            a.Unit,
			CurrentStock:    a.CurrentStock,
			MinStock:        a.MinStock,
			AppointmentID:   a.AppointmentID,
		})
	}
}

func (s *Service) enqueue(ctx context.Context, aggregateType, aggregateID, companyID, topic string, payload any) {
	if s.queue == nil {
		return
	}
	evt, err := outbox.NewEvent(aggregateType, aggregateID, companyID, topic, payload)
	if err == nil {
		err = s.queue.Enqueue(ctx, evt)
	}
	if err != nil {
		s.logger.Warn("event enqueue failed",
			"err", err,
			"event_type", topic,
			"aggregate_id", aggregateID,
			"company_id", companyID,
		)
	}
}
