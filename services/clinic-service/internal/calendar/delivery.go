package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/events"
)

// EventIDs stores the external calendar event ID on the appointment.
type EventIDs interface {
	SetExternalEventID(ctx context.Context, companyID, appointmentID string, externalID *string) error
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) SetExternalEventID(ctx context.Context, companyID, appointmentID string, externalID *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET external_calendar_event_id = $3
		WHERE company_id = $1 AND id = $2
	`, companyID, appointmentID, externalID)
	return err
}

// Delivery turns calendar topics into Sync calls.
type Delivery struct {
	sync   Sync
	ids    EventIDs
	logger *slog.Logger
}

func NewDelivery(sync Sync, ids EventIDs, logger *slog.Logger) *Delivery {
	return &Delivery{sync: sync, ids: ids, logger: logger}
}

func (d *Delivery) Handle(ctx context.Context, msg kafka.Message) error {
	var appt events.CalendarAppointment
	if err := json.Unmarshal(msg.Value, &appt); err != nil {
		d.logger.Error("invalid calendar payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if appt.AppointmentID == "" || appt.CompanyID == "" {
		d.logger.Error("calendar payload missing ids", "topic", msg.Topic)
		return nil
	}

	switch msg.Topic {
	case events.TopicCalendarPush:
		externalID, err := d.sync.PushAppointment(ctx, appt)
		if err != nil {
			return fmt.Errorf("push appointment %s: %w", appt.AppointmentID, err)
		}
		if externalID != "" && externalID != appt.ExternalEventID {
			if err := d.ids.SetExternalEventID(ctx, appt.CompanyID, appt.AppointmentID, &externalID); err != nil {
				return fmt.Errorf("store external event id: %w", err)
			}
		}
	case events.TopicCalendarDelete:
		if err := d.sync.DeleteEvent(ctx, appt); err != nil {
			return fmt.Errorf("delete event for %s: %w", appt.AppointmentID, err)
		}
		if appt.ExternalEventID != "" {
			if err := d.ids.SetExternalEventID(ctx, appt.CompanyID, appt.AppointmentID, nil); err != nil {
				return fmt.Errorf("clear external event id: %w", err)
			}
		}
	default:
		d.logger.Warn("unexpected calendar topic", "topic", msg.Topic)
		return nil
	}

	d.logger.Info("calendar synced",
		"appointment_id", appt.AppointmentID,
		"company_id", appt.CompanyID,
		"topic", msg.Topic,
		"provider", d.sync.ProviderID(),
	)
	return nil
}
