// Package conflict decides whether a proposed booking overlaps an active
// appointment of the same professional.
package conflict

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

// Reader is the slice of a tenant transaction the detector needs.
// LockProfessionalDay serialises concurrent bookings for one professional and
// day until the transaction ends.
type Reader interface {
	LockProfessionalDay(ctx context.Context, professionalID string, day time.Time) error
	ActiveAppointmentsBetween(ctx context.Context, professionalID string, from, to time.Time, excludeID string) ([]model.Appointment, error)
}

type Detector struct {
	loc *time.Location
}

// New builds a detector whose calendar days follow loc (the clinic's timezone).
func New(loc *time.Location) *Detector {
	if loc == nil {
		loc = time.UTC
	}
	return &Detector{loc: loc}
}

func (d *Detector) Location() *time.Location { return d.loc }

// DayBounds returns [midnight, next midnight) of t's clinic calendar day.
func (d *Detector) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(d.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc)
	return start, start.AddDate(0, 0, 1)
}

// Check returns a *model.ConflictError for the first active appointment that
// overlaps [start, start+duration), or nil. excludeID skips the appointment
// being edited.
func (d *Detector) Check(ctx context.Context, r Reader, professionalID string, start time.Time, durationMinutes int, excludeID string) error {
	dayStart, dayEnd := d.DayBounds(start)
	if err := r.LockProfessionalDay(ctx, professionalID, dayStart); err != nil {
		return err
	}
	existing, err := r.ActiveAppointmentsBetween(ctx, professionalID, dayStart, dayEnd, excludeID)
	if err != nil {
		return err
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	for _, appt := range existing {
		if appt.ID == excludeID || !lifecycle.IsActive(appt.Status) {
			continue
		}
		if Overlaps(start, end, appt.Date, appt.End()) {
			return &model.ConflictError{AppointmentID: appt.ID, Start: appt.Date, End: appt.End()}
		}
	}
	return nil
}

// Overlaps treats both windows as half-open, so touching boundaries do not
// overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
