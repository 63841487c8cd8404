package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

type fakeReader struct {
	appts    []model.Appointment
	locked   []time.Time
	gotFrom  time.Time
	gotTo    time.Time
	queryErr error
}

func (f *fakeReader) LockProfessionalDay(_ context.Context, _ string, day time.Time) error {
	f.locked = append(f.locked, day)
	return nil
}

func (f *fakeReader) ActiveAppointmentsBetween(_ context.Context, professionalID string, from, to time.Time, excludeID string) ([]model.Appointment, error) {
	f.gotFrom, f.gotTo = from, to
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []model.Appointment
	for _, a := range f.appts {
		if a.ProfessionalID == professionalID && a.ID != excludeID && !a.Date.Before(from) && a.Date.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func at(t *testing.T, loc *time.Location, hhmm string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", "2025-03-10 "+hhmm, loc)
	require.NoError(t, err)
	return ts
}

func TestBoundaryExclusiveOverlap(t *testing.T) {
	loc := time.UTC
	d := New(loc)
	r := &fakeReader{appts: []model.Appointment{{
		ID: "a1", ProfessionalID: "p1", Date: at(t, loc, "10:00"), DurationMinutes: 30, Status: model.StatusScheduled,
	}}}
	ctx := context.Background()

	assert.NoError(t, d.Check(ctx, r, "p1", at(t, loc, "10:30"), 30, ""))
	assert.NoError(t, d.Check(ctx, r, "p1", at(t, loc, "09:30"), 30, ""))

	err := d.Check(ctx, r, "p1", at(t, loc, "10:29"), 2, "")
	require.ErrorIs(t, err, model.ErrSchedulingConflict)
	var ce *model.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "a1", ce.AppointmentID)
	assert.Equal(t, at(t, loc, "10:30"), ce.End)
}

func TestOnlyActiveAppointmentsConflict(t *testing.T) {
	loc := time.UTC
	d := New(loc)
	r := &fakeReader{appts: []model.Appointment{
		{ID: "done", ProfessionalID: "p1", Date: at(t, loc, "10:00"), DurationMinutes: 60, Status: model.StatusCompleted},
		{ID: "gone", ProfessionalID: "p1", Date: at(t, loc, "10:00"), DurationMinutes: 60, Status: model.StatusCanceled},
		{ID: "other", ProfessionalID: "p2", Date: at(t, loc, "10:00"), DurationMinutes: 60, Status: model.StatusConfirmed},
	}}
	assert.NoError(t, d.Check(context.Background(), r, "p1", at(t, loc, "10:15"), 30, ""))
}

func TestExcludeSelfOnEdit(t *testing.T) {
	loc := time.UTC
	d := New(loc)
	r := &fakeReader{appts: []model.Appointment{
		{ID: "a1", ProfessionalID: "p1", Date: at(t, loc, "10:00"), DurationMinutes: 30, Status: model.StatusConfirmed},
	}}
	assert.NoError(t, d.Check(context.Background(), r, "p1", at(t, loc, "10:10"), 30, "a1"))
}

func TestDayBoundsFollowClinicTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	d := New(loc)
	r := &fakeReader{}

	// 01:30 UTC is still the previous evening in Sao Paulo.
	start := time.Date(2025, 3, 11, 1, 30, 0, 0, time.UTC)
	require.NoError(t, d.Check(context.Background(), r, "p1", start, 30, ""))

	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, loc), r.gotFrom)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, loc), r.gotTo)
	require.Len(t, r.locked, 1)
	assert.True(t, r.locked[0].Equal(r.gotFrom))
}

func TestReaderErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	err := New(nil).Check(context.Background(), &fakeReader{queryErr: boom}, "p1", time.Now(), 30, "")
	assert.ErrorIs(t, err, boom)
}
