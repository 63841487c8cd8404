package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/events"
)

func TestWebhookPushReturnsExternalID(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var got events.CalendarAppointment
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"external_event_id":"gcal-1"}`))
	}))
	defer srv.Close()

	s := NewWebhookSync(srv.URL+"/", "secret")
	id, err := s.PushAppointment(context.Background(), events.CalendarAppointment{AppointmentID: "a1", CompanyID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, "gcal-1", id)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/appointments/a1", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "c1", got.CompanyID)
}

func TestWebhookErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSync(srv.URL, "")
	_, err := s.PushAppointment(context.Background(), events.CalendarAppointment{AppointmentID: "a1"})
	assert.Error(t, err)
	assert.NoError(t, s.DeleteEvent(context.Background(), events.CalendarAppointment{AppointmentID: "a1"}), "a missing event is already deleted")

	_, err = NewWebhookSync("", "").PushAppointment(context.Background(), events.CalendarAppointment{})
	assert.Error(t, err)
}

type fakeSync struct {
	pushID  string
	err     error
	pushed  int
	deleted int
}

func (f *fakeSync) ProviderID() string { return "fake" }

func (f *fakeSync) PushAppointment(context.Context, events.CalendarAppointment) (string, error) {
	f.pushed++
	return f.pushID, f.err
}

func (f *fakeSync) DeleteEvent(context.Context, events.CalendarAppointment) error {
	f.deleted++
	return f.err
}

type idCall struct {
	appointmentID string
	externalID    *string
}

type fakeIDs struct {
	calls []idCall
}

func (f *fakeIDs) SetExternalEventID(_ context.Context, _, appointmentID string, externalID *string) error {
	f.calls = append(f.calls, idCall{appointmentID, externalID})
	return nil
}

func calendarMessage(t *testing.T, topic string, appt events.CalendarAppointment) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(appt)
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Value: raw}
}

func TestDeliveryStoresExternalID(t *testing.T) {
	s := &fakeSync{pushID: "gcal-9"}
	ids := &fakeIDs{}
	d := NewDelivery(s, ids, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := d.Handle(context.Background(), calendarMessage(t, events.TopicCalendarPush, events.CalendarAppointment{AppointmentID: "a1", CompanyID: "c1"}))
	require.NoError(t, err)
	require.Len(t, ids.calls, 1)
	assert.Equal(t, "gcal-9", *ids.calls[0].externalID)

	err = d.Handle(context.Background(), calendarMessage(t, events.TopicCalendarDelete, events.CalendarAppointment{AppointmentID: "a1", CompanyID: "c1", ExternalEventID: "gcal-9"}))
	require.NoError(t, err)
	assert.Equal(t, 1, s.deleted)
	require.Len(t, ids.calls, 2)
	assert.Nil(t, ids.calls[1].externalID)
}

func TestDeliveryPropagatesSyncFailure(t *testing.T) {
	d := NewDelivery(&fakeSync{err: errors.New("boom")}, &fakeIDs{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := d.Handle(context.Background(), calendarMessage(t, events.TopicCalendarPush, events.CalendarAppointment{AppointmentID: "a1", CompanyID: "c1"}))
	assert.Error(t, err)

	assert.NoError(t, d.Handle(context.Background(), kafka.Message{Topic: events.TopicCalendarPush, Value: []byte("not json")}))
}
