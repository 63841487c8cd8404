// Package calendar delivers appointment changes to the external calendar
// collaborator. Delivery runs in the worker, off the request path.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/events"
)

type Sync interface {
	// PushAppointment creates or updates the calendar event and returns its
	// external ID.
	PushAppointment(ctx context.Context, appt events.CalendarAppointment) (string, error)
	DeleteEvent(ctx context.Context, appt events.CalendarAppointment) error
	ProviderID() string
}

// WebhookSync posts appointments as JSON to a calendar bridge.
type WebhookSync struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSync(url string, token string) *WebhookSync {
	return &WebhookSync{
		url:   strings.TrimRight(strings.TrimSpace(url), "/"),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *WebhookSync) ProviderID() string {
	return "calendar-webhook"
}

type pushResponse struct {
	ExternalEventID string `json:"external_event_id"`
}

func (s *WebhookSync) PushAppointment(ctx context.Context, appt events.CalendarAppointment) (string, error) {
	var out pushResponse
	if err := s.do(ctx, http.MethodPut, "/appointments/"+appt.AppointmentID, appt, &out); err != nil {
		return "", err
	}
	if out.ExternalEventID == "" {
		return appt.ExternalEventID, nil
	}
	return out.ExternalEventID, nil
}

func (s *WebhookSync) DeleteEvent(ctx context.Context, appt events.CalendarAppointment) error {
	return s.do(ctx, http.MethodDelete, "/appointments/"+appt.AppointmentID, appt, nil)
}

func (s *WebhookSync) do(ctx context.Context, method, path string, body any, out any) error {
	if s.url == "" {
		return errors.New("calendar webhook url not configured")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && method == http.MethodDelete {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar webhook returned %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

type NoopSync struct{}

func NewNoopSync() *NoopSync {
	return &NoopSync{}
}

func (NoopSync) ProviderID() string {
	return "calendar-noop"
}

func (NoopSync) PushAppointment(_ context.Context, appt events.CalendarAppointment) (string, error) {
	return appt.ExternalEventID, nil
}

func (NoopSync) DeleteEvent(context.Context, events.CalendarAppointment) error {
	return nil
}
