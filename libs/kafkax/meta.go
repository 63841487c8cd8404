package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderCompanyID = "company_id"
)

// EventMeta is the metadata carried on every clinic event.
type EventMeta struct {
	EventID   string
	EventType string
	CompanyID string
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	eventID := HeaderValue(msg.Headers, HeaderEventID)
	eventType := HeaderValue(msg.Headers, HeaderEventType)
	if eventID == "" {
		eventID = string(msg.Key)
	}
	if eventType == "" {
		eventType = msg.Topic
	}
	return EventMeta{
		EventID:   eventID,
		EventType: eventType,
		CompanyID: HeaderValue(msg.Headers, HeaderCompanyID),
	}
}

func (m EventMeta) Headers() []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(m.EventID)},
		{Key: HeaderEventType, Value: []byte(m.EventType)},
	}
	if m.CompanyID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCompanyID, Value: []byte(m.CompanyID)})
	}
	return headers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
