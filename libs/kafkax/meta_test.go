package kafkax

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestEventMetaHeadersRoundTrip(t *testing.T) {
	meta := EventMeta{EventID: "evt-1", EventType: "calendar.appointment.push.v1", CompanyID: "co-1"}
	msg := kafka.Message{Topic: "ignored", Headers: meta.Headers()}

	got := ExtractEventMeta(msg)
	if got != meta {
		t.Fatalf("expected %+v, got %+v", meta, got)
	}
}

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "inventory.low_stock.v1", Key: []byte("item-9")}
	got := ExtractEventMeta(msg)
	if got.EventID != "item-9" || got.EventType != "inventory.low_stock.v1" || got.CompanyID != "" {
		t.Fatalf("unexpected meta: %+v", got)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers("kafka:9092, ,kafka-2:9092")
	if len(got) != 2 || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
}
