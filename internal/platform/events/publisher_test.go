package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestBuildPublishing(t *testing.T) {
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	msg, err := buildPublishing(Event{
		Type:          AppointmentBooked,
		AppointmentID: "a-1",
		DoctorID:      "d-1",
		Date:          "2025-06-05",
		Time:          "11:00",
		OccurredAt:    at,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ContentType != "application/json" {
		t.Errorf("expected application/json, got %s", msg.ContentType)
	}
	if msg.DeliveryMode != amqp.Persistent {
		t.Errorf("expected persistent delivery, got %d", msg.DeliveryMode)
	}
	if msg.Type != AppointmentBooked {
		t.Errorf("expected type %s, got %s", AppointmentBooked, msg.Type)
	}
	if msg.MessageId == "" {
		t.Error("expected a generated message id")
	}

	var decoded Event
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded.AppointmentID != "a-1" || decoded.Time != "11:00" {
		t.Errorf("unexpected body: %+v", decoded)
	}
	if decoded.ID != msg.MessageId {
		t.Errorf("body id %s does not match message id %s", decoded.ID, msg.MessageId)
	}
	if !decoded.OccurredAt.Equal(at) {
		t.Errorf("expected occurred_at %v, got %v", at, decoded.OccurredAt)
	}
}

func TestBuildPublishing_RequiresType(t *testing.T) {
	if _, err := buildPublishing(Event{AppointmentID: "a-1"}); err == nil {
		t.Error("expected error for missing event type")
	}
}

func TestBuildPublishing_DefaultsTimestamp(t *testing.T) {
	msg, err := buildPublishing(Event{Type: AppointmentCancelled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp to default to now")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), Event{Type: AppointmentBooked}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	r.Publish(context.Background(), Event{Type: AppointmentBooked})
	r.Publish(context.Background(), Event{Type: AppointmentCancelled})

	got := r.Published()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[1].Type != AppointmentCancelled {
		t.Errorf("expected second event %s, got %s", AppointmentCancelled, got[1].Type)
	}

	r.Err = errors.New("broker down")
	if err := r.Publish(context.Background(), Event{Type: AppointmentBooked}); err == nil {
		t.Error("expected configured error")
	}
	if len(r.Published()) != 2 {
		t.Error("failed publish should not be recorded")
	}
}

func TestAMQPPublisher_CloseNil(t *testing.T) {
	var p *AMQPPublisher
	if err := p.Close(); err != nil {
		t.Errorf("expected nil error closing nil publisher, got %v", err)
	}
}
