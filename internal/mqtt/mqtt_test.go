package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sweeney/captouch/internal/logic"
)

func testEvent(ch int, typ logic.EventType) logic.Event {
	return logic.Event{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:      typ,
		Channel:   ch,
		GPIO:      13,
		Value:     310,
		Threshold: 400,
	}
}

func TestFormatPayload(t *testing.T) {
	data, err := FormatPayload(testEvent(4, logic.EventTouch))
	if err != nil {
		t.Fatalf("FormatPayload: %v", err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Touch.Timestamp != "2024-03-01T12:00:00Z" {
		t.Errorf("unexpected timestamp: %q", p.Touch.Timestamp)
	}
	if p.Touch.Event != "TOUCH" {
		t.Errorf("expected TOUCH, got %q", p.Touch.Event)
	}
	if p.Touch.Channel != 4 || p.Touch.GPIO != 13 || p.Touch.Value != 310 || p.Touch.Threshold != 400 {
		t.Errorf("unexpected payload fields: %+v", p.Touch)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	data, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	})
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}

	var p SystemPayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.System.Event != "SHUTDOWN" || p.System.Reason != "SIGTERM" {
		t.Errorf("unexpected payload: %+v", p.System)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	data, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "HEARTBEAT",
	})
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["system"]["reason"]; ok {
		t.Error("empty reason should be omitted from JSON")
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"custom":true}`)
	data, err := FormatSystemPayload(SystemEvent{RawPayload: raw})
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", data)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(testEvent(1, logic.EventTouch)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := f.Publish(testEvent(1, logic.EventRelease)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	if len(f.Events) != 2 || len(f.Payloads) != 2 {
		t.Errorf("expected 2 recorded events, got %d/%d", len(f.Events), len(f.Payloads))
	}
	if f.Events[1].Type != logic.EventRelease {
		t.Errorf("expected RELEASE second, got %s", f.Events[1].Type)
	}
	if len(f.SystemEvents) != 1 {
		t.Errorf("expected 1 system event, got %d", len(f.SystemEvents))
	}

	f.Close()
	if !f.Closed {
		t.Error("Close should mark the publisher closed")
	}

	f.Reset()
	if len(f.Events) != 0 || f.Closed {
		t.Error("Reset should clear state")
	}
}
