package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sweeney/captouch/hw"
	"github.com/sweeney/captouch/internal/logic"
	"github.com/sweeney/captouch/internal/mqtt"
	"github.com/sweeney/captouch/touch"
)

// TestIntegrationFullFlow drives the complete path with fakes: a touch
// interrupt fans out through the controller to the channel subscription,
// the monitor turns it into a TOUCH event, a later polled sample releases
// it, and both events end up as MQTT payloads.
func TestIntegrationFullFlow(t *testing.T) {
	fake := hw.NewFake()
	for i := 0; i < hw.NumChannels; i++ {
		fake.SetFiltered(i, 600)
	}

	ctrl := touch.New(fake, touch.DefaultConfig())
	if err := ctrl.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer ctrl.Dispose()

	ch, err := ctrl.OpenChannel(4, touch.ChannelConfig{Select: touch.SelectByChannel})
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	defer ch.Close()
	if ch.Threshold() != 400 { // 600 * 2/3
		t.Fatalf("expected calibrated threshold 400, got %d", ch.Threshold())
	}

	publisher := mqtt.NewFakePublisher()
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	monitor := logic.NewMonitor(200*time.Millisecond, startTime)
	monitor.Track(ch.Index(), ch.GPIO(), ch.Threshold())

	// Interrupt deliveries land here, like the daemon's touches channel.
	var inputs []logic.Input
	now := startTime
	if err := ch.SubscribeValueChanged(func(c *touch.Channel, v uint16) {
		inputs = append(inputs, logic.Input{Channel: c.Index(), Value: v, Time: now})
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Finger lands: counter drops, hardware raises the interrupt.
	fake.SetFiltered(4, 310)
	fake.Trigger(1 << 4)

	if len(inputs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(inputs))
	}
	ev := monitor.Touch(inputs[0])
	if ev == nil {
		t.Fatal("expected a touch event")
	}
	if err := publisher.Publish(*ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if monitor.State(4) != logic.StateTouched {
		t.Error("channel should be touched")
	}

	// Finger lifts: the poll loop reads a recovered counter.
	fake.SetFiltered(4, 590)
	now = now.Add(time.Second)
	v, err := ch.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev = monitor.Sample(logic.Input{Channel: ch.Index(), Value: v, Time: now})
	if ev == nil {
		t.Fatal("expected a release event")
	}
	if err := publisher.Publish(*ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(publisher.Events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.Events))
	}
	if publisher.Events[0].Type != logic.EventTouch {
		t.Errorf("event 0: expected TOUCH, got %s", publisher.Events[0].Type)
	}
	if publisher.Events[0].Value != 310 || publisher.Events[0].GPIO != 13 {
		t.Errorf("event 0: unexpected fields %+v", publisher.Events[0])
	}
	if publisher.Events[1].Type != logic.EventRelease {
		t.Errorf("event 1: expected RELEASE, got %s", publisher.Events[1].Type)
	}
	if publisher.Events[1].Value != 590 {
		t.Errorf("event 1: expected value 590, got %d", publisher.Events[1].Value)
	}

	for i, payload := range publisher.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Errorf("payload %d: invalid JSON: %v", i, err)
		}
		if parsed.Touch.Timestamp == "" {
			t.Errorf("payload %d: missing timestamp", i)
		}
		if parsed.Touch.Event == "" {
			t.Errorf("payload %d: missing event", i)
		}
	}
}

// TestIntegrationChatterSuppressed verifies that rapid repeated interrupts
// produce a single published TOUCH event.
func TestIntegrationChatterSuppressed(t *testing.T) {
	fake := hw.NewFake()
	for i := 0; i < hw.NumChannels; i++ {
		fake.SetFiltered(i, 600)
	}

	ctrl := touch.New(fake, touch.DefaultConfig())
	if err := ctrl.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer ctrl.Dispose()

	ch, err := ctrl.OpenChannel(2, touch.ChannelConfig{Select: touch.SelectByChannel})
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	defer ch.Close()

	publisher := mqtt.NewFakePublisher()
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	monitor := logic.NewMonitor(200*time.Millisecond, startTime)
	monitor.Track(ch.Index(), ch.GPIO(), ch.Threshold())

	now := startTime
	ch.SubscribeValueChanged(func(c *touch.Channel, v uint16) {
		if ev := monitor.Touch(logic.Input{Channel: c.Index(), Value: v, Time: now}); ev != nil {
			publisher.Publish(*ev)
		}
	})

	fake.SetFiltered(2, 320)
	for i := 0; i < 5; i++ {
		fake.Trigger(1 << 2)
		now = now.Add(20 * time.Millisecond)
	}

	if len(publisher.Events) != 1 {
		t.Fatalf("expected 1 event from 5 interrupts, got %d", len(publisher.Events))
	}
	if monitor.TotalCounts().Touches != 1 {
		t.Errorf("expected 1 counted touch, got %d", monitor.TotalCounts().Touches)
	}
}

// TestIntegrationDisposeStopsDeliveries verifies that after controller
// disposal no interrupt reaches a subscription.
func TestIntegrationDisposeStopsDeliveries(t *testing.T) {
	fake := hw.NewFake()
	for i := 0; i < hw.NumChannels; i++ {
		fake.SetFiltered(i, 600)
	}

	ctrl := touch.New(fake, touch.DefaultConfig())
	if err := ctrl.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	ch, err := ctrl.OpenChannel(0, touch.ChannelConfig{Select: touch.SelectByChannel})
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}

	fired := 0
	ch.SubscribeValueChanged(func(*touch.Channel, uint16) { fired++ })

	ctrl.Dispose()
	fake.Trigger(1 << 0)

	if fired != 0 {
		t.Errorf("expected no deliveries after dispose, got %d", fired)
	}
	if fake.ISRInstalled() {
		t.Error("dispose must deregister the interrupt routine")
	}
}
