package main

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/captouch/hw"
	"github.com/sweeney/captouch/internal/logic"
	"github.com/sweeney/captouch/internal/mqtt"
	"github.com/sweeney/captouch/internal/status"
	"github.com/sweeney/captouch/touch"
)

func TestParseChannels(t *testing.T) {
	got, err := parseChannels("0, 2,5")
	if err != nil {
		t.Fatalf("parseChannels: %v", err)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 2 || got[2] != 5 {
		t.Errorf("expected [0 2 5], got %v", got)
	}

	// Trailing comma is tolerated.
	got, err = parseChannels("3,")
	if err != nil || len(got) != 1 || got[0] != 3 {
		t.Errorf("expected [3], got %v (%v)", got, err)
	}

	if _, err := parseChannels(""); err == nil {
		t.Error("expected error for empty channel list")
	}
	if _, err := parseChannels("1,x"); err == nil {
		t.Error("expected error for non-numeric channel")
	}
}

func TestParseThreshold(t *testing.T) {
	v, err := parseThreshold(400)
	if err != nil || v != 400 {
		t.Errorf("expected 400, got %d (%v)", v, err)
	}
	if v, err := parseThreshold(0xFFFF); err != nil || v != 0xFFFF {
		t.Errorf("expected max value accepted, got %d (%v)", v, err)
	}
	// A value above the 16-bit counter range must fail, not wrap.
	if _, err := parseThreshold(0x10000); err == nil {
		t.Error("expected error for threshold above 65535")
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// loopHarness wires runLoop to fakes. The touches, tick and sig channels
// are unbuffered, so each send returns only after the loop consumed it.
type loopHarness struct {
	fake    *hw.Fake
	pub     *mqtt.FakePublisher
	monitor *logic.Monitor
	touches chan logic.Input
	tick    chan time.Time
	sig     chan os.Signal
	errCh   chan error
}

func startLoop(t *testing.T, heartbeat time.Duration, clock func() time.Time) *loopHarness {
	t.Helper()

	fake := hw.NewFake()
	for i := 0; i < hw.NumChannels; i++ {
		fake.SetFiltered(i, 600)
	}

	ctrl := touch.New(fake, touch.DefaultConfig())
	if err := ctrl.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(ctrl.Dispose)

	ch, err := ctrl.OpenChannel(4, touch.ChannelConfig{Select: touch.SelectByChannel})
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(start, status.Config{Backend: "fake"})
	monitor := logic.NewMonitor(200*time.Millisecond, start)
	monitor.Track(ch.Index(), ch.GPIO(), ch.Threshold())

	h := &loopHarness{
		fake:    fake,
		pub:     pub,
		monitor: monitor,
		touches: make(chan logic.Input),
		tick:    make(chan time.Time),
		sig:     make(chan os.Signal),
		errCh:   make(chan error, 1),
	}
	go func() {
		h.errCh <- runLoop([]*touch.Channel{ch}, pub, pub, tracker, monitor,
			heartbeat, clock, h.touches, h.tick, h.sig)
	}()
	return h
}

func (h *loopHarness) shutdown(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	if err := <-h.errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopPublishesTouch(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := startLoop(t, 0, fakeClock(start, 100*time.Millisecond))

	h.touches <- logic.Input{Channel: 4, Value: 310, Time: start}
	h.shutdown(t, syscall.SIGTERM)

	if len(h.pub.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.pub.Events))
	}
	if h.pub.Events[0].Type != logic.EventTouch || h.pub.Events[0].Channel != 4 {
		t.Errorf("unexpected event: %+v", h.pub.Events[0])
	}

	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
	}
	se := h.pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" || se.Reason != "SIGTERM" {
		t.Errorf("expected SHUTDOWN/SIGTERM, got %q/%q", se.Event, se.Reason)
	}
	if !se.Retained {
		t.Error("shutdown event should be retained")
	}
	if se.RawPayload == nil {
		t.Error("shutdown event should carry a full status payload")
	}
}

func TestRunLoopTickReleases(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := startLoop(t, 0, fakeClock(start, 100*time.Millisecond))

	h.touches <- logic.Input{Channel: 4, Value: 310, Time: start}

	// Counter recovered; the next poll releases.
	h.fake.SetFiltered(4, 590)
	h.tick <- time.Time{}
	h.shutdown(t, syscall.SIGINT)

	if len(h.pub.Events) != 2 {
		t.Fatalf("expected touch+release, got %d events", len(h.pub.Events))
	}
	if h.pub.Events[1].Type != logic.EventRelease || h.pub.Events[1].Value != 590 {
		t.Errorf("unexpected release event: %+v", h.pub.Events[1])
	}
	if h.pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("expected SIGINT reason, got %q", h.pub.SystemEvents[0].Reason)
	}
}

func TestRunLoopToleratesReadErrors(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := startLoop(t, 0, fakeClock(start, 100*time.Millisecond))

	h.fake.Errors["ReadFiltered"] = errors.New("bus fault")
	h.tick <- time.Time{}
	h.tick <- time.Time{}
	h.shutdown(t, syscall.SIGTERM)

	if len(h.pub.Events) != 0 {
		t.Errorf("expected no events from failed reads, got %d", len(h.pub.Events))
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Clock steps 100ms per now() call; heartbeat every 150ms.
	h := startLoop(t, 150*time.Millisecond, fakeClock(start, 100*time.Millisecond))

	h.tick <- time.Time{} // t=0: no
	h.tick <- time.Time{} // t=100ms: no
	h.tick <- time.Time{} // t=200ms: heartbeat
	h.shutdown(t, syscall.SIGTERM)

	var heartbeats int
	for _, se := range h.pub.SystemEvents {
		if se.Event == "HEARTBEAT" {
			heartbeats++
			if se.RawPayload == nil {
				t.Error("heartbeat should carry a full status payload")
			}
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 heartbeat, got %d", heartbeats)
	}
}
