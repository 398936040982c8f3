// Package status provides a thread-safe status tracker for the captouchd
// daemon. It is read by HTTP handlers and the MQTT system-event payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/captouch/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HoldoffMs   int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	Backend     string // "mpr121" or "fake"
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Channels      []logic.ChannelSnapshot
	Total         logic.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the per-channel views and event totals.
// Called from the daemon loop after every batch of events and on every poll.
func (t *Tracker) Update(channels []logic.ChannelSnapshot, total logic.Counts) {
	t.mu.Lock()
	t.snap.Channels = channels
	t.snap.Total = total
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
