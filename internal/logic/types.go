// Package logic contains pure event shaping for the touch daemon.
// This package has NO external dependencies (no hardware, MQTT, OS, or
// time.Sleep). Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of a sensing channel.
type State string

const (
	StateTouched State = "TOUCHED"
	StateIdle    State = "IDLE"
)

// EventType represents a channel transition event.
type EventType string

const (
	EventTouch   EventType = "TOUCH"
	EventRelease EventType = "RELEASE"
)

// Event represents a channel transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Channel   int
	GPIO      int
	Value     uint16
	Threshold uint16
}

// Input is a single reading for one channel, either delivered by the
// interrupt path or polled.
type Input struct {
	Channel int
	Value   uint16
	Time    time.Time
}

// Counts tracks the number of each event type.
type Counts struct {
	Touches  int
	Releases int
}

// ChannelSnapshot is a point-in-time view of one tracked channel.
type ChannelSnapshot struct {
	Channel   int
	GPIO      int
	State     State
	LastValue uint16
	Threshold uint16
	Counts    Counts
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Total     Counts
}
