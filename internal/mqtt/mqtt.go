// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/captouch/internal/logic"
)

// Topic is the MQTT topic for touch transition events.
const Topic = "sensors/captouch/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sensors/captouch/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a touch transition event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Touch TouchPayload `json:"touch"`
}

// TouchPayload contains the touch event details.
type TouchPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Channel   int    `json:"channel"`
	GPIO      int    `json:"gpio"`
	Value     uint16 `json:"value"`
	Threshold uint16 `json:"threshold"`
}

// FormatPayload creates the JSON payload for a touch event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Touch: TouchPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Channel:   event.Channel,
			GPIO:      event.GPIO,
			Value:     event.Value,
			Threshold: event.Threshold,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
