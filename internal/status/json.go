package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Channels      []ChannelJSON `json:"channels"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"event_counts"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one sensing channel.
type ChannelJSON struct {
	Channel   int    `json:"channel"`
	GPIO      int    `json:"gpio"`
	State     string `json:"state"`
	LastValue uint16 `json:"last_value"`
	Threshold uint16 `json:"threshold"`
	Touches   int    `json:"touches"`
	Releases  int    `json:"releases"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event totals.
type CountsJSON struct {
	Touches  int `json:"touches"`
	Releases int `json:"releases"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HoldoffMs   int64  `json:"holdoff_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	Backend     string `json:"backend"`
}

func buildInner(snap Snapshot) StatusInner {
	channels := make([]ChannelJSON, 0, len(snap.Channels))
	for _, c := range snap.Channels {
		channels = append(channels, ChannelJSON{
			Channel:   c.Channel,
			GPIO:      c.GPIO,
			State:     string(c.State),
			LastValue: c.LastValue,
			Threshold: c.Threshold,
			Touches:   c.Counts.Touches,
			Releases:  c.Counts.Releases,
		})
	}

	return StatusInner{
		Channels:      channels,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Touches:  snap.Total.Touches,
			Releases: snap.Total.Releases,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HoldoffMs:   snap.Config.HoldoffMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			Backend:     snap.Config.Backend,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
