package logic

import (
	"sort"
	"time"
)

// channelState tracks one sensing channel.
type channelState struct {
	gpio      int
	threshold uint16
	touched   bool
	lastValue uint16
	lastTouch time.Time
	counts    Counts
}

// Monitor turns interrupt deliveries and polled samples into TOUCH/RELEASE
// transition events. Capacitive sensors chatter around the trigger point, so
// repeated interrupt deliveries within the hold-off window of the previous
// touch are suppressed. The Monitor is not safe for concurrent use; the
// daemon loop owns it.
type Monitor struct {
	holdoff       time.Duration
	startTime     time.Time
	lastHeartbeat time.Time
	channels      map[int]*channelState
	total         Counts
}

// NewMonitor creates a Monitor. holdoff is the minimum spacing between touch
// events on one channel; startTime anchors uptime for heartbeats.
func NewMonitor(holdoff time.Duration, startTime time.Time) *Monitor {
	return &Monitor{
		holdoff:       holdoff,
		startTime:     startTime,
		lastHeartbeat: startTime,
		channels:      make(map[int]*channelState),
	}
}

// Track registers a channel. Inputs for untracked channels are dropped.
func (m *Monitor) Track(channel, gpio int, threshold uint16) {
	m.channels[channel] = &channelState{gpio: gpio, threshold: threshold}
}

// Touch processes an interrupt delivery: the hardware decided the channel is
// touched. It returns a TOUCH event, or nil when the channel is untracked,
// already touched, or still inside the hold-off window.
func (m *Monitor) Touch(in Input) *Event {
	cs, ok := m.channels[in.Channel]
	if !ok {
		return nil
	}
	cs.lastValue = in.Value
	if cs.touched {
		return nil
	}
	if !cs.lastTouch.IsZero() && in.Time.Sub(cs.lastTouch) < m.holdoff {
		return nil
	}
	cs.touched = true
	cs.lastTouch = in.Time
	cs.counts.Touches++
	m.total.Touches++
	return &Event{
		Timestamp: in.Time,
		Type:      EventTouch,
		Channel:   in.Channel,
		GPIO:      cs.gpio,
		Value:     in.Value,
		Threshold: cs.threshold,
	}
}

// Sample processes a polled reading. A touched channel whose counter has
// recovered above its threshold is released; the touch-lowers-counter
// polarity is assumed, matching the peripheral's default trigger mode.
func (m *Monitor) Sample(in Input) *Event {
	cs, ok := m.channels[in.Channel]
	if !ok {
		return nil
	}
	cs.lastValue = in.Value
	if !cs.touched || in.Value < cs.threshold {
		return nil
	}
	cs.touched = false
	cs.counts.Releases++
	m.total.Releases++
	return &Event{
		Timestamp: in.Time,
		Type:      EventRelease,
		Channel:   in.Channel,
		GPIO:      cs.gpio,
		Value:     in.Value,
		Threshold: cs.threshold,
	}
}

// State returns the channel's current logical state.
func (m *Monitor) State(channel int) State {
	if cs, ok := m.channels[channel]; ok && cs.touched {
		return StateTouched
	}
	return StateIdle
}

// TotalCounts returns event totals across all channels.
func (m *Monitor) TotalCounts() Counts {
	return m.total
}

// Snapshot returns per-channel views ordered by channel index.
func (m *Monitor) Snapshot() []ChannelSnapshot {
	out := make([]ChannelSnapshot, 0, len(m.channels))
	for ch, cs := range m.channels {
		state := StateIdle
		if cs.touched {
			state = StateTouched
		}
		out = append(out, ChannelSnapshot{
			Channel:   ch,
			GPIO:      cs.gpio,
			State:     state,
			LastValue: cs.lastValue,
			Threshold: cs.threshold,
			Counts:    cs.counts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since
// the last heartbeat (or startup). Returns nil if the interval has not
// elapsed or if interval is <= 0 (disabled).
func (m *Monitor) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}
	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Total:     m.total,
	}
}
