package touch

import (
	"fmt"
	"sync"
)

// ValueHandler receives value-changed notifications for a channel. It is
// invoked from the interrupt dispatch path and must return quickly; in
// particular it must not call back into peripheral-wide operations
// (OpenChannel, Dispose) or block on locks shared with application
// goroutines that do.
type ValueHandler func(ch *Channel, value uint16)

// Channel is one claimed sensing channel. Channels are created only by
// Controller.OpenChannel and are the sole object through which per-channel
// hardware operations are legal. A Channel is safe for concurrent use.
type Channel struct {
	ctrl  *Controller
	gpio  int
	index int
	cfg   ChannelConfig

	mu        sync.Mutex
	subIDs    []uint64
	threshold uint16
	released  bool
}

// GPIO returns the GPIO number wired to this channel.
func (ch *Channel) GPIO() int { return ch.gpio }

// Index returns the channel index in [0, hw.NumChannels).
func (ch *Channel) Index() int { return ch.index }

// Threshold returns the trigger threshold programmed at open.
func (ch *Channel) Threshold() uint16 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.threshold
}

// calibrateThreshold derives the channel's absolute trigger threshold from
// one fresh filtered reading scaled by the configured fraction (integer
// truncation: 601 at 2/3 programs 400). A zero reading means the sensor has
// not settled yet; the configured base threshold is programmed instead so
// the channel never arms at zero. Any hardware failure aborts construction.
func (ch *Channel) calibrateThreshold() error {
	reading, err := ch.ctrl.hw.ReadFiltered(ch.index)
	if err != nil {
		return hwErr(fmt.Sprintf("calibrate channel %d: read filtered", ch.index), err)
	}
	threshold := ch.cfg.scale(reading)
	if reading == 0 {
		threshold = ch.cfg.Threshold
	}
	if err := ch.ctrl.hw.ConfigChannel(ch.index, threshold); err != nil {
		return hwErr(fmt.Sprintf("calibrate channel %d: set threshold", ch.index), err)
	}
	ch.threshold = threshold
	return nil
}

// Read returns the channel's current counter value using the read mode from
// the system configuration. It returns ErrUnimplemented for a mode this
// package does not support and ErrReleased after Close.
func (ch *Channel) Read() (uint16, error) {
	ch.mu.Lock()
	released := ch.released
	ch.mu.Unlock()
	if released {
		return 0, ErrReleased
	}

	switch ch.ctrl.cfg.Mode {
	case ReadRaw:
		v, err := ch.ctrl.hw.Read(ch.index)
		if err != nil {
			return 0, hwErr(fmt.Sprintf("read channel %d", ch.index), err)
		}
		return v, nil
	case ReadFiltered:
		v, err := ch.ctrl.hw.ReadFiltered(ch.index)
		if err != nil {
			return 0, hwErr(fmt.Sprintf("read filtered channel %d", ch.index), err)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("read mode %d: %w", ch.ctrl.cfg.Mode, ErrUnimplemented)
	}
}

// SubscribeValueChanged registers fn to run whenever the hardware signals
// this channel. Each delivery performs a fresh Read and forwards the value;
// a failed read drops that delivery. Multiple subscriptions may be active on
// one channel. The first subscription across all channels brings the shared
// interrupt path up.
// Lock order: the dispatch path holds the handler table lock while a
// delivery closure takes ch.mu (via Read), so ch.mu must never be held
// across a call into the controller's handler table.
func (ch *Channel) SubscribeValueChanged(fn ValueHandler) error {
	ch.mu.Lock()
	released := ch.released
	ch.mu.Unlock()
	if released {
		return ErrReleased
	}

	id, err := ch.ctrl.registerHandler(ch.index, func() {
		v, err := ch.Read()
		if err != nil {
			return
		}
		fn(ch, v)
	})
	if err != nil {
		return err
	}

	ch.mu.Lock()
	if ch.released {
		// Lost the race with Close; undo.
		ch.mu.Unlock()
		ch.ctrl.deregisterHandler(ch.index, id)
		return ErrReleased
	}
	ch.subIDs = append(ch.subIDs, id)
	ch.mu.Unlock()
	return nil
}

// UnsubscribeValueChanged removes every subscription this channel holds.
// It is a no-op when nothing is subscribed. The last removal across all
// channels tears the shared interrupt path down.
func (ch *Channel) UnsubscribeValueChanged() error {
	ch.mu.Lock()
	ids := ch.subIDs
	ch.subIDs = nil
	ch.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := ch.ctrl.deregisterHandler(ch.index, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close releases the channel: subscriptions are removed (removing none is a
// no-op) and the registry slot is returned, after which the index can be
// opened again. Close is idempotent. Closing a channel after its parent
// controller has been disposed is undefined behavior: the slot clear is
// harmless, but the handler table is already gone.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.released {
		ch.mu.Unlock()
		return nil
	}
	ch.released = true
	ids := ch.subIDs
	ch.subIDs = nil
	ch.mu.Unlock()

	// A disposed controller rejects these deregistrations; nothing to do
	// about it here, the table was force-cleared.
	for _, id := range ids {
		ch.ctrl.deregisterHandler(ch.index, id)
	}
	ch.ctrl.closeChannel(ch.index)
	return nil
}
