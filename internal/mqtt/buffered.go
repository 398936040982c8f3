package mqtt

import (
	"sync"

	"github.com/sweeney/captouch/internal/logic"
)

// BufferedPublisher wraps a Publisher and queues events while the broker
// connection is down, replaying them in order once publishing works again.
// Buffered events count as accepted: Publish returns nil for a queued event
// and only surfaces formatting errors or the failure of a replayed delivery.
type BufferedPublisher struct {
	mu     sync.Mutex
	next   Publisher
	status ConnectionStatus
	buf    *ringBuffer
}

// NewBufferedPublisher wraps next with a queue of the given capacity.
// status may be nil, in which case delivery failure alone triggers queueing.
func NewBufferedPublisher(next Publisher, status ConnectionStatus, capacity int) *BufferedPublisher {
	return &BufferedPublisher{
		next:   next,
		status: status,
		buf:    newRingBuffer(capacity),
	}
}

func (b *BufferedPublisher) connected() bool {
	return b.status == nil || b.status.IsConnected()
}

// drainLocked replays queued events. On the first failure the remaining
// events are re-queued in their original order. Caller must hold b.mu.
func (b *BufferedPublisher) drainLocked() {
	pending := b.buf.drainAll()
	for i, msg := range pending {
		var err error
		if msg.event != nil {
			err = b.next.Publish(*msg.event)
		} else if msg.system != nil {
			err = b.next.PublishSystem(*msg.system)
		}
		if err != nil {
			for _, m := range pending[i:] {
				b.buf.push(m)
			}
			return
		}
	}
}

// Publish delivers the event, or queues it while disconnected.
func (b *BufferedPublisher) Publish(event logic.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected() {
		b.buf.push(bufferedMsg{event: &event})
		return nil
	}
	b.drainLocked()
	if b.buf.len() > 0 {
		// Replay stalled; keep ordering by queueing behind it.
		b.buf.push(bufferedMsg{event: &event})
		return nil
	}
	if err := b.next.Publish(event); err != nil {
		b.buf.push(bufferedMsg{event: &event})
		return nil
	}
	return nil
}

// PublishSystem delivers the system event, or queues it while disconnected.
func (b *BufferedPublisher) PublishSystem(event SystemEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected() {
		b.buf.push(bufferedMsg{system: &event})
		return nil
	}
	b.drainLocked()
	if b.buf.len() > 0 {
		b.buf.push(bufferedMsg{system: &event})
		return nil
	}
	if err := b.next.PublishSystem(event); err != nil {
		b.buf.push(bufferedMsg{system: &event})
		return nil
	}
	return nil
}

// Pending returns the number of queued events, for status reporting.
func (b *BufferedPublisher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.len()
}

// IsConnected reports the wrapped connection state.
func (b *BufferedPublisher) IsConnected() bool {
	return b.connected()
}

// Close makes a final replay attempt and closes the wrapped publisher.
func (b *BufferedPublisher) Close() error {
	b.mu.Lock()
	if b.connected() {
		b.drainLocked()
	}
	b.mu.Unlock()
	return b.next.Close()
}
