package touch

import (
	"sync"

	"github.com/sweeney/captouch/hw"
)

// handlerEntry is one registered callback. Entries are removed by id, never
// by function identity; an entry that has been removed is never invoked
// again, even if a dispatch episode is concurrently in flight, because both
// removal and invocation happen under the table mutex.
type handlerEntry struct {
	id uint64
	fn func()
}

// handlerTable maps channel index to its callback chain and tracks the
// count of channels with at least one callback. That explicit count, not
// the slot contents, drives the lazy interrupt enable: the controller
// enables the line and installs the trampoline when the count goes 0->1 and
// tears both down at 1->0, all while holding mu so the count and the line
// state cannot race apart.
//
// mu is the only lock the interrupt context ever takes.
type handlerTable struct {
	mu       sync.Mutex
	slots    [hw.NumChannels][]handlerEntry
	active   int // channels with >=1 callback
	nextID   uint64
	disposed bool
}

// add appends fn to the index's chain. It reports the registration id and
// whether this registration transitioned the active count from 0 to 1.
// Caller must hold mu.
func (t *handlerTable) add(index int, fn func()) (id uint64, first bool) {
	t.nextID++
	id = t.nextID
	if len(t.slots[index]) == 0 {
		t.active++
		first = t.active == 1
	}
	t.slots[index] = append(t.slots[index], handlerEntry{id: id, fn: fn})
	return id, first
}

// remove deletes the entry with the given id from the index's chain. It
// reports whether an entry was removed and whether the removal transitioned
// the active count from 1 to 0. Removing an absent id is a no-op.
// Caller must hold mu.
func (t *handlerTable) remove(index int, id uint64) (removed, last bool) {
	chain := t.slots[index]
	for i, e := range chain {
		if e.id != id {
			continue
		}
		t.slots[index] = append(chain[:i:i], chain[i+1:]...)
		if len(t.slots[index]) == 0 {
			t.slots[index] = nil
			t.active--
			last = t.active == 0
		}
		return true, last
	}
	return false, false
}

// clear drops every chain and zeroes the active count.
// Caller must hold mu.
func (t *handlerTable) clear() {
	for i := range t.slots {
		t.slots[i] = nil
	}
	t.active = 0
}
