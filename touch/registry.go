package touch

import (
	"sync"

	"github.com/sweeney/captouch/hw"
)

// registry tracks which channel slots are claimed. One bit per channel,
// set while exactly one live Channel owns that index. It is guarded by its
// own mutex, independent of the handler table, so claim attempts never wait
// behind callback registration and vice versa.
type registry struct {
	mu      sync.Mutex
	claimed uint16
}

// claim reserves the channel index. It reports false if the index is
// already claimed. The lock is held only for the bit test-and-set; callers
// perform hardware configuration after claim returns.
func (r *registry) claim(index int) bool {
	bit := uint16(1) << index
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed&bit != 0 {
		return false
	}
	r.claimed |= bit
	return true
}

// release returns the channel index to the pool. Releasing an unclaimed
// index is a no-op.
func (r *registry) release(index int) {
	r.mu.Lock()
	r.claimed &^= uint16(1) << index
	r.mu.Unlock()
}

// isClaimed reports whether the index is currently claimed.
func (r *registry) isClaimed(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claimed&(uint16(1)<<index) != 0
}

func validIndex(index int) bool {
	return index >= 0 && index < hw.NumChannels
}
