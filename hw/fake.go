package hw

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Fake is a test double implementing Interface entirely in memory.
// Scripted reading queues feed Read/ReadFiltered; Trigger drives the
// registered interrupt routine the way real hardware would, except
// synchronously so tests stay deterministic.
type Fake struct {
	mu sync.Mutex

	// Raw and Filtered hold scripted per-channel counter values.
	// Each read consumes the next value; when a queue is exhausted the
	// last value repeats, like a settled sensor.
	Raw      [NumChannels][]uint16
	Filtered [NumChannels][]uint16

	rawIdx  [NumChannels]int
	filtIdx [NumChannels]int

	// Errors maps an operation name (e.g. "Init", "ConfigChannel") to an
	// error that operation should return.
	Errors map[string]error

	// Calls records every operation in invocation order, with arguments
	// where they matter (e.g. "ConfigChannel(3,400)").
	Calls []string

	// Observable peripheral state.
	Initialized       bool
	FSM               FSMMode
	VoltageHigh       VoltageLevel
	VoltageLow        VoltageLevel
	Attenuation       VoltageAttenuation
	Polarity          TriggerMode
	FilterRunning     bool
	FilterPeriod      time.Duration
	InterruptsEnabled bool
	Thresholds        map[int]uint16
	StatusMask        uint16
	StatusClears      int

	isr func()
}

// NewFake creates a Fake with empty reading queues.
func NewFake() *Fake {
	return &Fake{
		Errors:     make(map[string]error),
		Thresholds: make(map[int]uint16),
	}
}

// fail returns the injected error for op, if any, and logs the call.
// Caller must hold f.mu.
func (f *Fake) fail(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Errors[op]
}

func (f *Fake) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Init"); err != nil {
		return err
	}
	f.Initialized = true
	return nil
}

func (f *Fake) Deinit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Deinit"); err != nil {
		return err
	}
	f.Initialized = false
	return nil
}

func (f *Fake) SetFSMMode(mode FSMMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SetFSMMode"); err != nil {
		return err
	}
	f.FSM = mode
	return nil
}

func (f *Fake) SetVoltage(high, low VoltageLevel, atten VoltageAttenuation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SetVoltage"); err != nil {
		return err
	}
	f.VoltageHigh, f.VoltageLow, f.Attenuation = high, low, atten
	return nil
}

func (f *Fake) SetTriggerMode(mode TriggerMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SetTriggerMode"); err != nil {
		return err
	}
	f.Polarity = mode
	return nil
}

func (f *Fake) FilterStart(period time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("FilterStart"); err != nil {
		return err
	}
	f.FilterRunning = true
	f.FilterPeriod = period
	return nil
}

func (f *Fake) FilterStop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("FilterStop"); err != nil {
		return err
	}
	f.FilterRunning = false
	return nil
}

func (f *Fake) EnableInterrupts() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("EnableInterrupts"); err != nil {
		return err
	}
	f.InterruptsEnabled = true
	return nil
}

func (f *Fake) DisableInterrupts() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DisableInterrupts"); err != nil {
		return err
	}
	f.InterruptsEnabled = false
	return nil
}

func (f *Fake) ClearInterrupts() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail("ClearInterrupts")
}

func (f *Fake) ISRRegister(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ISRRegister"); err != nil {
		return err
	}
	f.isr = fn
	return nil
}

func (f *Fake) ISRDeregister() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ISRDeregister"); err != nil {
		return err
	}
	f.isr = nil
	return nil
}

func (f *Fake) Status() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Status"); err != nil {
		return 0, err
	}
	return f.StatusMask, nil
}

func (f *Fake) ClearStatus() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ClearStatus"); err != nil {
		return err
	}
	f.StatusMask = 0
	f.StatusClears++
	return nil
}

func (f *Fake) ConfigChannel(channel int, threshold uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("ConfigChannel(%d,%d)", channel, threshold))
	if err := f.Errors["ConfigChannel"]; err != nil {
		return err
	}
	if channel < 0 || channel >= NumChannels {
		return fmt.Errorf("fake: config channel %d out of range", channel)
	}
	f.Thresholds[channel] = threshold
	return nil
}

func (f *Fake) Read(channel int) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("Read(%d)", channel))
	if err := f.Errors["Read"]; err != nil {
		return 0, err
	}
	return f.next(channel, f.Raw[:], f.rawIdx[:])
}

func (f *Fake) ReadFiltered(channel int) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("ReadFiltered(%d)", channel))
	if err := f.Errors["ReadFiltered"]; err != nil {
		return 0, err
	}
	return f.next(channel, f.Filtered[:], f.filtIdx[:])
}

// next consumes the channel's next scripted value.
// If the queue is exhausted, the last value repeats.
func (f *Fake) next(channel int, queues [][]uint16, idx []int) (uint16, error) {
	if channel < 0 || channel >= NumChannels {
		return 0, fmt.Errorf("fake: channel %d out of range", channel)
	}
	q := queues[channel]
	if len(q) == 0 {
		return 0, errors.New("fake: no readings configured")
	}
	v := q[idx[channel]]
	if idx[channel] < len(q)-1 {
		idx[channel]++
	}
	return v, nil
}

// SetRaw replaces the channel's scripted raw queue with a single value.
func (f *Fake) SetRaw(channel int, v uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Raw[channel] = []uint16{v}
	f.rawIdx[channel] = 0
}

// SetFiltered replaces the channel's scripted filtered queue with a single
// value.
func (f *Fake) SetFiltered(channel int, v uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Filtered[channel] = []uint16{v}
	f.filtIdx[channel] = 0
}

// Trigger simulates a hardware interrupt: it latches mask into the status
// register and invokes the registered routine if interrupts are enabled.
// Unlike a real backend, the routine runs synchronously on the calling
// goroutine, which is what makes tests deterministic; callers must therefore
// never invoke Trigger while holding a lock the dispatch path can take
// (notably not from inside a subscription callback).
func (f *Fake) Trigger(mask uint16) {
	f.mu.Lock()
	f.StatusMask |= mask
	isr := f.isr
	enabled := f.InterruptsEnabled
	f.mu.Unlock()

	if enabled && isr != nil {
		isr()
	}
}

// ISRInstalled reports whether an interrupt routine is currently registered.
func (f *Fake) ISRInstalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isr != nil
}

// CallCount returns how many times op was invoked (argument-bearing ops are
// counted by prefix).
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op || (len(c) > len(op) && c[:len(op)+1] == op+"(") {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and scripted state.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Raw = [NumChannels][]uint16{}
	f.Filtered = [NumChannels][]uint16{}
	f.rawIdx = [NumChannels]int{}
	f.filtIdx = [NumChannels]int{}
	f.Errors = make(map[string]error)
	f.Calls = nil
	f.Initialized = false
	f.FSM = 0
	f.VoltageHigh, f.VoltageLow, f.Attenuation = 0, 0, 0
	f.Polarity = 0
	f.FilterRunning = false
	f.FilterPeriod = 0
	f.InterruptsEnabled = false
	f.Thresholds = make(map[int]uint16)
	f.StatusMask = 0
	f.StatusClears = 0
	f.isr = nil
}
