// Package touch arbitrates shared access to a capacitive-touch peripheral.
//
// The peripheral exposes ten sensing channels through one set of global
// registers and one interrupt line. A Controller owns all peripheral-wide
// state: it hands out per-channel handles via OpenChannel, reference-counts
// callback registrations to lazily enable the shared interrupt line, and
// fans the hardware status bitmask out to per-channel callbacks from a
// single native trampoline. Only the Controller issues peripheral-wide
// hardware calls; only a Channel issues calls scoped to its own index.
package touch

import (
	"fmt"
	"log"

	"github.com/sweeney/captouch/hw"
)

// Controller is the single owner of peripheral-wide state.
// Create one with New, configure the hardware with Init, and tear it down
// with Dispose. All methods are safe for concurrent use.
type Controller struct {
	hw  hw.Interface
	cfg Config

	reg      registry
	handlers handlerTable
}

// New creates a Controller for the given hardware interface. cfg is copied;
// later mutation of the caller's value has no effect. The hardware is not
// touched until Init.
func New(h hw.Interface, cfg Config) *Controller {
	return &Controller{hw: h, cfg: cfg}
}

// Init issues the global hardware configuration: peripheral init, timer FSM
// mode, reference voltages, and, in filtered read mode, the hardware filter
// and the trigger polarity. The first failing step aborts the rest and is
// returned as a *HardwareError; the peripheral state is then unspecified and
// Init is not retryable. Calling Init twice re-issues the sequence.
func (c *Controller) Init() error {
	if err := c.hw.Init(); err != nil {
		return hwErr("init peripheral", err)
	}
	if err := c.hw.SetFSMMode(hw.FSMTimer); err != nil {
		return hwErr("set fsm mode", err)
	}
	if err := c.hw.SetVoltage(c.cfg.VoltageHigh, c.cfg.VoltageLow, c.cfg.Attenuation); err != nil {
		return hwErr("set voltage", err)
	}
	if c.cfg.Mode == ReadFiltered {
		if err := c.hw.FilterStart(c.cfg.FilterPeriod); err != nil {
			return hwErr("start filter", err)
		}
		if err := c.hw.SetTriggerMode(c.cfg.Trigger); err != nil {
			return hwErr("set trigger mode", err)
		}
	}
	return nil
}

// Config returns a copy of the system configuration.
func (c *Controller) Config() Config { return c.cfg }

// OpenChannel claims a sensing channel and returns its handle. pin is
// interpreted per cfg.Select: a GPIO number or a channel index. The claim is
// taken before any hardware call and rolled back if the channel's threshold
// calibration fails, so a failed open is never observable in the registry.
func (c *Controller) OpenChannel(pin int, cfg ChannelConfig) (*Channel, error) {
	cfg = cfg.withDefaults()
	m, ok := Resolve(cfg.Select, pin)
	if !ok {
		return nil, fmt.Errorf("pin %d: %w", pin, ErrInvalidPin)
	}
	if c.isDisposed() {
		return nil, ErrDisposed
	}
	if !c.reg.claim(m.Channel) {
		return nil, fmt.Errorf("channel %d: %w", m.Channel, ErrAlreadyOpen)
	}

	ch := &Channel{ctrl: c, gpio: m.GPIO, index: m.Channel, cfg: cfg}
	if err := ch.calibrateThreshold(); err != nil {
		c.reg.release(m.Channel)
		return nil, err
	}
	return ch, nil
}

// closeChannel returns a channel slot to the registry. Called only from a
// Channel's release path.
func (c *Controller) closeChannel(index int) {
	c.reg.release(index)
}

// registerHandler appends fn to the channel's callback chain. On the
// system-wide transition from zero to one registered channels it installs
// the dispatch trampoline and enables the interrupt line; a failure of
// either rolls the registration back. The handler table lock is held across
// the hardware calls so the reference count and the line state stay in step
// (hw.Interface guarantees no synchronous ISR delivery).
func (c *Controller) registerHandler(index int, fn func()) (uint64, error) {
	if !validIndex(index) {
		return 0, fmt.Errorf("channel %d: %w", index, ErrIndexOutOfRange)
	}
	t := &c.handlers
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return 0, ErrDisposed
	}
	id, first := t.add(index, fn)
	if first {
		if err := c.enableDispatchLocked(); err != nil {
			t.remove(index, id)
			return 0, err
		}
	}
	return id, nil
}

// deregisterHandler removes a registration by id. Removing an id that is no
// longer present is a no-op. On the transition to zero registered channels
// the trampoline is deregistered and the interrupt line disabled,
// best-effort.
func (c *Controller) deregisterHandler(index int, id uint64) error {
	if !validIndex(index) {
		return fmt.Errorf("channel %d: %w", index, ErrIndexOutOfRange)
	}
	t := &c.handlers
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return ErrDisposed
	}
	if _, last := t.remove(index, id); last {
		c.disableDispatchLocked()
	}
	return nil
}

// enableDispatchLocked installs the trampoline and enables the interrupt
// line. Caller holds the handler table lock.
func (c *Controller) enableDispatchLocked() error {
	if err := c.hw.ISRRegister(c.dispatch); err != nil {
		return hwErr("register isr", err)
	}
	if err := c.hw.EnableInterrupts(); err != nil {
		c.hw.ISRDeregister()
		return hwErr("enable interrupts", err)
	}
	return nil
}

// disableDispatchLocked tears the interrupt path down, ignoring hardware
// errors: there is no caller to surface them to and the handler table is
// already empty. Caller holds the handler table lock.
func (c *Controller) disableDispatchLocked() {
	c.hw.ISRDeregister()
	c.hw.DisableInterrupts()
}

// dispatch is the single native interrupt trampoline. It reads the status
// bitmask once, invokes each set bit's callback chain in ascending channel
// order under the handler table lock, and clears the hardware status
// exactly once after all bits are processed. A set bit with an empty chain
// is skipped. Dispatch never re-enters peripheral-wide configuration.
//
// Ordering holds within one interrupt episode only; application goroutines
// observe no cross-episode ordering unless they synchronize themselves.
func (c *Controller) dispatch() {
	mask, err := c.hw.Status()
	if err != nil {
		// Interrupt context has no caller to report to.
		log.Printf("touch: dispatch: read status: %v", err)
		c.hw.ClearStatus()
		return
	}

	t := &c.handlers
	t.mu.Lock()
	for i := 0; i < hw.NumChannels; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		for _, e := range t.slots[i] {
			e.fn()
		}
	}
	t.mu.Unlock()

	if err := c.hw.ClearStatus(); err != nil {
		log.Printf("touch: dispatch: clear status: %v", err)
	}
}

// isDisposed reports whether Dispose has run.
func (c *Controller) isDisposed() bool {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	return c.handlers.disposed
}

// interruptsActive reports whether the lazy interrupt path is currently up.
func (c *Controller) interruptsActive() bool {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	return c.handlers.active > 0
}

// Dispose tears the controller down in order: trampoline deregistered and
// handler slots force-cleared first, so no dangling callback can fire into
// a half-torn-down peripheral, then interrupts disabled and cleared, the
// filter stopped and the peripheral deinitialized. Every hardware error is
// ignored so disposal always releases as much state as it can. Dispose is
// idempotent. Releasing a Channel after its Controller has been disposed is
// undefined behavior; see Channel.Close.
func (c *Controller) Dispose() {
	t := &c.handlers
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	c.hw.ISRDeregister()
	t.clear()
	t.mu.Unlock()

	c.hw.DisableInterrupts()
	c.hw.ClearInterrupts()
	c.hw.FilterStop()
	c.hw.Deinit()
}
