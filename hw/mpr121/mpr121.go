//go:build linux

// Package mpr121 adapts an MPR121 capacitive-touch controller to the hw
// interface. Registers are reached over I²C; the chip's active-low IRQ line
// is delivered through the GPIO character device, so interrupt callbacks
// arrive on a dedicated event goroutine, never synchronously.
//
// The MPR121 exposes twelve electrodes; this adapter drives the first ten to
// match the peripheral contract.
package mpr121

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/sweeney/captouch/hw"
)

// defaultAddr is the chip's I²C address with ADDR tied to ground.
const defaultAddr = 0x5A

// MPR121 register map (datasheet section 5).
const (
	regTouchStatusL = 0x00
	regFiltData0L   = 0x04
	regBaseline0    = 0x1E

	// Baseline filter control.
	regMHDR = 0x2B
	regNHDR = 0x2C
	regNCLR = 0x2D
	regFDLR = 0x2E
	regMHDF = 0x2F
	regNHDF = 0x30
	regNCLF = 0x31
	regFDLF = 0x32
	regNHDT = 0x33
	regNCLT = 0x34
	regFDLT = 0x35

	regTouchTh0   = 0x41
	regReleaseTh0 = 0x42
	regDebounce   = 0x5B
	regConfig1    = 0x5C
	regConfig2    = 0x5D
	regECR        = 0x5E

	regAutoConfig0 = 0x7B
	regUpLimit     = 0x7D
	regLowLimit    = 0x7E
	regTargetLimit = 0x7F

	regSoftReset = 0x80
)

// config2Default is the CONFIG2 power-on value, used to probe chip presence.
const config2Default = 0x24

// Config selects the bus and interrupt wiring.
type Config struct {
	// Bus is the periph.io I²C bus name ("" for the first available).
	Bus string
	// Addr is the chip address; zero selects the default 0x5A.
	Addr uint16
	// IRQChip and IRQLine locate the GPIO wired to the chip's IRQ output
	// (active low, open drain).
	IRQChip string
	IRQLine int
}

// Device implements hw.Interface on an MPR121.
type Device struct {
	bus  i2c.BusCloser
	addr uint16

	irqChip string
	irqLine int

	mu   sync.Mutex
	isr  func()
	line *gpiocdev.Line
}

// Open connects to the chip. The peripheral itself is not configured until
// hw.Interface's Init runs.
func Open(cfg Config) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mpr121: host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("mpr121: open i2c bus %q: %w", cfg.Bus, err)
	}
	addr := cfg.Addr
	if addr == 0 {
		addr = defaultAddr
	}
	return &Device{
		bus:     bus,
		addr:    addr,
		irqChip: cfg.IRQChip,
		irqLine: cfg.IRQLine,
	}, nil
}

// Close releases the bus and the IRQ line. Call after Deinit.
func (d *Device) Close() error {
	d.mu.Lock()
	line := d.line
	d.line = nil
	d.mu.Unlock()
	if line != nil {
		line.Close()
	}
	return d.bus.Close()
}

func (d *Device) readReg(reg uint8, buf []byte) error {
	return d.bus.Tx(d.addr, []byte{reg}, buf)
}

func (d *Device) writeReg(reg uint8, value uint8) error {
	return d.bus.Tx(d.addr, []byte{reg, value}, nil)
}

// stopped runs fn with the electrodes halted. Most MPR121 registers are
// writable only in stop mode; the previous run state is restored after.
func (d *Device) stopped(fn func() error) error {
	var ecr [1]byte
	if err := d.readReg(regECR, ecr[:]); err != nil {
		return err
	}
	if err := d.writeReg(regECR, 0x00); err != nil {
		return err
	}
	ferr := fn()
	if err := d.writeReg(regECR, ecr[0]); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

// Init soft-resets the chip, verifies its presence by the CONFIG2 power-on
// value, and programs the baseline filter, debounce, and sampling defaults.
// Electrodes stay halted until SetFSMMode starts them.
func (d *Device) Init() error {
	if err := d.writeReg(regSoftReset, 0x7F); err != nil {
		return fmt.Errorf("mpr121: soft reset: %w", err)
	}
	time.Sleep(time.Millisecond)
	if err := d.writeReg(regECR, 0x00); err != nil {
		return fmt.Errorf("mpr121: stop electrodes: %w", err)
	}

	var probe [1]byte
	if err := d.readReg(regConfig2, probe[:]); err != nil {
		return fmt.Errorf("mpr121: probe: %w", err)
	}
	if probe[0] != config2Default {
		return fmt.Errorf("mpr121: unexpected CONFIG2 %#02x after reset, chip not found", probe[0])
	}

	for _, w := range []struct{ reg, val uint8 }{
		// Rising baseline filter.
		{regMHDR, 0x01},
		{regNHDR, 0x01},
		{regNCLR, 0x0E},
		{regFDLR, 0x00},
		// Falling baseline filter.
		{regMHDF, 0x01},
		{regNHDF, 0x05},
		{regNCLF, 0x01},
		{regFDLF, 0x00},
		// Touched baseline filter.
		{regNHDT, 0x00},
		{regNCLT, 0x00},
		{regFDLT, 0x00},

		{regDebounce, 0x00},
		{regConfig1, 0x10}, // 16uA charge current
		{regConfig2, 0x20}, // 0.5us charge time, 1ms sample interval
	} {
		if err := d.writeReg(w.reg, w.val); err != nil {
			return fmt.Errorf("mpr121: write reg %#02x: %w", w.reg, err)
		}
	}
	return nil
}

// Deinit halts the electrodes.
func (d *Device) Deinit() error {
	return d.writeReg(regECR, 0x00)
}

// SetFSMMode selects the electrode run mode: timer mode runs all channels
// with baseline tracking, software mode runs them with baseline tracking
// disabled so readings move only when sampled.
func (d *Device) SetFSMMode(mode hw.FSMMode) error {
	ecr := uint8(0x80 | hw.NumChannels) // CL=10 baseline tracking, 10 electrodes
	if mode == hw.FSMSoftware {
		ecr = uint8(0x40 | hw.NumChannels)
	}
	return d.writeReg(regECR, ecr)
}

// autoConfigLimits derives the auto-configuration search limits from the
// effective reference voltage in millivolts, per the datasheet formulas:
// up limit = ((vref - 700mV) / vref) * 256, target 90% and low limit 65%
// of the up limit.
func autoConfigLimits(vrefMilliVolts int) (up, target, low uint8) {
	up = uint8((vrefMilliVolts - 700) * 256 / vrefMilliVolts)
	target = uint8(int(up) * 90 / 100)
	low = uint8(int(up) * 65 / 100)
	return up, target, low
}

// SetVoltage maps the reference levels onto the auto-config search limits.
// The attenuation shifts the effective high reference by its step.
func (d *Device) SetVoltage(high, low hw.VoltageLevel, atten hw.VoltageAttenuation) error {
	// 2.4V..2.7V in 100mV steps, expressed in mV.
	vref := 2400 + 100*int(high)
	switch atten {
	case hw.Attenuation1V5:
		vref -= 500
	case hw.Attenuation1V:
		// reference point, no shift
	case hw.Attenuation0V5:
		vref += 500
	case hw.Attenuation0V:
		vref += 1000
	}
	up, target, lo := autoConfigLimits(vref)
	_ = low // discharge reference is fixed by the chip

	return d.stopped(func() error {
		if err := d.writeReg(regAutoConfig0, 0x0B); err != nil {
			return err
		}
		if err := d.writeReg(regUpLimit, up); err != nil {
			return err
		}
		if err := d.writeReg(regTargetLimit, target); err != nil {
			return err
		}
		return d.writeReg(regLowLimit, lo)
	})
}

// SetTriggerMode accepts the below-threshold polarity; the MPR121 signals a
// touch only when the counter drops below baseline, so the above-threshold
// polarity is not available on this backend.
func (d *Device) SetTriggerMode(mode hw.TriggerMode) error {
	if mode != hw.TriggerBelow {
		return fmt.Errorf("mpr121: trigger mode %d not supported", mode)
	}
	return nil
}

// esiBits encodes the sample interval closest to the requested period into
// the CONFIG2 ESI field (1..128ms in power-of-two steps).
func esiBits(period time.Duration) uint8 {
	esi := uint8(0)
	for ms := period.Milliseconds(); ms > 1 && esi < 7; ms >>= 1 {
		esi++
	}
	return esi
}

// FilterStart programs the second filter iteration count and the sample
// interval.
func (d *Device) FilterStart(period time.Duration) error {
	esi := esiBits(period)
	return d.stopped(func() error {
		if err := d.writeReg(regConfig1, 0x10); err != nil {
			return err
		}
		return d.writeReg(regConfig2, 0x20|esi)
	})
}

// FilterStop returns the sample interval to its 1ms default; the chip has no
// way to bypass its filter chain entirely.
func (d *Device) FilterStop() error {
	return d.stopped(func() error {
		return d.writeReg(regConfig2, 0x20)
	})
}

// EnableInterrupts requests the IRQ line with falling-edge events. Events
// are delivered on the gpiocdev event goroutine.
func (d *Device) EnableInterrupts() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.line != nil {
		return nil
	}
	line, err := gpiocdev.RequestLine(d.irqChip, d.irqLine,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(d.onEdge))
	if err != nil {
		return fmt.Errorf("mpr121: request irq line %s:%d: %w", d.irqChip, d.irqLine, err)
	}
	d.line = line
	return nil
}

// DisableInterrupts releases the IRQ line.
func (d *Device) DisableInterrupts() error {
	d.mu.Lock()
	line := d.line
	d.line = nil
	d.mu.Unlock()
	if line != nil {
		return line.Close()
	}
	return nil
}

// ClearInterrupts reads the touch status word, which deasserts the chip's
// IRQ output.
func (d *Device) ClearInterrupts() error {
	var buf [2]byte
	return d.readReg(regTouchStatusL, buf[:])
}

func (d *Device) onEdge(gpiocdev.LineEvent) {
	d.mu.Lock()
	isr := d.isr
	d.mu.Unlock()
	if isr != nil {
		isr()
	}
}

func (d *Device) ISRRegister(fn func()) error {
	d.mu.Lock()
	d.isr = fn
	d.mu.Unlock()
	return nil
}

func (d *Device) ISRDeregister() error {
	d.mu.Lock()
	d.isr = nil
	d.mu.Unlock()
	return nil
}

// Status returns the touched-channel bitmask.
func (d *Device) Status() (uint16, error) {
	var buf [2]byte
	if err := d.readReg(regTouchStatusL, buf[:]); err != nil {
		return 0, err
	}
	mask := uint16(buf[0]) | uint16(buf[1])<<8
	return mask & ((1 << hw.NumChannels) - 1), nil
}

// ClearStatus reads the status word; the MPR121 latches status only until
// read, so the read is the clear.
func (d *Device) ClearStatus() error {
	return d.ClearInterrupts()
}

// ConfigChannel programs the electrode's touch threshold. The chip thresholds
// are 8-bit baseline deltas, so the 16-bit counter threshold is scaled down;
// the release threshold tracks at half the touch threshold.
func (d *Device) ConfigChannel(channel int, threshold uint16) error {
	if channel < 0 || channel >= hw.NumChannels {
		return fmt.Errorf("mpr121: channel %d out of range", channel)
	}
	t8 := threshold >> 2
	if t8 > 0xFF {
		t8 = 0xFF
	}
	if t8 == 0 {
		t8 = 1
	}
	return d.stopped(func() error {
		if err := d.writeReg(uint8(regTouchTh0+2*channel), uint8(t8)); err != nil {
			return err
		}
		return d.writeReg(uint8(regReleaseTh0+2*channel), uint8(t8/2))
	})
}

// Read returns the electrode's second-stage filtered data, the closest the
// chip exposes to a raw counter (10 bits).
func (d *Device) Read(channel int) (uint16, error) {
	if channel < 0 || channel >= hw.NumChannels {
		return 0, fmt.Errorf("mpr121: channel %d out of range", channel)
	}
	var buf [2]byte
	if err := d.readReg(uint8(regFiltData0L+2*channel), buf[:]); err != nil {
		return 0, err
	}
	return (uint16(buf[0]) | uint16(buf[1])<<8) & 0x3FF, nil
}

// ReadFiltered returns the electrode's third-stage baseline value, shifted
// back to the 10-bit counter scale.
func (d *Device) ReadFiltered(channel int) (uint16, error) {
	if channel < 0 || channel >= hw.NumChannels {
		return 0, fmt.Errorf("mpr121: channel %d out of range", channel)
	}
	var buf [1]byte
	if err := d.readReg(uint8(regBaseline0+channel), buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0]) << 2, nil
}
