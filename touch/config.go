package touch

import (
	"time"

	"github.com/sweeney/captouch/hw"
)

// ReadMode selects which counter a Channel.Read returns.
type ReadMode uint8

const (
	// ReadRaw reads the unfiltered counter.
	ReadRaw ReadMode = iota
	// ReadFiltered reads the hardware-filtered counter. Requires the
	// filter to be started, which Init does for this mode.
	ReadFiltered
)

// Config is the system-wide peripheral configuration. It is copied into the
// controller at construction; mutating a Config after New has no effect on
// the controller.
type Config struct {
	// VoltageHigh and VoltageLow are the charge/discharge reference
	// voltages applied to all channels.
	VoltageHigh hw.VoltageLevel
	VoltageLow  hw.VoltageLevel

	// Attenuation is the sensing voltage attenuation.
	Attenuation hw.VoltageAttenuation

	// FilterPeriod is the hardware filter period. Used only with
	// ReadFiltered mode.
	FilterPeriod time.Duration

	// Mode selects raw or filtered channel reads.
	Mode ReadMode

	// Trigger is the interrupt trigger polarity.
	Trigger hw.TriggerMode
}

// DefaultConfig returns the configuration used when callers have no special
// requirements: filtered reads with a 10ms filter and touch-lowers-counter
// trigger polarity.
func DefaultConfig() Config {
	return Config{
		VoltageHigh:  hw.Voltage2V7,
		VoltageLow:   hw.Voltage2V4,
		Attenuation:  hw.Attenuation1V,
		FilterPeriod: 10 * time.Millisecond,
		Mode:         ReadFiltered,
		Trigger:      hw.TriggerBelow,
	}
}

// Threshold fraction default: the calibrated trigger threshold is two thirds
// of an untouched filtered reading.
const (
	defaultFractionNum = 2
	defaultFractionDen = 3
)

// ChannelConfig carries per-channel settings supplied when opening a pin.
// The zero value selects by GPIO number with the default 2/3 threshold
// fraction.
type ChannelConfig struct {
	// Select determines how the pin argument of OpenChannel is resolved.
	Select SelectMode

	// Threshold is the base trigger threshold, programmed only when
	// calibration cannot derive one (a zero filtered reading).
	Threshold uint16

	// FractionNum/FractionDen express the threshold fraction applied to a
	// fresh filtered reading. A zero denominator selects the default 2/3.
	// The division truncates: a reading of 601 with 2/3 yields 400.
	FractionNum uint16
	FractionDen uint16
}

// withDefaults fills in the default threshold fraction.
func (c ChannelConfig) withDefaults() ChannelConfig {
	if c.FractionDen == 0 {
		c.FractionNum = defaultFractionNum
		c.FractionDen = defaultFractionDen
	}
	return c
}

// scale applies the threshold fraction to a reading.
func (c ChannelConfig) scale(reading uint16) uint16 {
	return uint16(uint32(reading) * uint32(c.FractionNum) / uint32(c.FractionDen))
}
