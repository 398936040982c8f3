// Package hw defines the register-level contract for a capacitive-touch
// peripheral with a fixed set of sensing channels sharing one global
// configuration block and one interrupt line.
// The real implementation talks to hardware; the fake implementation allows
// testing without hardware.
package hw

import "time"

// NumChannels is the number of sensing channels the peripheral exposes.
const NumChannels = 10

// VoltageLevel selects a charge/discharge reference voltage.
type VoltageLevel uint8

const (
	Voltage2V4 VoltageLevel = iota
	Voltage2V5
	Voltage2V6
	Voltage2V7
)

// VoltageAttenuation selects the voltage attenuation applied while sensing.
type VoltageAttenuation uint8

const (
	Attenuation1V  VoltageAttenuation = iota // 1.0V
	Attenuation1V5                           // 1.5V
	Attenuation0V5                           // 0.5V
	Attenuation0V                            // none
)

// FSMMode selects how the measurement state machine is started.
type FSMMode uint8

const (
	// FSMTimer starts measurements from a hardware timer.
	FSMTimer FSMMode = iota
	// FSMSoftware starts measurements from explicit software triggers.
	FSMSoftware
)

// TriggerMode selects the counter/threshold comparison that raises an
// interrupt for a channel.
type TriggerMode uint8

const (
	// TriggerBelow raises an interrupt when the counter drops below the
	// channel threshold (a touch increases capacitance and lowers the count).
	TriggerBelow TriggerMode = iota
	// TriggerAbove raises an interrupt when the counter exceeds the
	// channel threshold.
	TriggerAbove
)

// Interface is the register-level touch peripheral driver.
// Every call returns an error for any non-success hardware status; callers
// surface these verbatim.
//
// Implementations must deliver interrupts from their own goroutine: the
// callback passed to ISRRegister is never invoked synchronously from
// ISRRegister, EnableInterrupts, or any other Interface call. Callers rely
// on this to hold locks across enable/disable transitions.
type Interface interface {
	// Init powers up and initializes the peripheral.
	Init() error
	// Deinit powers down the peripheral.
	Deinit() error

	// SetFSMMode selects the measurement start mode.
	SetFSMMode(mode FSMMode) error
	// SetVoltage configures the charge/discharge reference voltages and
	// attenuation for all channels.
	SetVoltage(high, low VoltageLevel, atten VoltageAttenuation) error
	// SetTriggerMode sets the global counter/threshold trigger polarity.
	SetTriggerMode(mode TriggerMode) error

	// FilterStart starts the hardware reading filter with the given period.
	FilterStart(period time.Duration) error
	// FilterStop stops the hardware reading filter.
	FilterStop() error

	// EnableInterrupts enables the peripheral's interrupt line.
	EnableInterrupts() error
	// DisableInterrupts disables the peripheral's interrupt line.
	DisableInterrupts() error
	// ClearInterrupts clears any latched interrupt condition.
	ClearInterrupts() error

	// ISRRegister installs fn as the single native interrupt service
	// routine. At most one routine is installed at a time.
	ISRRegister(fn func()) error
	// ISRDeregister removes the installed interrupt service routine.
	// Removing when none is installed is not an error.
	ISRDeregister() error

	// Status returns the bitmask of channels currently signaling a touch
	// condition (bit i set = channel i).
	Status() (uint16, error)
	// ClearStatus clears the hardware status register.
	ClearStatus() error

	// ConfigChannel sets the trigger threshold for one channel.
	ConfigChannel(channel int, threshold uint16) error
	// Read returns the channel's current raw counter value.
	Read(channel int) (uint16, error)
	// ReadFiltered returns the channel's current filtered counter value.
	// Valid only while the filter is running.
	ReadFiltered(channel int) (uint16, error)
}
