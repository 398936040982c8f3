//go:build !linux

package mpr121

import (
	"errors"
	"time"

	"github.com/sweeney/captouch/hw"
)

// Config selects the bus and interrupt wiring.
type Config struct {
	Bus     string
	Addr    uint16
	IRQChip string
	IRQLine int
}

// Device is not available on non-Linux platforms.
type Device struct{}

var errUnsupported = errors.New("mpr121: not supported on this platform (requires Linux)")

// Open returns an error on non-Linux platforms.
func Open(Config) (*Device, error) {
	return nil, errUnsupported
}

func (*Device) Close() error { return nil }

func (*Device) Init() error                                                  { return errUnsupported }
func (*Device) Deinit() error                                                { return errUnsupported }
func (*Device) SetFSMMode(hw.FSMMode) error                                  { return errUnsupported }
func (*Device) SetVoltage(_, _ hw.VoltageLevel, _ hw.VoltageAttenuation) error { return errUnsupported }
func (*Device) SetTriggerMode(hw.TriggerMode) error                          { return errUnsupported }
func (*Device) FilterStart(time.Duration) error                              { return errUnsupported }
func (*Device) FilterStop() error                                            { return errUnsupported }
func (*Device) EnableInterrupts() error                                      { return errUnsupported }
func (*Device) DisableInterrupts() error                                     { return errUnsupported }
func (*Device) ClearInterrupts() error                                       { return errUnsupported }
func (*Device) ISRRegister(func()) error                                     { return errUnsupported }
func (*Device) ISRDeregister() error                                         { return errUnsupported }
func (*Device) Status() (uint16, error)                                      { return 0, errUnsupported }
func (*Device) ClearStatus() error                                           { return errUnsupported }
func (*Device) ConfigChannel(int, uint16) error                              { return errUnsupported }
func (*Device) Read(int) (uint16, error)                                     { return 0, errUnsupported }
func (*Device) ReadFiltered(int) (uint16, error)                             { return 0, errUnsupported }
