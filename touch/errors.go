package touch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPin reports a pin selector that does not resolve to a
	// sensing channel.
	ErrInvalidPin = errors.New("touch: invalid pin")

	// ErrAlreadyOpen reports a claim attempt on a channel that is already
	// owned by a live Channel.
	ErrAlreadyOpen = errors.New("touch: channel already open")

	// ErrIndexOutOfRange reports a channel index outside [0, NumChannels).
	ErrIndexOutOfRange = errors.New("touch: channel index out of range")

	// ErrDisposed reports an operation on a disposed controller.
	ErrDisposed = errors.New("touch: controller disposed")

	// ErrUnimplemented reports a configured read mode this package does
	// not support.
	ErrUnimplemented = errors.New("touch: read mode not implemented")

	// ErrReleased reports an operation on a released channel.
	ErrReleased = errors.New("touch: channel released")
)

// HardwareError wraps a non-success status returned by the hardware
// interface. The underlying error is surfaced verbatim via Unwrap.
type HardwareError struct {
	Op  string // the failed operation, e.g. "set voltage"
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("touch: %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

func hwErr(op string, err error) error {
	return &HardwareError{Op: op, Err: err}
}
