package peripherals

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDeviceNotReady  = errors.New("device not ready")
	ErrUnsupported     = errors.New("operation not supported")
	// ErrBusy is transient. The UART transport absorbs it by queueing.
	ErrBusy        = errors.New("device busy")
	ErrOutOfMemory = errors.New("out of memory")
	// ErrCanceled is raised on the bus completion signal when an engine shuts down.
	ErrCanceled = errors.New("operation canceled")
	// ErrNoActiveTransfer is returned by abort primitives when nothing is in flight.
	ErrNoActiveTransfer = errors.New("no active transfer")
	ErrAlready          = errors.New("operation already in progress")
)

// ErrBusBusy is reported by bridge adapters whose I2C engine has not finished
// the previous command.
var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed): %w", ErrBusy)
