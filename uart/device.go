package uart

import (
	"time"
)

// Device is the minimal contract of a serial controller handed to New.
// The transport borrows it and never closes it.
type Device interface {
	Ready() bool
}

type EventType int

const (
	EventTxDone EventType = iota
	EventTxAborted
	EventRxReady
	EventRxBufRequest
	EventRxBufReleased
	EventRxDisabled
	EventRxStopped
)

func (t EventType) String() string {
	switch t {
	case EventTxDone:
		return "TX_DONE"
	case EventTxAborted:
		return "TX_ABORTED"
	case EventRxReady:
		return "RX_RDY"
	case EventRxBufRequest:
		return "RX_BUF_REQUEST"
	case EventRxBufReleased:
		return "RX_BUF_RELEASED"
	case EventRxDisabled:
		return "RX_DISABLED"
	case EventRxStopped:
		return "RX_STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered by an EventDevice. Data aliases driver memory and is only
// valid for the duration of the callback: the transmitted buffer for tx events,
// the received slice for EventRxReady, the released buffer for
// EventRxBufReleased and, optionally, the buffer being filled for
// EventRxBufRequest.
type Event struct {
	Type EventType
	Data []byte
	Err  error
}

// EventCallback is never invoked concurrently with itself for a given device.
type EventCallback func(dev EventDevice, evt Event)

// EventDevice is a controller with an asynchronous, event-reporting API.
type EventDevice interface {
	Device
	// SetCallback installs the event handler; nil detaches it.
	SetCallback(cb EventCallback) error
	// Tx starts a non-blocking transmission of buf. It returns peripherals.ErrBusy
	// when a transmission is already active.
	Tx(buf []byte, timeout time.Duration) error
	// TxAbort returns peripherals.ErrNoActiveTransfer when nothing is being sent.
	TxAbort() error
	RxEnable(buf []byte, timeout time.Duration) error
	// RxBufRsp answers EventRxBufRequest with the next receive buffer.
	RxBufRsp(buf []byte) error
	RxDisable() error
}

// IRQHandler runs in interrupt context: it must not block.
type IRQHandler func(dev IRQDevice)

// IRQDevice is a controller driven by interrupt polling of its FIFOs.
type IRQDevice interface {
	Device
	// IRQCallbackSet installs the handler; nil detaches it.
	IRQCallbackSet(h IRQHandler) error
	IRQUpdate() bool
	IRQIsPending() bool
	IRQRxEnable()
	IRQRxDisable()
	IRQTxEnable()
	IRQTxDisable()
	IRQRxReady() bool
	// IRQTxReady returns how many bytes the TX FIFO accepts right now, 0 when full.
	IRQTxReady() int
	IRQTxComplete() bool
	FifoRead(buf []byte) int
	FifoFill(buf []byte) int
}

// Backend identifies the completion path chosen at initialization.
type Backend int

const (
	BackendNone Backend = iota
	BackendEvent
	BackendIRQ
)

func (b Backend) String() string {
	switch b {
	case BackendEvent:
		return "event"
	case BackendIRQ:
		return "irq"
	default:
		return "none"
	}
}
