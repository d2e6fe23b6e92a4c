package uart

import (
	"bytes"
	"sync"
	"time"

	"github.com/mklimuk/peripherals"
)

// MockEventDevice simulates an event-driven controller without hardware.
// Transmissions stay in flight until CompleteTx is called; received data is
// injected with InjectRx. Events are dispatched on the calling goroutine.
//
// Example usage:
//
//	dev := NewMockEventDevice()
//	t, _ := New(dev, rxA, rxB, 100*time.Microsecond)
//	_ = t.Write([]byte("AB"))
//	dev.CompleteTx() // sink now holds "AB"
type MockEventDevice struct {
	mx sync.Mutex

	// NotReady makes Ready report false.
	NotReady bool
	// Loopback feeds every completed transmission back as received data.
	Loopback bool
	// TxHook, when set, decides the result of each Tx call.
	TxHook func(buf []byte) error

	cb      EventCallback
	active  []byte
	sink    bytes.Buffer
	txCalls int

	rxOn      bool
	rxCur     []byte
	rxOff     int
	rxNext    []byte
	responses [][]byte
}

var _ EventDevice = &MockEventDevice{}

func NewMockEventDevice() *MockEventDevice {
	return &MockEventDevice{}
}

func (d *MockEventDevice) Ready() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return !d.NotReady
}

func (d *MockEventDevice) SetCallback(cb EventCallback) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.cb = cb
	return nil
}

func (d *MockEventDevice) Tx(buf []byte, _ time.Duration) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.txCalls++
	if d.TxHook != nil {
		if err := d.TxHook(buf); err != nil {
			return err
		}
	}
	if d.active != nil {
		return peripherals.ErrBusy
	}
	d.active = buf
	return nil
}

func (d *MockEventDevice) TxAbort() error {
	d.mx.Lock()
	buf := d.active
	d.active = nil
	d.mx.Unlock()
	if buf == nil {
		return peripherals.ErrNoActiveTransfer
	}
	d.Emit(Event{Type: EventTxAborted, Data: buf})
	return nil
}

// CompleteTx finishes the transmission in flight. It returns false when the
// line is idle.
func (d *MockEventDevice) CompleteTx() bool {
	d.mx.Lock()
	buf := d.active
	d.active = nil
	if buf != nil {
		d.sink.Write(buf)
	}
	loop := d.Loopback
	d.mx.Unlock()
	if buf == nil {
		return false
	}
	// copy before the completion path recycles the node
	var echo []byte
	if loop {
		echo = append([]byte(nil), buf...)
	}
	d.Emit(Event{Type: EventTxDone, Data: buf})
	if loop {
		d.InjectRx(echo)
	}
	return true
}

// Flush completes transmissions until the line is idle and returns how many
// were completed.
func (d *MockEventDevice) Flush() int {
	n := 0
	for d.CompleteTx() {
		n++
	}
	return n
}

// Sink returns everything transmitted so far.
func (d *MockEventDevice) Sink() []byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]byte(nil), d.sink.Bytes()...)
}

func (d *MockEventDevice) TxActive() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.active != nil
}

func (d *MockEventDevice) TxCalls() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.txCalls
}

func (d *MockEventDevice) RxEnable(buf []byte, _ time.Duration) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.rxOn {
		return peripherals.ErrAlready
	}
	d.rxOn = true
	d.rxCur = buf
	d.rxOff = 0
	d.rxNext = nil
	return nil
}

func (d *MockEventDevice) RxBufRsp(buf []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.responses = append(d.responses, buf)
	d.rxNext = buf
	return nil
}

func (d *MockEventDevice) RxDisable() error {
	d.mx.Lock()
	if !d.rxOn {
		d.mx.Unlock()
		return peripherals.ErrAlready
	}
	d.rxOn = false
	d.rxCur = nil
	d.mx.Unlock()
	d.Emit(Event{Type: EventRxDisabled})
	return nil
}

// RequestBuffer raises EventRxBufRequest and returns the buffer handed back.
func (d *MockEventDevice) RequestBuffer() []byte {
	d.Emit(Event{Type: EventRxBufRequest})
	d.mx.Lock()
	defer d.mx.Unlock()
	if len(d.responses) == 0 {
		return nil
	}
	return d.responses[len(d.responses)-1]
}

// InjectRx delivers data as if it arrived on the line. With reception enabled
// the bytes land in the active receive buffer and buffers rotate when full;
// otherwise a single EventRxReady carries data as is.
func (d *MockEventDevice) InjectRx(data []byte) {
	d.mx.Lock()
	if !d.rxOn || d.rxCur == nil {
		d.mx.Unlock()
		d.Emit(Event{Type: EventRxReady, Data: data})
		return
	}
	d.mx.Unlock()
	for len(data) > 0 {
		d.mx.Lock()
		cur, off := d.rxCur, d.rxOff
		if cur == nil {
			d.mx.Unlock()
			return
		}
		n := copy(cur[off:], data)
		d.rxOff += n
		full := d.rxOff == len(cur)
		d.mx.Unlock()

		d.Emit(Event{Type: EventRxReady, Data: cur[off : off+n]})
		data = data[n:]
		if !full {
			continue
		}
		d.Emit(Event{Type: EventRxBufRequest})
		d.mx.Lock()
		d.rxCur, d.rxNext, d.rxOff = d.rxNext, nil, 0
		d.mx.Unlock()
		d.Emit(Event{Type: EventRxBufReleased, Data: cur})
	}
}

// Emit dispatches evt to the installed callback.
func (d *MockEventDevice) Emit(evt Event) {
	d.mx.Lock()
	cb := d.cb
	d.mx.Unlock()
	if cb != nil {
		cb(d, evt)
	}
}

// MockIRQDevice simulates an interrupt-driven controller with FIFOs of
// FifoSize bytes. The handler only runs when Fire or Pump is called.
type MockIRQDevice struct {
	mx sync.Mutex

	NotReady    bool
	FifoSize    int
	CallbackErr error

	handler IRQHandler
	rxIRQ   bool
	txIRQ   bool
	rxFifo  []byte
	txFifo  []byte
	sink    bytes.Buffer
}

var _ IRQDevice = &MockIRQDevice{}

func NewMockIRQDevice(fifoSize int) *MockIRQDevice {
	if fifoSize <= 0 {
		fifoSize = 16
	}
	return &MockIRQDevice{FifoSize: fifoSize}
}

func (d *MockIRQDevice) Ready() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return !d.NotReady
}

func (d *MockIRQDevice) IRQCallbackSet(h IRQHandler) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.CallbackErr != nil {
		return d.CallbackErr
	}
	d.handler = h
	return nil
}

func (d *MockIRQDevice) IRQUpdate() bool { return true }

func (d *MockIRQDevice) IRQIsPending() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return (d.rxIRQ && len(d.rxFifo) > 0) || d.txIRQ
}

func (d *MockIRQDevice) IRQRxEnable() { d.setIRQ(&d.rxIRQ, true) }

func (d *MockIRQDevice) IRQRxDisable() { d.setIRQ(&d.rxIRQ, false) }

func (d *MockIRQDevice) IRQTxEnable() { d.setIRQ(&d.txIRQ, true) }

func (d *MockIRQDevice) IRQTxDisable() { d.setIRQ(&d.txIRQ, false) }

func (d *MockIRQDevice) setIRQ(flag *bool, v bool) {
	d.mx.Lock()
	*flag = v
	d.mx.Unlock()
}

func (d *MockIRQDevice) IRQRxReady() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.rxIRQ && len(d.rxFifo) > 0
}

func (d *MockIRQDevice) IRQTxReady() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	if !d.txIRQ {
		return 0
	}
	return d.FifoSize - len(d.txFifo)
}

func (d *MockIRQDevice) IRQTxComplete() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.txIRQ && len(d.txFifo) == 0
}

func (d *MockIRQDevice) FifoRead(buf []byte) int {
	d.mx.Lock()
	defer d.mx.Unlock()
	n := copy(buf, d.rxFifo)
	d.rxFifo = d.rxFifo[n:]
	return n
}

func (d *MockIRQDevice) FifoFill(buf []byte) int {
	d.mx.Lock()
	defer d.mx.Unlock()
	room := d.FifoSize - len(d.txFifo)
	if room > len(buf) {
		room = len(buf)
	}
	d.txFifo = append(d.txFifo, buf[:room]...)
	return room
}

// Feed places data in the RX FIFO. Call Fire to let the handler collect it.
func (d *MockIRQDevice) Feed(data []byte) {
	d.mx.Lock()
	d.rxFifo = append(d.rxFifo, data...)
	d.mx.Unlock()
}

// Fire runs the installed handler once.
func (d *MockIRQDevice) Fire() {
	d.mx.Lock()
	h := d.handler
	d.mx.Unlock()
	if h != nil {
		h(d)
	}
}

// Drain shifts the TX FIFO out to the sink. It returns false when the FIFO was
// already empty.
func (d *MockIRQDevice) Drain() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	if len(d.txFifo) == 0 {
		return false
	}
	d.sink.Write(d.txFifo)
	d.txFifo = d.txFifo[:0]
	return true
}

// Pump alternates interrupts and FIFO drains until transmit interrupts are
// disabled or limit rounds have run.
func (d *MockIRQDevice) Pump(limit int) {
	for i := 0; i < limit; i++ {
		d.Fire()
		d.Drain()
		if !d.TxIRQEnabled() {
			return
		}
	}
}

func (d *MockIRQDevice) TxIRQEnabled() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.txIRQ
}

func (d *MockIRQDevice) RxIRQEnabled() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.rxIRQ
}

func (d *MockIRQDevice) Sink() []byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]byte(nil), d.sink.Bytes()...)
}
