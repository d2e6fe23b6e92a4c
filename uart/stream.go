package uart

import (
	"io"
	"sync"
	"time"

	"github.com/mklimuk/peripherals"
)

// StreamDevice drives a byte stream, typically a host serial port, through the
// event-driven controller contract. A reader goroutine fills the receive
// buffers handed over by the transport; each Tx runs one blocking write on its
// own goroutine. Events are serialized.
type StreamDevice struct {
	port io.ReadWriteCloser

	// evMx serializes event delivery.
	evMx sync.Mutex

	mx      sync.Mutex
	cb      EventCallback
	txBusy  bool
	txAbort bool

	rxOn    bool
	rxGen   uint64
	rxCur   []byte
	rxNext  []byte
	rxOff   int
	reading bool
	rxDone  chan struct{}
}

// readChunk bounds a single port read.
const readChunk = 256

var _ EventDevice = &StreamDevice{}

func NewStreamDevice(port io.ReadWriteCloser) *StreamDevice {
	return &StreamDevice{port: port}
}

func (d *StreamDevice) Ready() bool {
	return d.port != nil
}

func (d *StreamDevice) SetCallback(cb EventCallback) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.cb = cb
	return nil
}

func (d *StreamDevice) emit(evt Event) {
	d.evMx.Lock()
	defer d.evMx.Unlock()
	d.mx.Lock()
	cb := d.cb
	d.mx.Unlock()
	if cb != nil {
		cb(d, evt)
	}
}

// Tx writes buf in the background. The timeout is not enforced: a stream
// write cannot be interrupted, TxAbort only turns the completion into
// EventTxAborted.
func (d *StreamDevice) Tx(buf []byte, _ time.Duration) error {
	d.mx.Lock()
	if d.txBusy {
		d.mx.Unlock()
		return peripherals.ErrBusy
	}
	d.txBusy = true
	d.txAbort = false
	d.mx.Unlock()

	go func() {
		_, err := d.port.Write(buf)
		d.mx.Lock()
		aborted := d.txAbort
		d.txBusy = false
		d.mx.Unlock()
		typ := EventTxDone
		if aborted || err != nil {
			typ = EventTxAborted
		}
		d.emit(Event{Type: typ, Data: buf, Err: err})
	}()
	return nil
}

func (d *StreamDevice) TxAbort() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if !d.txBusy {
		return peripherals.ErrNoActiveTransfer
	}
	d.txAbort = true
	return nil
}

// RxEnable arms a receive session on buf and asks for the next buffer before
// returning. Reception runs on one reader goroutine that lives until the port
// is closed; bytes read while no session is armed are dropped, like a disabled
// receiver would.
func (d *StreamDevice) RxEnable(buf []byte, _ time.Duration) error {
	if len(buf) == 0 {
		return peripherals.ErrInvalidArgument
	}
	d.mx.Lock()
	if d.rxOn || d.rxCur != nil {
		d.mx.Unlock()
		return peripherals.ErrAlready
	}
	d.rxCur, d.rxNext, d.rxOff = buf, nil, 0
	d.mx.Unlock()

	d.emit(Event{Type: EventRxBufRequest, Data: buf})

	d.mx.Lock()
	defer d.mx.Unlock()
	if d.rxCur == nil {
		// the reader hit a port error in between
		return peripherals.ErrDeviceNotReady
	}
	d.rxOn = true
	d.rxGen++
	if !d.reading {
		d.reading = true
		d.rxDone = make(chan struct{})
		go d.readLoop(d.rxDone)
	}
	return nil
}

func (d *StreamDevice) RxBufRsp(buf []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.rxCur == nil {
		return peripherals.ErrUnsupported
	}
	d.rxNext = buf
	return nil
}

// RxDisable ends the session. The buffer in use is released and
// EventRxDisabled follows asynchronously, so it is safe to call from the
// event callback.
func (d *StreamDevice) RxDisable() error {
	d.mx.Lock()
	if !d.rxOn {
		d.mx.Unlock()
		return peripherals.ErrAlready
	}
	cur, off := d.rxCur, d.rxOff
	d.rxOn = false
	d.rxCur, d.rxNext, d.rxOff = nil, nil, 0
	d.mx.Unlock()

	go func() {
		d.emit(Event{Type: EventRxBufReleased, Data: cur[:off]})
		d.emit(Event{Type: EventRxDisabled})
	}()
	return nil
}

// Close closes the port, which also ends a blocked read.
func (d *StreamDevice) Close() error {
	d.mx.Lock()
	done := d.rxDone
	d.mx.Unlock()
	err := d.port.Close()
	if done != nil {
		<-done
	}
	return err
}

func (d *StreamDevice) readLoop(done chan struct{}) {
	defer close(done)
	buf := make([]byte, readChunk)
	for {
		n, err := d.port.Read(buf)
		if n > 0 {
			d.store(buf[:n])
		}
		if err == nil {
			continue
		}
		d.mx.Lock()
		on := d.rxOn
		cur, off := d.rxCur, d.rxOff
		d.reading = false
		d.rxOn = false
		d.rxCur, d.rxNext, d.rxOff = nil, nil, 0
		d.mx.Unlock()
		if !on {
			return
		}
		if err != io.EOF {
			d.emit(Event{Type: EventRxStopped, Err: err})
		}
		d.emit(Event{Type: EventRxBufReleased, Data: cur[:off]})
		d.emit(Event{Type: EventRxDisabled})
		return
	}
}

// store copies data into the session buffers, rotating to the next buffer
// when the current one fills. Without a next buffer reception stops.
func (d *StreamDevice) store(data []byte) {
	for len(data) > 0 {
		d.mx.Lock()
		if !d.rxOn {
			d.mx.Unlock()
			return
		}
		gen := d.rxGen
		cur, off := d.rxCur, d.rxOff
		n := copy(cur[off:], data)
		d.rxOff += n
		full := d.rxOff == len(cur)
		d.mx.Unlock()

		d.emit(Event{Type: EventRxReady, Data: cur[off : off+n]})
		data = data[n:]
		if !full {
			continue
		}

		d.mx.Lock()
		if !d.rxOn || d.rxGen != gen {
			// disabled while delivering, RxDisable released the buffer
			d.mx.Unlock()
			return
		}
		next := d.rxNext
		d.rxCur, d.rxNext, d.rxOff = next, nil, 0
		if next == nil {
			d.rxOn = false
		}
		d.mx.Unlock()

		d.emit(Event{Type: EventRxBufReleased, Data: cur})
		if next == nil {
			d.emit(Event{Type: EventRxDisabled})
			return
		}
		d.emit(Event{Type: EventRxBufRequest, Data: next})
	}
}
