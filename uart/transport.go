// Package uart wraps a serial controller with a non-blocking transport: a
// double-buffered receive path feeding a byte ring, and a FIFO of transmit
// nodes with a single transmission in flight. The completion path is either
// event-driven or interrupt-driven, resolved once when the transport is created.
package uart

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/lists/doublylinkedlist"

	"github.com/mklimuk/peripherals"
)

// Forever disables the transmit timeout of an event-driven controller.
const Forever time.Duration = -1

// RxCallback receives every chunk delivered by the backend. data is only valid
// during the call.
type RxCallback func(t *Transport, data []byte)

// TxDoneCallback runs after each completed transmission.
type TxDoneCallback func(t *Transport)

type Opts struct {
	RxCallback     RxCallback
	TxDoneCallback TxDoneCallback
	Logger         *slog.Logger
	// EventAPI and InterruptDriven gate which backends may be selected.
	EventAPI        bool
	InterruptDriven bool
	// TxBudget caps the bytes held by queued and pending nodes, 0 is unlimited.
	TxBudget  int
	TxTimeout time.Duration
}

type Opt func(*Opts)

func WithRxCallback(cb RxCallback) Opt {
	return func(o *Opts) {
		o.RxCallback = cb
	}
}

func WithTxDoneCallback(cb TxDoneCallback) Opt {
	return func(o *Opts) {
		o.TxDoneCallback = cb
	}
}

func WithLogger(l *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = l
	}
}

func WithEventAPI(enabled bool) Opt {
	return func(o *Opts) {
		o.EventAPI = enabled
	}
}

func WithInterruptDriven(enabled bool) Opt {
	return func(o *Opts) {
		o.InterruptDriven = enabled
	}
}

func WithTxBudget(bytes int) Opt {
	return func(o *Opts) {
		o.TxBudget = bytes
	}
}

func WithTxTimeout(d time.Duration) Opt {
	return func(o *Opts) {
		o.TxTimeout = d
	}
}

// Transport is one UART channel. Any number of transports may coexist, each
// bound to its own device.
type Transport struct {
	dev     Device
	evdev   EventDevice
	irqdev  IRQDevice
	backend Backend

	rxBuf     [2][]byte
	rxIdx     uint8
	rxTimeout time.Duration
	ring      atomic.Pointer[Ring]

	// mx is the critical section shared by callers and the completion path.
	mx         sync.Mutex
	txQueue    *doublylinkedlist.List
	txPending  *txNode
	txProgress int
	txTimeout  time.Duration
	pool       nodePool
	closed     atomic.Bool

	rxCb   RxCallback
	txDone TxDoneCallback
	log    *slog.Logger
}

// New binds a transport to dev. rxA and rxB are the receive double buffers and
// must have the same non-zero length.
func New(dev Device, rxA, rxB []byte, rxTimeout time.Duration, opts ...Opt) (*Transport, error) {
	if dev == nil || len(rxA) == 0 || len(rxB) == 0 {
		return nil, peripherals.ErrInvalidArgument
	}
	if len(rxA) != len(rxB) {
		return nil, fmt.Errorf("receive buffers differ in length (%d != %d): %w", len(rxA), len(rxB), peripherals.ErrInvalidArgument)
	}
	config := Opts{
		EventAPI:        true,
		InterruptDriven: true,
		TxTimeout:       Forever,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	t := &Transport{
		dev:       dev,
		rxBuf:     [2][]byte{rxA, rxB},
		rxIdx:     1,
		rxTimeout: rxTimeout,
		txQueue:   doublylinkedlist.New(),
		txTimeout: config.TxTimeout,
		pool:      nodePool{budget: int64(config.TxBudget)},
		rxCb:      config.RxCallback,
		txDone:    config.TxDoneCallback,
		log:       config.Logger.With("component", "uart"),
	}
	if !dev.Ready() {
		t.log.Error("UART device not ready")
		return nil, peripherals.ErrDeviceNotReady
	}

	if ed, ok := dev.(EventDevice); ok && config.EventAPI {
		t.log.Info("adding callback for event API")
		if err := ed.SetCallback(t.handleEvent); err != nil {
			return nil, fmt.Errorf("could not set uart event callback: %w", err)
		}
		t.evdev = ed
		t.backend = BackendEvent
		return t, nil
	}

	if id, ok := dev.(IRQDevice); ok && config.InterruptDriven {
		t.log.Info("adding callback for IRQ backend")
		if err := id.IRQCallbackSet(t.handleIRQ); err != nil {
			t.log.Error("error setting UART IRQ callback", "error", err)
			return nil, fmt.Errorf("could not set uart irq callback: %w", err)
		}
		t.irqdev = id
		t.backend = BackendIRQ
		id.IRQRxEnable()
		return t, nil
	}

	return nil, peripherals.ErrUnsupported
}

func (t *Transport) Device() Device { return t.dev }

func (t *Transport) Backend() Backend { return t.backend }

// Write copies data into a transmit node and hands it to the hardware, or
// queues it behind the transmission in flight. It never blocks on the wire.
func (t *Transport) Write(data []byte) error {
	if len(data) == 0 {
		return peripherals.ErrInvalidArgument
	}
	if t.closed.Load() {
		return peripherals.ErrDeviceNotReady
	}
	node, err := t.pool.get(data)
	if err != nil {
		return err
	}
	switch t.backend {
	case BackendEvent:
		t.mx.Lock()
		t.txQueue.Add(node)
		t.mx.Unlock()
		return t.startNextEvent(node)
	case BackendIRQ:
		t.writeIRQ(node)
		return nil
	}
	t.pool.put(node)
	return peripherals.ErrUnsupported
}

// TxBusy reports whether a transmission is in flight.
func (t *Transport) TxBusy() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.txPending != nil
}

// RxRingInit installs the ring that accumulates received bytes.
func (t *Transport) RxRingInit(storage []byte) error {
	if len(storage) == 0 {
		return peripherals.ErrInvalidArgument
	}
	t.ring.Store(NewRing(storage))
	return nil
}

// RxGet drains up to len(dst) received bytes and returns how many were copied.
func (t *Transport) RxGet(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	ring := t.ring.Load()
	if ring == nil {
		return 0
	}
	return ring.Get(dst)
}

// RxEnable starts reception into the first receive buffer.
func (t *Transport) RxEnable() error {
	switch t.backend {
	case BackendEvent:
		err := t.evdev.RxEnable(t.rxBuf[0], t.rxTimeout)
		if err != nil && !errors.Is(err, peripherals.ErrAlready) {
			t.log.Error("uart rx enable failed", "error", err)
		}
		return err
	case BackendIRQ:
		t.irqdev.IRQRxEnable()
		return nil
	}
	return peripherals.ErrUnsupported
}

func (t *Transport) RxDisable() error {
	switch t.backend {
	case BackendEvent:
		err := t.evdev.RxDisable()
		if err != nil && !errors.Is(err, peripherals.ErrAlready) {
			t.log.Error("uart rx disable failed", "error", err)
		}
		return err
	case BackendIRQ:
		t.irqdev.IRQRxDisable()
		return nil
	}
	return peripherals.ErrUnsupported
}

// RxDeinit stops reception and discards buffered bytes.
func (t *Transport) RxDeinit() error {
	if t == nil {
		return peripherals.ErrInvalidArgument
	}
	_ = t.RxDisable()
	if ring := t.ring.Load(); ring != nil {
		ring.Reset()
	}
	return nil
}

// TxCancelAndFlush aborts the transmission in flight and frees every queued
// node. With the event API the pending node is released by the abort
// completion; bytes already in an IRQ FIFO still go out.
func (t *Transport) TxCancelAndFlush() error {
	// drain first so the abort completion has nothing left to start
	t.mx.Lock()
	flushed := t.drainLocked()
	t.mx.Unlock()
	for _, n := range flushed {
		t.pool.put(n)
	}
	if len(flushed) > 0 {
		t.log.Debug("flushed queued transmissions", "count", len(flushed))
	}
	if t.backend == BackendIRQ {
		t.irqdev.IRQTxDisable()
		t.mx.Lock()
		pending := t.txPending
		t.txPending, t.txProgress = nil, 0
		t.mx.Unlock()
		t.pool.put(pending)
		return nil
	}
	if t.evdev == nil {
		return nil
	}
	err := t.evdev.TxAbort()
	if err != nil && !errors.Is(err, peripherals.ErrNoActiveTransfer) && !errors.Is(err, peripherals.ErrUnsupported) {
		t.log.Warn("uart tx abort failed", "error", err)
		return err
	}
	return nil
}

// Deinit cancels transmissions, stops reception and detaches the completion
// handler. Nodes still held once the handler is detached are released here.
func (t *Transport) Deinit() error {
	if t == nil {
		return peripherals.ErrInvalidArgument
	}
	t.closed.Store(true)
	if err := t.TxCancelAndFlush(); err != nil {
		t.log.Warn("tx cancel during deinit", "error", err)
	}
	_ = t.RxDeinit()
	switch t.backend {
	case BackendEvent:
		if err := t.evdev.SetCallback(nil); err != nil {
			t.log.Warn("could not detach uart event callback", "error", err)
		}
	case BackendIRQ:
		t.irqdev.IRQTxDisable()
		t.irqdev.IRQRxDisable()
		if err := t.irqdev.IRQCallbackSet(nil); err != nil {
			t.log.Warn("could not detach uart irq callback", "error", err)
		}
	}
	t.mx.Lock()
	leftover := t.drainLocked()
	if t.txPending != nil {
		leftover = append(leftover, t.txPending)
		t.txPending = nil
		t.txProgress = 0
	}
	t.mx.Unlock()
	for _, n := range leftover {
		t.pool.put(n)
	}
	return nil
}

// Stats reports transmit node accounting.
func (t *Transport) Stats() Stats {
	s := t.pool.stats()
	t.mx.Lock()
	s.Queued = t.txQueue.Size()
	t.mx.Unlock()
	return s
}

// deliver pushes received bytes to the ring and the receive callback.
func (t *Transport) deliver(data []byte) {
	if ring := t.ring.Load(); ring != nil && ring.Size() > 0 {
		if n := ring.Put(data); n < len(data) {
			t.log.Warn("rx ring full, dropping bytes", "dropped", len(data)-n)
		}
	}
	if t.rxCb != nil {
		t.rxCb(t, data)
	}
}

func (t *Transport) popLocked() *txNode {
	v, ok := t.txQueue.Get(0)
	if !ok {
		return nil
	}
	t.txQueue.Remove(0)
	return v.(*txNode)
}

func (t *Transport) drainLocked() []*txNode {
	if t.txQueue.Empty() {
		return nil
	}
	nodes := make([]*txNode, 0, t.txQueue.Size())
	it := t.txQueue.Iterator()
	for it.Next() {
		nodes = append(nodes, it.Value().(*txNode))
	}
	t.txQueue.Clear()
	return nodes
}
