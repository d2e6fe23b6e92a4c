// Package i2c runs blocking and asynchronous write-read transactions against a
// single target on a bus. Asynchronous completions are collected by a worker
// goroutine that is the only place the registered callback runs.
package i2c

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mklimuk/peripherals"
)

// Callback receives the result of an asynchronous write-read and the receive
// buffer that was passed to AsyncWriteRead.
type Callback func(result error, rx []byte)

type Opts struct {
	Logger *slog.Logger
	// SignalTransfer and CallbackTransfer gate which asynchronous primitive of
	// the bus may be used. The signal variant wins when both are available.
	SignalTransfer   bool
	CallbackTransfer bool
}

type Opt func(*Opts)

func WithLogger(l *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = l
	}
}

func WithSignalTransfer(enabled bool) Opt {
	return func(o *Opts) {
		o.SignalTransfer = enabled
	}
}

func WithCallbackTransfer(enabled bool) Opt {
	return func(o *Opts) {
		o.CallbackTransfer = enabled
	}
}

var _ peripherals.I2CDevice = &Engine{}

type Engine struct {
	spec Spec
	sig  *Signal

	mx   sync.Mutex
	cb   Callback
	msgs [2]Msg
	rx   []byte

	// inflight is set while an asynchronous transaction owns msgs.
	inflight atomic.Bool
	running  atomic.Bool
	// dispatching is set while the worker runs the callback.
	dispatching atomic.Bool
	done        chan struct{}

	signalTx   bool
	callbackTx bool
	log        *slog.Logger
}

// New validates the bus and starts the completion worker.
func New(spec Spec, opts ...Opt) (*Engine, error) {
	if spec.Bus == nil {
		return nil, peripherals.ErrInvalidArgument
	}
	config := Opts{
		SignalTransfer:   true,
		CallbackTransfer: true,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	log := config.Logger.With("component", "i2c", "addr", spec.String())
	if !spec.Bus.Ready() {
		log.Error("I2C bus device not ready")
		return nil, peripherals.ErrDeviceNotReady
	}
	e := &Engine{
		spec:       spec,
		sig:        NewSignal(),
		done:       make(chan struct{}),
		signalTx:   config.SignalTransfer,
		callbackTx: config.CallbackTransfer,
		log:        log,
	}
	e.running.Store(true)
	go e.worker()
	return e, nil
}

func (e *Engine) worker() {
	defer close(e.done)
	for e.running.Load() {
		_ = e.sig.Wait(context.Background())

		signaled, result := e.sig.Check()
		e.sig.Reset()
		if !signaled {
			continue
		}
		if !e.running.Load() && errors.Is(result, peripherals.ErrCanceled) {
			// shutdown wake, not a completion
			return
		}

		e.mx.Lock()
		cb, rx := e.cb, e.rx
		e.mx.Unlock()
		e.inflight.Store(false)
		if cb != nil {
			e.dispatching.Store(true)
			cb(result, rx)
			e.dispatching.Store(false)
		}
	}
}

func (e *Engine) Spec() Spec { return e.spec }

func (e *Engine) Write(ctx context.Context, buf []byte) error {
	if len(buf) == 0 {
		return peripherals.ErrInvalidArgument
	}
	return e.spec.Bus.Transfer(ctx, []Msg{{Buf: buf, Flags: MsgWrite | MsgStop}}, e.spec.Addr)
}

func (e *Engine) Read(ctx context.Context, buf []byte) error {
	if len(buf) == 0 {
		return peripherals.ErrInvalidArgument
	}
	return e.spec.Bus.Transfer(ctx, []Msg{{Buf: buf, Flags: MsgRead | MsgStop}}, e.spec.Addr)
}

// WriteRead writes tx and reads into rx after a repeated start.
func (e *Engine) WriteRead(ctx context.Context, tx, rx []byte) error {
	if len(tx) == 0 || len(rx) == 0 {
		return peripherals.ErrInvalidArgument
	}
	msgs := []Msg{
		{Buf: tx, Flags: MsgWrite},
		{Buf: rx, Flags: MsgRestart | MsgRead | MsgStop},
	}
	return e.spec.Bus.Transfer(ctx, msgs, e.spec.Addr)
}

// RegisterCallback replaces the completion callback. nil clears it.
func (e *Engine) RegisterCallback(cb Callback) error {
	if e == nil {
		return peripherals.ErrInvalidArgument
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	e.cb = cb
	return nil
}

// AsyncWriteRead starts a write of tx followed by a read into rx and returns
// once the bus accepted it. The result arrives through the registered callback.
// Only one transaction may be outstanding; tx and rx must stay untouched until
// the callback runs.
func (e *Engine) AsyncWriteRead(tx, rx []byte) error {
	if len(tx) == 0 || len(rx) == 0 {
		return peripherals.ErrInvalidArgument
	}
	if !e.running.Load() {
		return peripherals.ErrDeviceNotReady
	}
	if !e.inflight.CompareAndSwap(false, true) {
		return peripherals.ErrBusBusy
	}

	e.mx.Lock()
	e.msgs[0] = Msg{Buf: tx, Flags: MsgWrite}
	e.msgs[1] = Msg{Buf: rx, Flags: MsgRead | MsgStop}
	e.sig.Reset()
	e.rx = rx
	e.mx.Unlock()

	err := e.start()
	if err != nil {
		e.inflight.Store(false)
		e.log.Error("async transfer start failed", "error", err)
		return err
	}
	return nil
}

func (e *Engine) start() error {
	if st, ok := e.spec.Bus.(SignalTransferer); ok && e.signalTx {
		return st.TransferSignal(e.msgs[:], e.spec.Addr, e.sig)
	}
	if ct, ok := e.spec.Bus.(CallbackTransferer); ok && e.callbackTx {
		return ct.TransferCallback(e.msgs[:], e.spec.Addr, e.sig.Raise)
	}
	return peripherals.ErrUnsupported
}

// Busy reports whether an asynchronous transaction is outstanding.
func (e *Engine) Busy() bool {
	return e.inflight.Load()
}

// Deinit stops the worker and waits for it to exit. A transaction still on the
// bus completes without a callback. While a callback is running, including
// when Deinit is called from it, the worker cannot be joined: Deinit returns
// right away and the worker exits once the callback returns.
func (e *Engine) Deinit() error {
	if e == nil {
		return peripherals.ErrInvalidArgument
	}
	e.running.Store(false)
	e.sig.Raise(peripherals.ErrCanceled)
	if !e.dispatching.Load() {
		<-e.done
	}

	e.mx.Lock()
	e.cb = nil
	e.rx = nil
	e.mx.Unlock()
	return nil
}
