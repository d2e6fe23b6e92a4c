package i2c

import (
	"context"
	"sync"

	"github.com/mklimuk/peripherals"
)

// TransferFunc defines how a mock bus answers a chain of messages. Read
// messages are filled in place.
type TransferFunc func(ctx context.Context, msgs []Msg, addr uint16) error

// MockController is a bus without hardware. Blocking transfers run the behavior
// function directly; asynchronous ones are held until Complete is called.
//
// Example usage:
//
//	bus := NewMockController(func(ctx context.Context, msgs []Msg, addr uint16) error {
//		msgs[1].Buf[0] = 0xAB
//		return nil
//	})
//	e, _ := New(Spec{Bus: bus, Addr: 0x69})
//	_ = e.AsyncWriteRead([]byte{0x59}, rx)
//	bus.Complete() // the engine callback now sees rx[0] == 0xAB
type MockController struct {
	mx       sync.Mutex
	behavior TransferFunc

	NotReady bool
	// StartErr makes the asynchronous primitives reject the transfer.
	StartErr error

	pending []mockTransfer
	calls   int
}

type mockTransfer struct {
	msgs   []Msg
	addr   uint16
	notify func(error)
}

var (
	_ Controller         = &MockController{}
	_ SignalTransferer   = &MockController{}
	_ CallbackTransferer = &MockController{}
)

func NewMockController(behavior TransferFunc) *MockController {
	if behavior == nil {
		behavior = func(context.Context, []Msg, uint16) error { return nil }
	}
	return &MockController{behavior: behavior}
}

func (m *MockController) Ready() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return !m.NotReady
}

func (m *MockController) Transfer(ctx context.Context, msgs []Msg, addr uint16) error {
	m.mx.Lock()
	m.calls++
	m.mx.Unlock()
	return m.behavior(ctx, msgs, addr)
}

func (m *MockController) TransferSignal(msgs []Msg, addr uint16, sig *Signal) error {
	return m.hold(msgs, addr, sig.Raise)
}

func (m *MockController) TransferCallback(msgs []Msg, addr uint16, done func(error)) error {
	return m.hold(msgs, addr, done)
}

func (m *MockController) hold(msgs []Msg, addr uint16, notify func(error)) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.NotReady {
		return peripherals.ErrDeviceNotReady
	}
	if m.StartErr != nil {
		return m.StartErr
	}
	m.pending = append(m.pending, mockTransfer{msgs: msgs, addr: addr, notify: notify})
	return nil
}

// Complete runs the behavior for the oldest held transfer and reports its
// result. It returns false when nothing is held.
func (m *MockController) Complete() bool {
	m.mx.Lock()
	if len(m.pending) == 0 {
		m.mx.Unlock()
		return false
	}
	t := m.pending[0]
	m.pending = m.pending[1:]
	m.calls++
	m.mx.Unlock()
	t.notify(m.behavior(context.Background(), t.msgs, t.addr))
	return true
}

// Held returns the number of asynchronous transfers waiting for Complete.
func (m *MockController) Held() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return len(m.pending)
}

// Calls counts transfers that reached the behavior function.
func (m *MockController) Calls() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.calls
}
