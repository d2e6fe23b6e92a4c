package i2c

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/peripherals"
)

const (
	rtcAddr  = 0x69
	rtcRegID = 0x59
)

// revisionBus answers a register read of the revision ID with 0xAB.
func revisionBus() *MockController {
	return NewMockController(func(_ context.Context, msgs []Msg, addr uint16) error {
		if addr != rtcAddr || len(msgs) != 2 || msgs[0].Buf[0] != rtcRegID {
			return errors.New("unexpected transfer")
		}
		msgs[1].Buf[0] = 0xAB
		return nil
	})
}

type callbackRecord struct {
	result error
	rx     []byte
}

func recordCallbacks(t *testing.T, e *Engine) chan callbackRecord {
	t.Helper()
	ch := make(chan callbackRecord, 8)
	require.NoError(t, e.RegisterCallback(func(result error, rx []byte) {
		ch <- callbackRecord{result: result, rx: rx}
	}))
	return ch
}

func TestNew(t *testing.T) {
	_, err := New(Spec{Addr: rtcAddr})
	assert.ErrorIs(t, err, peripherals.ErrInvalidArgument)

	bus := NewMockController(nil)
	bus.NotReady = true
	_, err = New(Spec{Bus: bus, Addr: rtcAddr})
	assert.ErrorIs(t, err, peripherals.ErrDeviceNotReady)

	e, err := New(Spec{Bus: NewMockController(nil), Addr: rtcAddr})
	require.NoError(t, err)
	assert.Equal(t, uint16(rtcAddr), e.Spec().Addr)
	require.NoError(t, e.Deinit())
}

func TestSyncTransfers(t *testing.T) {
	var got [][]Msg
	hwErr := errors.New("NACK")
	fail := false
	bus := NewMockController(func(_ context.Context, msgs []Msg, _ uint16) error {
		got = append(got, append([]Msg(nil), msgs...))
		if fail {
			return hwErr
		}
		return nil
	})
	e, err := New(Spec{Bus: bus, Addr: rtcAddr})
	require.NoError(t, err)
	defer func() { _ = e.Deinit() }()
	ctx := context.Background()

	tests := []struct {
		name  string
		call  func() error
		flags []MsgFlags
	}{
		{"write", func() error { return e.Write(ctx, []byte{1, 2}) }, []MsgFlags{MsgWrite | MsgStop}},
		{"read", func() error { return e.Read(ctx, make([]byte, 2)) }, []MsgFlags{MsgRead | MsgStop}},
		{"write read", func() error { return e.WriteRead(ctx, []byte{rtcRegID}, make([]byte, 1)) }, []MsgFlags{MsgWrite, MsgRestart | MsgRead | MsgStop}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got = nil
			require.NoError(t, test.call())
			require.Len(t, got, 1)
			require.Len(t, got[0], len(test.flags))
			for i, f := range test.flags {
				assert.Equal(t, f, got[0][i].Flags, got[0][i].String())
			}
		})
	}

	assert.ErrorIs(t, e.Write(ctx, nil), peripherals.ErrInvalidArgument)
	assert.ErrorIs(t, e.Read(ctx, []byte{}), peripherals.ErrInvalidArgument)
	assert.ErrorIs(t, e.WriteRead(ctx, []byte{1}, nil), peripherals.ErrInvalidArgument)

	fail = true
	assert.ErrorIs(t, e.Write(ctx, []byte{1}), hwErr)
	assert.False(t, e.Busy(), "blocking calls never touch the async state")
}

func TestAsyncWriteRead_RevisionID(t *testing.T) {
	tests := []struct {
		name string
		opts []Opt
	}{
		{name: "signal primitive"},
		{name: "callback primitive", opts: []Opt{WithSignalTransfer(false)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus := revisionBus()
			e, err := New(Spec{Bus: bus, Addr: rtcAddr}, test.opts...)
			require.NoError(t, err)
			calls := recordCallbacks(t, e)

			reg := []byte{rtcRegID}
			rx := make([]byte, 1)
			require.NoError(t, e.AsyncWriteRead(reg, rx))
			assert.True(t, e.Busy())
			require.Equal(t, 1, bus.Held())
			require.True(t, bus.Complete())

			select {
			case rec := <-calls:
				assert.NoError(t, rec.result)
				require.Len(t, rec.rx, 1)
				assert.Equal(t, byte(0xAB), rec.rx[0])
				assert.Same(t, &rx[0], &rec.rx[0])
			case <-time.After(time.Second):
				t.Fatal("callback not invoked")
			}
			require.NoError(t, e.Deinit())
			assert.Empty(t, calls, "callback invoked more than once")
		})
	}
}

func TestAsyncWriteRead_PersistentMessages(t *testing.T) {
	bus := revisionBus()
	e, err := New(Spec{Bus: bus, Addr: rtcAddr})
	require.NoError(t, err)
	defer func() { _ = e.Deinit() }()

	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1)))
	assert.Equal(t, MsgWrite, e.msgs[0].Flags)
	assert.Equal(t, MsgRead|MsgStop, e.msgs[1].Flags)
	bus.mx.Lock()
	held := bus.pending[0].msgs
	bus.mx.Unlock()
	assert.Same(t, &e.msgs[0], &held[0], "descriptors are reused in place")
}

func TestAsyncWriteRead_SingleOutstanding(t *testing.T) {
	bus := revisionBus()
	e, err := New(Spec{Bus: bus, Addr: rtcAddr})
	require.NoError(t, err)
	calls := recordCallbacks(t, e)

	rx := make([]byte, 1)
	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, rx))
	err = e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1))
	assert.ErrorIs(t, err, peripherals.ErrBusy)
	assert.Equal(t, 1, bus.Held(), "rejected call never reaches the bus")

	require.True(t, bus.Complete())
	<-calls
	require.Eventually(t, func() bool { return !e.Busy() }, time.Second, time.Millisecond)

	// the next transaction may start once the callback has run
	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, rx))
	require.True(t, bus.Complete())
	<-calls

	require.NoError(t, e.Deinit())
	assert.Empty(t, calls)
}

func TestAsyncWriteRead_ChainFromCallback(t *testing.T) {
	bus := revisionBus()
	e, err := New(Spec{Bus: bus, Addr: rtcAddr})
	require.NoError(t, err)

	var count atomic.Int32
	restarted := make(chan error, 1)
	require.NoError(t, e.RegisterCallback(func(result error, rx []byte) {
		if count.Add(1) == 1 {
			restarted <- e.AsyncWriteRead([]byte{rtcRegID}, rx)
		}
	}))
	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1)))
	require.True(t, bus.Complete())
	assert.NoError(t, <-restarted)
	require.Eventually(t, func() bool { return bus.Held() == 1 }, time.Second, time.Millisecond)
	require.True(t, bus.Complete())
	require.Eventually(t, func() bool { return count.Load() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, e.Deinit())
}

func TestAsyncWriteRead_CompletionError(t *testing.T) {
	nack := errors.New("NACK")
	bus := NewMockController(func(context.Context, []Msg, uint16) error { return nack })
	e, err := New(Spec{Bus: bus, Addr: rtcAddr})
	require.NoError(t, err)
	calls := recordCallbacks(t, e)

	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1)))
	bus.Complete()
	rec := <-calls
	assert.ErrorIs(t, rec.result, nack)
	require.NoError(t, e.Deinit())
}

func TestAsyncWriteRead_StartErrors(t *testing.T) {
	t.Run("invalid arguments", func(t *testing.T) {
		e, err := New(Spec{Bus: NewMockController(nil), Addr: rtcAddr})
		require.NoError(t, err)
		defer func() { _ = e.Deinit() }()
		assert.ErrorIs(t, e.AsyncWriteRead(nil, make([]byte, 1)), peripherals.ErrInvalidArgument)
		assert.ErrorIs(t, e.AsyncWriteRead([]byte{1}, nil), peripherals.ErrInvalidArgument)
		assert.False(t, e.Busy())
	})

	t.Run("rejected by bus", func(t *testing.T) {
		bus := NewMockController(nil)
		bus.StartErr = errors.New("EIO")
		e, err := New(Spec{Bus: bus, Addr: rtcAddr})
		require.NoError(t, err)
		calls := recordCallbacks(t, e)
		assert.ErrorIs(t, e.AsyncWriteRead([]byte{1}, make([]byte, 1)), bus.StartErr)
		assert.False(t, e.Busy())
		require.NoError(t, e.Deinit())
		assert.Empty(t, calls, "worker is never woken for a rejected transfer")
	})

	t.Run("no async primitive", func(t *testing.T) {
		e, err := New(Spec{Bus: NewMockController(nil), Addr: rtcAddr},
			WithSignalTransfer(false), WithCallbackTransfer(false))
		require.NoError(t, err)
		defer func() { _ = e.Deinit() }()
		assert.ErrorIs(t, e.AsyncWriteRead([]byte{1}, make([]byte, 1)), peripherals.ErrUnsupported)
		assert.False(t, e.Busy())
	})
}

func TestRegisterCallback(t *testing.T) {
	bus := revisionBus()
	e, err := New(Spec{Bus: bus, Addr: rtcAddr})
	require.NoError(t, err)

	var mx sync.Mutex
	var seen []string
	record := func(name string) Callback {
		return func(error, []byte) {
			mx.Lock()
			seen = append(seen, name)
			mx.Unlock()
		}
	}
	require.NoError(t, e.RegisterCallback(record("first")))
	require.NoError(t, e.RegisterCallback(record("second")))
	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1)))
	bus.Complete()
	require.Eventually(t, func() bool { return !e.Busy() }, time.Second, time.Millisecond)

	// nil clears the registration
	require.NoError(t, e.RegisterCallback(nil))
	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1)))
	bus.Complete()
	require.Eventually(t, func() bool { return !e.Busy() }, time.Second, time.Millisecond)
	require.NoError(t, e.Deinit())

	mx.Lock()
	defer mx.Unlock()
	assert.Equal(t, []string{"second"}, seen)

	var nilEngine *Engine
	assert.ErrorIs(t, nilEngine.RegisterCallback(nil), peripherals.ErrInvalidArgument)
}

func TestDeinit_WakesBlockedWorker(t *testing.T) {
	e, err := New(Spec{Bus: NewMockController(nil), Addr: rtcAddr})
	require.NoError(t, err)
	calls := recordCallbacks(t, e)

	done := make(chan error)
	go func() { done <- e.Deinit() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
	}
	assert.Empty(t, calls, "shutdown wake is not a completion")
	assert.ErrorIs(t, e.AsyncWriteRead([]byte{1}, make([]byte, 1)), peripherals.ErrDeviceNotReady)
	assert.NoError(t, e.Deinit())

	var nilEngine *Engine
	assert.ErrorIs(t, nilEngine.Deinit(), peripherals.ErrInvalidArgument)
}

func TestDeinit_OutstandingTransfer(t *testing.T) {
	bus := revisionBus()
	e, err := New(Spec{Bus: bus, Addr: rtcAddr})
	require.NoError(t, err)
	calls := recordCallbacks(t, e)

	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1)))
	require.NoError(t, e.Deinit())
	// late completion after teardown goes nowhere
	assert.True(t, bus.Complete())
	assert.Empty(t, calls)
}

func TestDeinit_FromCallback(t *testing.T) {
	bus := revisionBus()
	e, err := New(Spec{Bus: bus, Addr: rtcAddr})
	require.NoError(t, err)

	deinit := make(chan error, 1)
	require.NoError(t, e.RegisterCallback(func(error, []byte) {
		deinit <- e.Deinit()
	}))
	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1)))
	require.True(t, bus.Complete())

	select {
	case err := <-deinit:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("deinit from the callback did not return")
	}
	select {
	case <-e.done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after the callback returned")
	}
	assert.ErrorIs(t, e.AsyncWriteRead([]byte{rtcRegID}, make([]byte, 1)), peripherals.ErrDeviceNotReady)
	assert.NoError(t, e.Deinit())
}
