package i2c

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/mklimuk/peripherals"
)

func TestSegments(t *testing.T) {
	a, b, c := []byte{1}, []byte{2}, []byte{3}
	tests := []struct {
		name     string
		msgs     []Msg
		expected []segment
	}{
		{"write", []Msg{{a, MsgWrite | MsgStop}}, []segment{{w: a}}},
		{"read", []Msg{{a, MsgRead | MsgStop}}, []segment{{r: a}}},
		{"write read", []Msg{{a, MsgWrite}, {b, MsgRestart | MsgRead | MsgStop}}, []segment{{w: a, r: b}}},
		{"stop splits", []Msg{{a, MsgWrite | MsgStop}, {b, MsgRead | MsgStop}}, []segment{{w: a}, {r: b}}},
		{"two reads", []Msg{{a, MsgWrite}, {b, MsgRead}, {c, MsgRead | MsgStop}}, []segment{{w: a, r: b}, {r: c}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := segments(test.msgs)
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
	_, err := segments([]Msg{{nil, MsgWrite}})
	assert.Error(t, err)
}

func TestMsgFlags_String(t *testing.T) {
	assert.Equal(t, "WRITE", MsgWrite.String())
	assert.Equal(t, "READ|RESTART|STOP", (MsgRead | MsgStop | MsgRestart).String())
}

func TestPeriphController_Engine(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: rtcAddr, W: []byte{rtcRegID}, R: []byte{0xAB}},
			{Addr: rtcAddr, W: []byte{rtcRegID}, R: []byte{0xAC}},
			{Addr: rtcAddr, W: []byte{0x00, 0x10}},
		},
	}
	c := NewPeriphController(playback)
	require.True(t, c.Ready())
	e, err := New(Spec{Bus: c, Addr: rtcAddr})
	require.NoError(t, err)
	calls := recordCallbacks(t, e)

	rx := make([]byte, 1)
	require.NoError(t, e.AsyncWriteRead([]byte{rtcRegID}, rx))
	select {
	case rec := <-calls:
		require.NoError(t, rec.result)
		assert.Equal(t, byte(0xAB), rec.rx[0])
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}

	require.NoError(t, e.WriteRead(context.Background(), []byte{rtcRegID}, rx))
	assert.Equal(t, byte(0xAC), rx[0])
	require.NoError(t, e.Write(context.Background(), []byte{0x00, 0x10}))

	require.NoError(t, e.Deinit())
	assert.NoError(t, playback.Close())
}

func TestPeriphController_NotReady(t *testing.T) {
	c := NewPeriphController(nil)
	assert.False(t, c.Ready())
	assert.ErrorIs(t, c.TransferCallback([]Msg{{[]byte{1}, MsgWrite}}, rtcAddr, func(error) {}), peripherals.ErrDeviceNotReady)
	_, err := New(Spec{Bus: c, Addr: rtcAddr})
	assert.ErrorIs(t, err, peripherals.ErrDeviceNotReady)
}

// fakeTinyGoBus has the Tx shape of tinygo.org/x/drivers.I2C.
type fakeTinyGoBus struct {
	mx  sync.Mutex
	txs []i2ctest.IO
	err error
}

func (f *fakeTinyGoBus) Tx(addr uint16, w, r []byte) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.txs = append(f.txs, i2ctest.IO{Addr: addr, W: append([]byte(nil), w...), R: append([]byte(nil), r...)})
	for i := range r {
		r[i] = byte(0xA0 + i)
	}
	return f.err
}

func TestTinyGoController(t *testing.T) {
	bus := &fakeTinyGoBus{}
	c := NewTinyGoController(bus)
	require.True(t, c.Ready())

	rx := make([]byte, 2)
	msgs := []Msg{{[]byte{0x12}, MsgWrite}, {rx, MsgRestart | MsgRead | MsgStop}}
	require.NoError(t, c.Transfer(context.Background(), msgs, 0x20))
	assert.Equal(t, []byte{0xA0, 0xA1}, rx)
	require.Len(t, bus.txs, 1)
	assert.Equal(t, uint16(0x20), bus.txs[0].Addr)

	bus.err = errors.New("NACK")
	done := make(chan error, 1)
	require.NoError(t, c.TransferCallback(msgs, 0x20, func(err error) { done <- err }))
	assert.ErrorIs(t, <-done, bus.err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Transfer(ctx, msgs, 0x20), context.Canceled)
	assert.False(t, NewTinyGoController(nil).Ready())
}

type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestAddressableController(t *testing.T) {
	ctx := context.Background()
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", ctx, byte(0x21), []byte{0x12}).Return(peripherals.ErrBusBusy).Once()
	bus.On("Release", ctx).Return(nil).Once()
	bus.On("WriteToAddr", ctx, byte(0x21), []byte{0x12}).Return(nil).Once()
	bus.On("ReadFromAddr", ctx, byte(0x21), mock.Anything).Return([]byte{0x5A}, nil).Once()

	c := NewAddressableController(bus)
	require.True(t, c.Ready())
	rx := make([]byte, 1)
	err := c.Transfer(ctx, []Msg{{[]byte{0x12}, MsgWrite}, {rx, MsgRestart | MsgRead | MsgStop}}, 0x21)
	require.NoError(t, err)
	assert.Equal(t, byte(0x5A), rx[0])
	bus.AssertExpectations(t)
}

func TestAddressableController_Errors(t *testing.T) {
	ctx := context.Background()
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", ctx, byte(0x21), mock.Anything).Return(peripherals.ErrBusBusy)
	bus.On("Release", ctx).Return(nil)
	c := NewAddressableController(bus)

	err := c.Transfer(ctx, []Msg{{[]byte{0x12}, MsgWrite | MsgStop}}, 0x21)
	assert.ErrorIs(t, err, peripherals.ErrBusy)
	bus.AssertNumberOfCalls(t, "WriteToAddr", 2)

	err = c.Transfer(ctx, []Msg{{[]byte{0x12}, MsgWrite | MsgStop}}, 0x3ff)
	assert.ErrorIs(t, err, peripherals.ErrUnsupported)
	assert.False(t, NewAddressableController(nil).Ready())
}
