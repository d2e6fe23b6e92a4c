package uart

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/peripherals"
)

// pipePort is an in-memory serial line: what the device writes comes out of
// remoteRx, what is written to remoteTx is read by the device.
type pipePort struct {
	rx *io.PipeReader
	tx *io.PipeWriter
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.rx.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return p.tx.Write(b) }
func (p *pipePort) Close() error {
	_ = p.tx.Close()
	return p.rx.Close()
}

func newPipePort() (port *pipePort, remoteRx *io.PipeReader, remoteTx *io.PipeWriter) {
	devRx, remoteTx := io.Pipe()
	remoteRx, devTx := io.Pipe()
	return &pipePort{rx: devRx, tx: devTx}, remoteRx, remoteTx
}

func TestStreamDevice_Transport(t *testing.T) {
	port, remoteRx, remoteTx := newPipePort()
	dev := NewStreamDevice(port)
	tr, err := New(dev, make([]byte, 4), make([]byte, 4), 0)
	require.NoError(t, err)
	require.NoError(t, tr.RxRingInit(make([]byte, 64)))
	require.NoError(t, tr.RxEnable())

	go func() {
		_, _ = remoteTx.Write([]byte("hello, line"))
	}()
	var got []byte
	require.Eventually(t, func() bool {
		buf := make([]byte, 16)
		n := tr.RxGet(buf)
		got = append(got, buf[:n]...)
		return string(got) == "hello, line"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Write([]byte("ping")))
	require.NoError(t, tr.Write([]byte("pong")))
	out := make([]byte, 8)
	_, err = io.ReadFull(remoteRx, out)
	require.NoError(t, err)
	assert.Equal(t, "pingpong", string(out))
	require.Eventually(t, func() bool {
		return !tr.TxBusy() && tr.Stats().Outstanding == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Deinit())
	require.NoError(t, dev.Close())
}

func TestStreamDevice_Busy(t *testing.T) {
	port, remoteRx, _ := newPipePort()
	dev := NewStreamDevice(port)
	assert.True(t, dev.Ready())
	assert.ErrorIs(t, dev.TxAbort(), peripherals.ErrNoActiveTransfer)

	done := make(chan Event, 1)
	require.NoError(t, dev.SetCallback(func(_ EventDevice, evt Event) { done <- evt }))
	require.NoError(t, dev.Tx([]byte("abc"), Forever))
	assert.ErrorIs(t, dev.Tx([]byte("def"), Forever), peripherals.ErrBusy)
	require.NoError(t, dev.TxAbort())

	buf := make([]byte, 3)
	_, err := io.ReadFull(remoteRx, buf)
	require.NoError(t, err)
	select {
	case evt := <-done:
		assert.Equal(t, EventTxAborted, evt.Type)
		assert.Equal(t, "abc", string(evt.Data))
	case <-time.After(time.Second):
		t.Fatal("no tx completion")
	}
	require.NoError(t, dev.Close())
}

func TestStreamDevice_ReceiveAfterReenable(t *testing.T) {
	tests := []struct {
		name   string
		cycles int
	}{
		{"no cycle", 0},
		{"one cycle", 1},
		{"three cycles", 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			port, _, remoteTx := newPipePort()
			dev := NewStreamDevice(port)
			tr, err := New(dev, make([]byte, 4), make([]byte, 4), 0)
			require.NoError(t, err)
			require.NoError(t, tr.RxRingInit(make([]byte, 64)))
			require.NoError(t, tr.RxEnable())
			for i := 0; i < test.cycles; i++ {
				require.NoError(t, tr.RxDisable())
				assert.ErrorIs(t, tr.RxDisable(), peripherals.ErrAlready)
				require.NoError(t, tr.RxEnable())
			}
			assert.ErrorIs(t, dev.RxEnable(make([]byte, 4), 0), peripherals.ErrAlready)

			go func() {
				for _, chunk := range []string{"ab", "cdefgh", "ijklmnop"} {
					_, _ = remoteTx.Write([]byte(chunk))
				}
			}()
			var got []byte
			require.Eventually(t, func() bool {
				buf := make([]byte, 16)
				n := tr.RxGet(buf)
				got = append(got, buf[:n]...)
				return len(got) >= 16
			}, time.Second, 5*time.Millisecond)
			assert.Equal(t, "abcdefghijklmnop", string(got))

			require.NoError(t, tr.Deinit())
			require.NoError(t, dev.Close())
		})
	}
}
