package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/mklimuk/peripherals"
	"github.com/mklimuk/peripherals/i2c"
)

func TestMAX31341_RevisionID(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: MAX31341Address, W: []byte{RegRevisionID}, R: []byte{0xAB}},
			{Addr: MAX31341Address, W: []byte{RegRevisionID}, R: []byte{0xAB}},
		},
	}
	e, err := i2c.New(i2c.Spec{Bus: i2c.NewPeriphController(playback), Addr: MAX31341Address})
	require.NoError(t, err)
	defer func() { _ = e.Deinit() }()
	clock := NewMAX31341(e)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := clock.ReadRevisionIDAsync(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), id)

	id, err = clock.ReadRevisionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), id)
	assert.NoError(t, playback.Close())
}

func TestMAX31341_Timeout(t *testing.T) {
	bus := i2c.NewMockController(nil)
	e, err := i2c.New(i2c.Spec{Bus: bus, Addr: MAX31341Address})
	require.NoError(t, err)
	defer func() { _ = e.Deinit() }()
	clock := NewMAX31341(e)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = clock.ReadRevisionIDAsync(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the first read still owns the engine
	_, err = clock.ReadRevisionIDAsync(context.Background())
	assert.ErrorIs(t, err, peripherals.ErrBusy)

	require.True(t, bus.Complete())
	require.Eventually(t, func() bool { return !e.Busy() }, time.Second, time.Millisecond)
}
