package i2c

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignal(t *testing.T) {
	s := NewSignal()
	signaled, result := s.Check()
	assert.False(t, signaled)
	assert.NoError(t, result)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)

	res := errors.New("EIO")
	s.Raise(res)
	s.Raise(res) // a second raise does not queue a second wake
	assert.NoError(t, s.Wait(context.Background()))
	signaled, result = s.Check()
	assert.True(t, signaled)
	assert.ErrorIs(t, result, res)

	s.Reset()
	signaled, _ = s.Check()
	assert.False(t, signaled)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	assert.Error(t, s.Wait(ctx2))
}
