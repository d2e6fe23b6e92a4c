package i2c

import (
	"context"
	"sync"
)

// Signal is a one-shot completion flag carrying a result. Raise sets it and
// wakes a single waiter; Reset clears it before the next transaction.
type Signal struct {
	mx       sync.Mutex
	signaled bool
	result   error
	wake     chan struct{}
}

func NewSignal() *Signal {
	return &Signal{wake: make(chan struct{}, 1)}
}

func (s *Signal) Raise(result error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.signaled = true
	s.result = result
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Signal) Check() (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.signaled, s.result
}

func (s *Signal) Reset() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.signaled = false
	s.result = nil
	select {
	case <-s.wake:
	default:
	}
}

// Wait blocks until the signal is raised or ctx is done. It does not clear
// the signal.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
