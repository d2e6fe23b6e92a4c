package i2c

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/peripherals"
)

// txBus runs message chains on a bus exposing a combined write-then-read Tx,
// the shape shared by periph.io and TinyGo buses. Transfers are serialized.
type txBus struct {
	mx sync.Mutex
	tx func(addr uint16, w, r []byte) error
}

func (b *txBus) transfer(ctx context.Context, msgs []Msg, addr uint16) error {
	segs, err := segments(msgs)
	if err != nil {
		return fmt.Errorf("invalid transfer: %w", peripherals.ErrInvalidArgument)
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	for _, s := range segs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.tx(addr, s.w, s.r); err != nil {
			return fmt.Errorf("could not transfer to i2c address %#x: %w", addr, err)
		}
	}
	return nil
}

// transferAsync runs transfer on its own goroutine and reports to done.
func transferAsync(c Controller, msgs []Msg, addr uint16, done func(error)) error {
	if !c.Ready() {
		return peripherals.ErrDeviceNotReady
	}
	if _, err := segments(msgs); err != nil {
		return fmt.Errorf("invalid transfer: %w", peripherals.ErrInvalidArgument)
	}
	go func() {
		done(c.Transfer(context.Background(), msgs, addr))
	}()
	return nil
}
