package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/peripherals"
)

var (
	_ Controller         = &AddressableController{}
	_ CallbackTransferer = &AddressableController{}
)

// AddressableController runs transfers on a peripherals.I2CBus, such as a USB
// bridge. Write and read are separate bus transactions there, so a repeated
// start degrades to stop and start.
type AddressableController struct {
	mx         sync.Mutex
	bus        peripherals.I2CBus
	retryLimit int
}

func NewAddressableController(bus peripherals.I2CBus) *AddressableController {
	return &AddressableController{bus: bus, retryLimit: 2}
}

// Ready asks the bus when it can tell.
func (c *AddressableController) Ready() bool {
	if c.bus == nil {
		return false
	}
	if r, ok := c.bus.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

func (c *AddressableController) Transfer(ctx context.Context, msgs []Msg, addr uint16) error {
	if addr > 0x7f {
		return fmt.Errorf("10-bit address %#x: %w", addr, peripherals.ErrUnsupported)
	}
	segs, err := segments(msgs)
	if err != nil {
		return fmt.Errorf("invalid transfer: %w", peripherals.ErrInvalidArgument)
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	for _, s := range segs {
		if s.w != nil {
			err = c.retry(ctx, func() error { return c.bus.WriteToAddr(ctx, byte(addr), s.w) })
			if err != nil {
				return fmt.Errorf("could not write to %#x: %w", addr, err)
			}
		}
		if s.r != nil {
			err = c.retry(ctx, func() error { return c.bus.ReadFromAddr(ctx, byte(addr), s.r) })
			if err != nil {
				return fmt.Errorf("could not read from %#x: %w", addr, err)
			}
		}
	}
	return nil
}

// retry releases a busy bus and tries again up to the retry limit.
func (c *AddressableController) retry(ctx context.Context, op func() error) error {
	var err error
	for i := c.retryLimit; i > 0; i-- {
		err = op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, peripherals.ErrBusBusy) {
			return err
		}
		// try to release the bus
		_ = c.bus.Release(ctx)
	}
	return fmt.Errorf("retry limit reached: %w", err)
}

func (c *AddressableController) TransferCallback(msgs []Msg, addr uint16, done func(error)) error {
	return transferAsync(c, msgs, addr, done)
}
