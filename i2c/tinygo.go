package i2c

import (
	"context"

	"tinygo.org/x/drivers"
)

var (
	_ Controller         = &TinyGoController{}
	_ CallbackTransferer = &TinyGoController{}
)

// TinyGoController adapts a tinygo.org/x/drivers bus, so drivers written for
// microcontrollers and their host fakes can back an engine.
type TinyGoController struct {
	txBus
	bus drivers.I2C
}

func NewTinyGoController(bus drivers.I2C) *TinyGoController {
	c := &TinyGoController{bus: bus}
	if bus != nil {
		c.tx = bus.Tx
	}
	return c
}

func (c *TinyGoController) Ready() bool {
	return c.bus != nil
}

func (c *TinyGoController) Transfer(ctx context.Context, msgs []Msg, addr uint16) error {
	return c.transfer(ctx, msgs, addr)
}

func (c *TinyGoController) TransferCallback(msgs []Msg, addr uint16, done func(error)) error {
	return transferAsync(c, msgs, addr, done)
}
