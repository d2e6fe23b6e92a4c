package i2c

import (
	"context"
	"fmt"
	"log/slog"

	pi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	_ Controller         = &PeriphController{}
	_ CallbackTransferer = &PeriphController{}
)

// PeriphController drives a bus registered with periph.io, e.g. /dev/i2c-1.
type PeriphController struct {
	txBus
	bus    pi2c.Bus
	closer pi2c.BusCloser
}

// OpenPeriph initializes the host drivers and opens the named bus. An empty
// name opens the first bus available.
func OpenPeriph(name string) (*PeriphController, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	c := NewPeriphController(bus)
	c.closer = bus
	return c, nil
}

func NewPeriphController(bus pi2c.Bus) *PeriphController {
	c := &PeriphController{bus: bus}
	if bus != nil {
		c.tx = bus.Tx
	}
	return c
}

func (c *PeriphController) Ready() bool {
	return c.bus != nil
}

func (c *PeriphController) Transfer(ctx context.Context, msgs []Msg, addr uint16) error {
	return c.transfer(ctx, msgs, addr)
}

func (c *PeriphController) TransferCallback(msgs []Msg, addr uint16, done func(error)) error {
	return transferAsync(c, msgs, addr, done)
}

func (c *PeriphController) String() string {
	if c.bus == nil {
		return "periph(closed)"
	}
	return c.bus.String()
}

func (c *PeriphController) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
