package i2c

import (
	"context"
	"fmt"
	"sync"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
)

var (
	_ Controller         = &GobotController{}
	_ CallbackTransferer = &GobotController{}
)

// GobotController runs transfers through a gobot I2C connector, e.g. a NanoPi
// adaptor. One generic driver is started per target address.
type GobotController struct {
	mx        sync.Mutex
	connector gi2c.Connector
	busNr     int
	drivers   map[uint16]*gi2c.GenericDriver
}

func NewGobotController(connector gi2c.Connector, busNr int) *GobotController {
	return &GobotController{
		connector: connector,
		busNr:     busNr,
		drivers:   make(map[uint16]*gi2c.GenericDriver),
	}
}

func (c *GobotController) Ready() bool {
	return c.connector != nil
}

func (c *GobotController) driver(addr uint16) (*gi2c.GenericDriver, error) {
	if d, ok := c.drivers[addr]; ok {
		return d, nil
	}
	d := gi2c.NewGenericDriver(c.connector, fmt.Sprintf("i2c-%#x", addr), int(addr), func(cfg gi2c.Config) {
		cfg.SetBus(c.busNr)
	})
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("start error: %w", err)
	}
	c.drivers[addr] = d
	return d, nil
}

// Transfer writes and reads through the generic driver. Each message is a
// separate bus transaction.
func (c *GobotController) Transfer(ctx context.Context, msgs []Msg, addr uint16) error {
	segs, err := segments(msgs)
	if err != nil {
		return err
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	d, err := c.driver(addr)
	if err != nil {
		return err
	}
	for _, s := range segs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.w != nil {
			if err := d.Write(s.w); err != nil {
				return fmt.Errorf("write error: %w", err)
			}
		}
		if s.r != nil {
			if err := d.Read(s.r); err != nil {
				return fmt.Errorf("read error: %w", err)
			}
		}
	}
	return nil
}

func (c *GobotController) TransferCallback(msgs []Msg, addr uint16, done func(error)) error {
	return transferAsync(c, msgs, addr, done)
}

// Close halts every started driver.
func (c *GobotController) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	var first error
	for addr, d := range c.drivers {
		if err := d.Halt(); err != nil && first == nil {
			first = err
		}
		delete(c.drivers, addr)
	}
	return first
}
