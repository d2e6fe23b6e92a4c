// Package rtc talks to the MAX31341 real-time clock through an i2c engine.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/peripherals/i2c"
)

const (
	MAX31341Address = 0x69
	RegRevisionID   = 0x59
)

// Bus is the part of an i2c.Engine the clock uses. The driver owns the
// engine callback while an asynchronous read is running.
type Bus interface {
	WriteRead(ctx context.Context, tx, rx []byte) error
	RegisterCallback(cb i2c.Callback) error
	AsyncWriteRead(tx, rx []byte) error
}

type MAX31341 struct {
	mx  sync.Mutex
	bus Bus
	// the bus reads these after AsyncWriteRead returns
	reg [1]byte
	rx  [1]byte
}

func NewMAX31341(bus Bus) *MAX31341 {
	return &MAX31341{bus: bus}
}

// ReadRegister reads one register with a blocking write-read.
func (d *MAX31341) ReadRegister(ctx context.Context, reg byte) (byte, error) {
	buf := make([]byte, 1)
	if err := d.bus.WriteRead(ctx, []byte{reg}, buf); err != nil {
		return 0, fmt.Errorf("failed to read register %#02x: %w", reg, err)
	}
	return buf[0], nil
}

func (d *MAX31341) ReadRevisionID(ctx context.Context) (byte, error) {
	return d.ReadRegister(ctx, RegRevisionID)
}

type readResult struct {
	value byte
	err   error
}

// ReadRevisionIDAsync issues the revision ID read as an asynchronous
// transaction and waits for the engine callback or ctx.
func (d *MAX31341) ReadRevisionIDAsync(ctx context.Context) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()

	done := make(chan readResult, 1)
	err := d.bus.RegisterCallback(func(result error, rx []byte) {
		res := readResult{err: result}
		if len(rx) > 0 {
			res.value = rx[0]
		}
		done <- res
	})
	if err != nil {
		return 0, fmt.Errorf("could not register callback: %w", err)
	}

	d.reg[0] = RegRevisionID
	if err := d.bus.AsyncWriteRead(d.reg[:], d.rx[:]); err != nil {
		return 0, fmt.Errorf("could not start revision id read: %w", err)
	}
	select {
	case res := <-done:
		if res.err != nil {
			return 0, fmt.Errorf("revision id read failed: %w", res.err)
		}
		return res.value, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
