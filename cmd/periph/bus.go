package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/peripherals/adapter"
	"github.com/mklimuk/peripherals/i2c"
	"github.com/mklimuk/peripherals/pkg/config"
)

func openController() (i2c.Controller, func(), error) {
	switch cfg.I2C.Backend {
	case config.BackendPeriph:
		pc, err := i2c.OpenPeriph(cfg.I2C.Bus)
		if err != nil {
			return nil, nil, err
		}
		return pc, func() { _ = pc.Close() }, nil
	case config.BackendMCP2221:
		return i2c.NewAddressableController(adapter.NewMCP2221()), func() {}, nil
	case config.BackendGobot:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		gc := i2c.NewGobotController(npi, cfg.I2C.GobotBus)
		return gc, func() {
			_ = gc.Close()
			_ = npi.Finalize()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown i2c backend %q", cfg.I2C.Backend)
}

// openEngine binds an engine to addr on the configured backend. The returned
// func tears both down.
func openEngine(addr uint16) (*i2c.Engine, func(), error) {
	ctrl, closeCtrl, err := openController()
	if err != nil {
		return nil, nil, err
	}
	var opts []i2c.Opt
	switch cfg.I2C.AsyncMode {
	case "signal":
		opts = append(opts, i2c.WithCallbackTransfer(false))
	case "callback":
		opts = append(opts, i2c.WithSignalTransfer(false))
	}
	e, err := i2c.New(i2c.Spec{Bus: ctrl, Addr: addr}, opts...)
	if err != nil {
		closeCtrl()
		return nil, nil, err
	}
	return e, func() {
		if err := e.Deinit(); err != nil {
			slog.Warn("engine deinit", "error", err)
		}
		closeCtrl()
	}, nil
}

// parseByte reads a hex byte with an optional 0x prefix, so "69" and "0x69"
// name the same address.
func parseByte(s string) (byte, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(h, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(v), nil
}
