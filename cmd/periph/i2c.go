package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/peripherals/cmd/periph/console"
	"github.com/mklimuk/peripherals/hwctx"
	"github.com/mklimuk/peripherals/rtc"
)

var i2cCmd = cli.Command{
	Name:  "i2c",
	Usage: "i2c bus transactions",
	Subcommands: cli.Commands{
		&i2cIDCmd,
		&i2cReadCmd,
		&i2cWriteCmd,
	},
}

var i2cIDCmd = cli.Command{
	Name:  "id",
	Usage: "read the MAX31341 revision id",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "sync", Usage: "use a blocking write-read"},
	},
	Action: func(c *cli.Context) error {
		e, closeEngine, err := openEngine(cfg.I2C.RTC)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer closeEngine()
		ctx, cancel := context.WithTimeout(hwctx.SetVerbose(c.Context, c.Bool("verbose")), 5*time.Second)
		defer cancel()

		clock := rtc.NewMAX31341(e)
		var id byte
		if c.Bool("sync") {
			id, err = clock.ReadRevisionID(ctx)
		} else {
			id, err = clock.ReadRevisionIDAsync(ctx)
		}
		if err != nil {
			return console.Exit(1, "could not read device id: %s", console.Red(err))
		}
		console.PInfof(console.PictoClock, "MAX31341 at %#02x revision id: %s", cfg.I2C.RTC, console.White(fmt.Sprintf("%#02x", id)))
		return nil
	},
}

var i2cReadCmd = cli.Command{
	Name:      "read",
	Usage:     "write a register address and read the response",
	ArgsUsage: "<addr> <reg> [count]",
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return console.Exit(1, "expected at least 2 arguments, got %d", c.NArg())
		}
		addr, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not decode address: %v", err)
		}
		reg, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "could not decode register: %v", err)
		}
		count := 1
		if c.NArg() > 2 {
			count, err = strconv.Atoi(c.Args().Get(2))
			if err != nil || count <= 0 {
				return console.Exit(1, "invalid count %q", c.Args().Get(2))
			}
		}
		e, closeEngine, err := openEngine(uint16(addr))
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer closeEngine()
		ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
		defer cancel()
		rx := make([]byte, count)
		if err := e.WriteRead(ctx, []byte{reg}, rx); err != nil {
			return console.Exit(1, "read failed: %s", console.Red(err))
		}
		console.Dump(fmt.Sprintf("register %#02x at %#02x", reg, addr), rx)
		return nil
	},
}

var i2cWriteCmd = cli.Command{
	Name:      "write",
	Usage:     "write raw bytes",
	ArgsUsage: "<addr> <hex>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		addr, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not decode address: %v", err)
		}
		data, err := hex.DecodeString(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "could not decode data: %v", err)
		}
		e, closeEngine, err := openEngine(uint16(addr))
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer closeEngine()
		ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
		defer cancel()
		if err := e.Write(ctx, data); err != nil {
			return console.Exit(1, "write failed: %s", console.Red(err))
		}
		console.Infof("wrote %d bytes to %#02x", len(data), addr)
		return nil
	},
}
