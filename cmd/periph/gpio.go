package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/peripherals/cmd/periph/console"
	"github.com/mklimuk/peripherals/gpio"
)

var gpioCmd = cli.Command{
	Name:  "gpio",
	Usage: "MCP23017 port expander",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "expander address (defaults to config)"},
	},
	Subcommands: cli.Commands{
		&gpioStatusCmd,
		&gpioReadCmd,
		&gpioConfigureCmd,
		&gpioPullCmd,
	},
}

// withExpander opens the expander at the configured or flagged address and
// runs fn with a bounded context.
func withExpander(c *cli.Context, fn func(ctx context.Context, exp *gpio.MCP23017) error) error {
	addr := cfg.I2C.Expander
	if s := c.String("addr"); s != "" {
		b, err := parseByte(s)
		if err != nil {
			return console.Exit(1, "could not decode address: %v", err)
		}
		addr = uint16(b)
	}
	e, closeEngine, err := openEngine(addr)
	if err != nil {
		return console.Exit(1, "could not open bus: %s", console.Red(err))
	}
	defer closeEngine()
	ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
	defer cancel()
	return fn(ctx, gpio.NewMCP23017(e))
}

var gpioReadCmd = cli.Command{
	Name: "read",
	Action: func(c *cli.Context) error {
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			err := exp.InitA(ctx, 0xFF)
			if err != nil {
				return console.Exit(1, "could not initialize gpio: %v", err)
			}
			a, err := exp.ReadA(ctx)
			if err != nil {
				return console.Exit(1, "could not read gpio A: %v", err)
			}
			fmt.Printf("\nI/O A: %#X\n", a)
			b, err := exp.ReadB(ctx)
			if err != nil {
				return console.Exit(1, "could not read gpio B: %v", err)
			}
			fmt.Printf("\nI/O B: %#X\n", b)
			return nil
		})
	},
}

var gpioStatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			data, err := exp.ReadSettingsA(ctx)
			if err != nil {
				return console.Exit(1, "could not read settings: %v", err)
			}
			fmt.Printf("\nIOCON content: %#X\n", data)
			return nil
		})
	},
}

var gpioConfigureCmd = cli.Command{
	Name:      "configure",
	ArgsUsage: "<iocon>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		data, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not decode data: %v", err)
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			err := exp.WriteSettingsA(ctx, data)
			if err != nil {
				return console.Exit(1, "could not write settings: %v", err)
			}
			fmt.Printf("\nWrote IOCON content: %#X\n", data)
			return nil
		})
	},
}

var gpioPullCmd = cli.Command{
	Name:      "pull",
	ArgsUsage: "<gppu>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		data, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not decode data: %v", err)
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			err := exp.PullUpA(ctx, data)
			if err != nil {
				return console.Exit(1, "could not write pull up settings: %v", err)
			}
			fmt.Printf("\nWrote GPPU content: %#X\n", data)
			return nil
		})
	},
}
