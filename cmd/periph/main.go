package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/peripherals/cmd/periph/console"
	"github.com/mklimuk/peripherals/pkg/config"
)

var cfg = config.Default()

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "periph"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", config.Version, config.Date, config.Commit)
	app.Usage = "uart and i2c peripherals cli"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the yaml configuration",
			EnvVars: []string{"PERIPH_CONFIG"},
			Value:   "periph.yaml",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "i2c backend override (periph, mcp2221, gobot)",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
			console.Trace = true
		}
		slog.SetDefault(slog.New(charm))

		loaded, err := config.Load(ctx.String("config"))
		if err != nil {
			return err
		}
		if b := ctx.String("backend"); b != "" {
			loaded.I2C.Backend = config.I2CBackend(b)
			if err := loaded.Validate(); err != nil {
				return err
			}
		}
		cfg = loaded
		return nil
	}
	app.Commands = cli.Commands{
		&uartCmd,
		&i2cCmd,
		&gpioCmd,
		&usbCmd,
		&mcp2221Cmd,
		&configCmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		slog.Error("unexpected error", "error", err)
		return 1
	}
	return 0
}

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		out, err := cfg.Dump()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}
