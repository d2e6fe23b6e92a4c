package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/tarm/serial"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/peripherals/cmd/periph/console"
	"github.com/mklimuk/peripherals/uart"
)

var uartCmd = cli.Command{
	Name:  "uart",
	Usage: "serial transport",
	Subcommands: cli.Commands{
		&uartSimCmd,
		&uartTermCmd,
	},
}

var uartSimCmd = cli.Command{
	Name:      "sim",
	Usage:     "push payloads through a loopback device and print what comes back",
	ArgsUsage: "<payload>...",
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return console.Exit(1, "expected at least one payload")
		}
		dev := uart.NewMockEventDevice()
		dev.Loopback = true
		t, err := uart.New(dev,
			make([]byte, cfg.UART.RxBuffer), make([]byte, cfg.UART.RxBuffer),
			cfg.UART.RxTimeout,
			uart.WithTxBudget(cfg.UART.TxBudget),
			uart.WithTxDoneCallback(func(*uart.Transport) {
				slog.Debug("transmission complete")
			}),
		)
		if err != nil {
			return console.Exit(1, "could not create transport: %s", console.Red(err))
		}
		defer func() { _ = t.Deinit() }()
		if err := t.RxRingInit(make([]byte, cfg.UART.Ring)); err != nil {
			return console.Exit(1, "could not create ring: %s", console.Red(err))
		}
		if err := t.RxEnable(); err != nil {
			return console.Exit(1, "could not enable receiver: %s", console.Red(err))
		}
		for _, p := range c.Args().Slice() {
			if err := t.Write([]byte(p)); err != nil {
				return console.Exit(1, "write failed: %s", console.Red(err))
			}
		}
		console.Debugf("completed %d transmissions", dev.Flush())

		var received strings.Builder
		buf := make([]byte, 64)
		for n := t.RxGet(buf); n > 0; n = t.RxGet(buf) {
			received.Write(buf[:n])
		}
		console.PInfof(console.PictoCable, "received: %s", console.White(received.String()))
		return printYAML(t.Stats())
	},
}

var uartTermCmd = cli.Command{
	Name:  "term",
	Usage: "interactive terminal on the configured serial port",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "eol", Value: "\r\n", Usage: "line terminator appended to every line"},
	},
	Action: func(c *cli.Context) error {
		port, err := openSerial(cfg.UART.Port, cfg.UART.Baud, cfg.UART.RxTimeout)
		if err != nil {
			return console.Exit(1, "could not open %s: %s", cfg.UART.Port, console.Red(err))
		}
		dev := uart.NewStreamDevice(port)
		defer func() { _ = dev.Close() }()

		rl, err := readline.New(fmt.Sprintf("%s> ", cfg.UART.Port))
		if err != nil {
			return err
		}
		defer func() { _ = rl.Close() }()

		var outMx sync.Mutex
		t, err := uart.New(dev,
			make([]byte, cfg.UART.RxBuffer), make([]byte, cfg.UART.RxBuffer),
			cfg.UART.RxTimeout,
			uart.WithTxBudget(cfg.UART.TxBudget),
			uart.WithRxCallback(func(_ *uart.Transport, data []byte) {
				outMx.Lock()
				defer outMx.Unlock()
				_, _ = rl.Stdout().Write(data)
			}),
		)
		if err != nil {
			return console.Exit(1, "could not create transport: %s", console.Red(err))
		}
		defer func() { _ = t.Deinit() }()
		if err := t.RxEnable(); err != nil {
			return console.Exit(1, "could not enable receiver: %s", console.Red(err))
		}

		eol := c.String("eol")
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := t.Write([]byte(line + eol)); err != nil {
				console.Warnf("write failed: %v", err)
			}
		}
	},
}

// serialPort turns read timeouts into empty reads so the stream device keeps
// polling until the port is closed.
type serialPort struct {
	*serial.Port
	closed atomic.Bool
}

// openSerial opens a host port. The driver cannot time out below 100ms.
func openSerial(name string, baud int, timeout time.Duration) (*serialPort, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: max(timeout, 100*time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	return &serialPort{Port: p}, nil
}

func (p *serialPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) && !p.closed.Load() {
		return 0, nil
	}
	return n, err
}

func (p *serialPort) Close() error {
	p.closed.Store(true)
	return p.Port.Close()
}
