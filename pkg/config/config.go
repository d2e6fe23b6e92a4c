// Package config holds the peripheral settings of the periph CLI and the
// build metadata injected at link time.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/peripherals"
)

// set by the build tool
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type I2CBackend string

const (
	BackendPeriph  I2CBackend = "periph"
	BackendMCP2221 I2CBackend = "mcp2221"
	BackendGobot   I2CBackend = "gobot"
)

type UART struct {
	Port      string        `yaml:"port"`
	Baud      int           `yaml:"baud"`
	RxBuffer  int           `yaml:"rx_buffer"`
	Ring      int           `yaml:"ring"`
	RxTimeout time.Duration `yaml:"rx_timeout"`
	TxBudget  int           `yaml:"tx_budget"`
}

type I2C struct {
	Backend I2CBackend `yaml:"backend"`
	// Bus is the periph.io bus name, e.g. "/dev/i2c-1" or "1".
	Bus       string `yaml:"bus"`
	GobotBus  int    `yaml:"gobot_bus"`
	RTC       uint16 `yaml:"rtc_address"`
	Expander  uint16 `yaml:"expander_address"`
	AsyncMode string `yaml:"async_mode"`
}

type Config struct {
	UART UART `yaml:"uart"`
	I2C  I2C  `yaml:"i2c"`
}

func Default() Config {
	return Config{
		UART: UART{
			Port:      "/dev/ttyUSB0",
			Baud:      115200,
			RxBuffer:  64,
			Ring:      1024,
			RxTimeout: 100 * time.Microsecond,
		},
		I2C: I2C{
			Backend:   BackendPeriph,
			GobotBus:  2,
			RTC:       0x69,
			Expander:  0x21,
			AsyncMode: "auto",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.UART.Baud <= 0 {
		errs = append(errs, fmt.Errorf("uart.baud must be positive"))
	}
	if c.UART.RxBuffer <= 0 {
		errs = append(errs, fmt.Errorf("uart.rx_buffer must be positive"))
	}
	if c.UART.Ring <= 0 {
		errs = append(errs, fmt.Errorf("uart.ring must be positive"))
	}
	if c.UART.TxBudget < 0 {
		errs = append(errs, fmt.Errorf("uart.tx_budget must not be negative"))
	}
	switch c.I2C.Backend {
	case BackendPeriph, BackendMCP2221, BackendGobot:
	default:
		errs = append(errs, fmt.Errorf("unknown i2c.backend %q", c.I2C.Backend))
	}
	switch c.I2C.AsyncMode {
	case "auto", "signal", "callback":
	default:
		errs = append(errs, fmt.Errorf("unknown i2c.async_mode %q", c.I2C.AsyncMode))
	}
	if c.I2C.RTC > 0x7f || c.I2C.Expander > 0x7f {
		errs = append(errs, fmt.Errorf("i2c addresses must be 7-bit"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", peripherals.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

func (c Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}
