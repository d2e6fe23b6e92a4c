package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/peripherals"
	"github.com/mklimuk/peripherals/hwctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// reportSize is the fixed HID report length of the bridge.
const reportSize = 64

const (
	cmdStatus      = 0x10
	cmdGetData     = 0x40
	cmdWrite       = 0x90
	cmdRead        = 0x91
	cancelTransfer = 0x10
	replyBusy      = 0x01
	replyReadError = 0x41
	// bridgeClock is the reference the speed divider is applied to.
	bridgeClock = 12_000_000
)

var _ peripherals.I2CBus = &MCP2221{}

// HIDDevice is an open HID handle.
type HIDDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Opener opens the bridge. id selects one of several attached bridges.
type Opener func(id ...int) (HIDDevice, error)

type Opts struct {
	Opener       Opener
	ResponseWait time.Duration
	Logger       *slog.Logger
}

type Opt func(*Opts)

func WithOpener(o Opener) Opt {
	return func(opts *Opts) {
		opts.Opener = o
	}
}

func WithResponseWait(d time.Duration) Opt {
	return func(opts *Opts) {
		opts.ResponseWait = d
	}
}

func WithLogger(l *slog.Logger) Opt {
	return func(opts *Opts) {
		opts.Logger = l
	}
}

// MCP2221 is the Microchip USB to I2C/GPIO bridge. Every command opens the
// HID device, exchanges one 64-byte report pair and closes it again.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	open         Opener
	log          *slog.Logger
}

// BridgeStatus is the decoded reply to a status/set-parameters report.
type BridgeStatus struct {
	Cancel       byte   `yaml:"cancel"`
	Requested    uint16 `yaml:"requested"`
	Transferred  uint16 `yaml:"transferred"`
	Buffered     byte   `yaml:"buffered"`
	SpeedDivider byte   `yaml:"speed_divider"`
	SpeedHz      int    `yaml:"speed_hz"`
	Timeout      byte   `yaml:"timeout"`
	Address      uint16 `yaml:"address"`
	ReadPending  byte   `yaml:"read_pending"`
}

// Idle reports whether the engine has no transfer in flight.
func (s BridgeStatus) Idle() bool {
	return s.Requested == s.Transferred && s.ReadPending == 0
}

func NewMCP2221(opts ...Opt) *MCP2221 {
	config := Opts{
		Opener:       OpenHID,
		ResponseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: config.ResponseWait,
		open:         config.Opener,
		log:          config.Logger.With("component", "mcp2221"),
	}
}

// OpenHID opens an attached bridge through the system HID stack.
func OpenHID(id ...int) (HIDDevice, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) > 1 && len(id) == 0 {
		return nil, fmt.Errorf("ambiguous device identification")
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found: %w", peripherals.ErrDeviceNotReady)
	}
	idx := 0
	if len(id) > 0 {
		if id[0] < 0 || id[0] >= len(devs) {
			return nil, fmt.Errorf("no device with id %d", id[0])
		}
		idx = id[0]
	}
	dev, err := devs[idx].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// Ready reports whether a bridge can be opened.
func (d *MCP2221) Ready() bool {
	dev, err := d.open()
	if err != nil {
		return false
	}
	_ = dev.Close()
	return true
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > reportSize-4 {
		return fmt.Errorf("write of %d bytes exceeds one report: %w", len(buffer), peripherals.ErrInvalidArgument)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	if len(buffer) > 0 {
		copy(d.request[4:], buffer)
	}
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == replyBusy {
		d.log.Debug("adapter busy")
		return peripherals.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) == 0 || len(buffer) > reportSize-4 {
		return fmt.Errorf("read of %d bytes does not fit one report: %w", len(buffer), peripherals.ErrInvalidArgument)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == replyBusy {
		d.log.Debug("adapter busy")
		return peripherals.ErrBusBusy
	}
	d.request[0] = cmdGetData
	resetBuffer(d.response)
	err = d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == replyReadError {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}

	copy(buffer, d.response[4:])
	return nil
}

// Status reads the I2C engine state without changing it.
func (d *MCP2221) Status(ctx context.Context) (*BridgeStatus, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx, false)
}

func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.status(ctx, true)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*BridgeStatus, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx, true)
}

func (d *MCP2221) status(ctx context.Context, cancel bool) (*BridgeStatus, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	if cancel {
		d.request[2] = cancelTransfer
	}
	if err := d.send(ctx, true); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return decodeStatus(d.response), nil
}

func decodeStatus(r []byte) *BridgeStatus {
	st := &BridgeStatus{
		Cancel:       r[2],
		Requested:    binary.LittleEndian.Uint16(r[9:11]),
		Transferred:  binary.LittleEndian.Uint16(r[11:13]),
		Buffered:     r[13],
		SpeedDivider: r[14],
		Timeout:      r[15],
		Address:      binary.LittleEndian.Uint16(r[16:18]),
		ReadPending:  r[25],
	}
	st.SpeedHz = bridgeClock / (int(st.SpeedDivider) + 3)
	return st
}

func (d *MCP2221) send(ctx context.Context, response bool, id ...int) error {
	dev, err := d.open(id...)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			d.log.Warn("could not close adapter", "error", err)
		}
	}()
	verbose := hwctx.IsVerbose(ctx)
	if verbose {
		d.log.Info("sending message to adapter", "dump", "\n"+hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	select {
	case <-time.After(d.responseWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	d.log.Debug("reading response from adapter")
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		d.log.Info("read message from adapter", "dump", "\n"+hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
