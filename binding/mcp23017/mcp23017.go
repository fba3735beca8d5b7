// Package mcp23017 exposes MCP23017 I2C port expanders as GPIO ports, one port
// of 16 pins per device address. Pin i is GPA0..GPA7 for i < 8 and GPB0..GPB7
// above.
package mcp23017

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/mcp23017"

	"flexhal/gpio"
	"flexhal/logger"
	"flexhal/status"
)

const logTag = "mcp23017"

// Driver implements gpio.Driver and gpio.PortDriver. Calls are serialized since
// the devices share one bus and cache output latches.
type Driver struct {
	log *logger.Logger

	mu     sync.Mutex
	devs   []*mcp23017.Device
	addrs  []uint8
	closer io.Closer
}

// New probes each address on bus. The first address becomes port 0.
func New(bus drivers.I2C, addrs []uint8, log *logger.Logger) (*Driver, error) {
	if len(addrs) == 0 {
		return nil, status.Errorf(status.Param, "mcp23017: no device addresses")
	}
	d := &Driver{log: log, addrs: append([]uint8(nil), addrs...)}
	for _, addr := range addrs {
		dev, err := mcp23017.NewI2C(bus, addr)
		if err == mcp23017.ErrInvalidHWAddress {
			return nil, status.Wrap(status.Param, err, fmt.Sprintf("mcp23017 at %#02x", addr))
		}
		if err != nil {
			return nil, status.Wrap(status.IO, err, fmt.Sprintf("mcp23017 at %#02x", addr))
		}
		d.devs = append(d.devs, dev)
		log.Debugf(logTag, "device %#02x is port %d", addr, len(d.devs)-1)
	}
	return d, nil
}

// Open opens a host I2C bus by name, or the first one when name is empty, and
// probes the devices on it. The bus is closed with the driver. The periph host
// drivers must have been initialized.
func Open(bus string, addrs []uint8, log *logger.Logger) (*Driver, error) {
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, status.Wrap(status.NotFound, err, fmt.Sprintf("i2c bus %q", bus))
	}
	d, err := New(b, addrs, log)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	d.closer = b
	log.Infof(logTag, "%d devices on %s", len(addrs), b)
	return d, nil
}

func (d *Driver) Name() string               { return "mcp23017" }
func (d *Driver) NumPorts() uint32           { return uint32(len(d.devs)) }
func (d *Driver) NumPins(port uint32) uint32 { return mcp23017.PinCount }

// Address returns the I2C address behind a port.
func (d *Driver) Address(port uint32) uint8 {
	return d.addrs[port]
}

// Close releases the bus when the driver opened it.
func (d *Driver) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// modeFor maps c onto the chip's direction and pull-up bits.
func modeFor(c gpio.Config) (mcp23017.PinMode, error) {
	switch {
	case c.Direction == gpio.DirInput && c.Signal == gpio.SignalFloating && c.Pull == gpio.PullNone:
		return mcp23017.Input, nil
	case c.Direction == gpio.DirInput && c.Signal == gpio.SignalFloating && c.Pull == gpio.PullUp:
		return mcp23017.Input | mcp23017.Pullup, nil
	case c.Direction == gpio.DirOutput && c.Signal == gpio.SignalPushPull:
		return mcp23017.Output, nil
	}
	return 0, status.Errorf(status.Unsupported, "mcp23017: %s", c)
}

// Configure rewrites the direction, pull-up and polarity registers. If any
// write fails the previous modes are written back.
func (d *Driver) Configure(port, pin uint32, c gpio.Config) error {
	mode, err := modeFor(c)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dev := d.devs[port]

	prev := make([]mcp23017.PinMode, mcp23017.PinCount)
	if err := dev.GetModes(prev); err != nil {
		return status.Wrap(status.IO, err, "read modes")
	}
	next := append([]mcp23017.PinMode(nil), prev...)
	next[pin] = mode
	if err := dev.SetModes(next); err != nil {
		if rerr := dev.SetModes(prev); rerr != nil {
			d.log.Errorf(logTag, "port %d: restoring modes failed: %v", port, rerr)
		}
		return status.Wrap(status.IO, err, "write modes")
	}
	return nil
}

func (d *Driver) Set(port, pin uint32, v gpio.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.devs[port].Pin(int(pin)).Set(v == gpio.High); err != nil {
		return status.Wrap(status.IO, err, "write GPIO")
	}
	return nil
}

func (d *Driver) Get(port, pin uint32) (gpio.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	high, err := d.devs[port].Pin(int(pin)).Get()
	if err != nil {
		return gpio.Low, status.Wrap(status.IO, err, "read GPIO")
	}
	return gpio.Level(high), nil
}

func (d *Driver) WritePort(port uint32, value, mask uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.devs[port].SetPins(mcp23017.Pins(value), mcp23017.Pins(mask)); err != nil {
		return status.Wrap(status.IO, err, "write GPIO")
	}
	return nil
}

func (d *Driver) ReadPort(port uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pins, err := d.devs[port].GetPins()
	if err != nil {
		return 0, status.Wrap(status.IO, err, "read GPIO")
	}
	return uint32(pins), nil
}

var (
	_ gpio.Driver     = (*Driver)(nil)
	_ gpio.PortDriver = (*Driver)(nil)
)
