// Package periph exposes host GPIO lines, as registered with periph.io, as
// GPIO ports. Each port is an ordered group of pins chosen by name.
package periph

import (
	"errors"
	"fmt"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"flexhal/gpio"
	"flexhal/logger"
	"flexhal/status"
)

const logTag = "periph"

// DefaultFrequency is the PWM frequency used when none is configured.
const DefaultFrequency = physic.KiloHertz

// Driver implements gpio.Driver and gpio.AnalogDriver over periph pins.
type Driver struct {
	log  *logger.Logger
	freq physic.Frequency

	mu    sync.Mutex
	ports [][]pgpio.PinIO
	cfg   map[pgpio.PinIO]gpio.Config
}

// New groups pins into ports. A zero freq selects DefaultFrequency.
func New(ports [][]pgpio.PinIO, freq physic.Frequency, log *logger.Logger) (*Driver, error) {
	if len(ports) == 0 {
		return nil, status.Errorf(status.Param, "periph: no ports")
	}
	for i, pins := range ports {
		for j, p := range pins {
			if p == nil {
				return nil, status.Errorf(status.Param, "periph: port %d pin %d is nil", i, j)
			}
		}
	}
	if freq <= 0 {
		freq = DefaultFrequency
	}
	return &Driver{
		log:   log,
		freq:  freq,
		ports: ports,
		cfg:   make(map[pgpio.PinIO]gpio.Config),
	}, nil
}

// Open resolves pin names through the periph registry. The host drivers must
// already be initialized.
func Open(names [][]string, freq physic.Frequency, log *logger.Logger) (*Driver, error) {
	ports := make([][]pgpio.PinIO, len(names))
	for i, group := range names {
		for _, name := range group {
			p := gpioreg.ByName(name)
			if p == nil {
				return nil, status.Errorf(status.NotFound, "periph: no pin named %q", name)
			}
			ports[i] = append(ports[i], p)
		}
		log.Debugf(logTag, "port %d: %v", i, group)
	}
	return New(ports, freq, log)
}

func (d *Driver) Name() string               { return "periph" }
func (d *Driver) NumPorts() uint32           { return uint32(len(d.ports)) }
func (d *Driver) NumPins(port uint32) uint32 { return uint32(len(d.ports[port])) }

func (d *Driver) pin(port, pin uint32) pgpio.PinIO {
	return d.ports[port][pin]
}

func pullFor(p gpio.Pull) pgpio.Pull {
	switch p {
	case gpio.PullUp:
		return pgpio.PullUp
	case gpio.PullDown:
		return pgpio.PullDown
	}
	return pgpio.Float
}

func (d *Driver) Configure(port, pin uint32, c gpio.Config) error {
	p := d.pin(port, pin)
	var err error
	switch {
	case c.Direction == gpio.DirInput && c.Signal == gpio.SignalFloating:
		err = p.In(pullFor(c.Pull), pgpio.NoEdge)
	case c.Direction == gpio.DirOutput && c.Signal == gpio.SignalPushPull:
		err = p.Out(pgpio.Low)
	case c.Direction == gpio.DirOutput && c.Signal == gpio.SignalPWM:
		err = p.PWM(0, d.freq)
	default:
		return status.Errorf(status.Unsupported, "periph: %s on %s", c, p.Name())
	}
	if err != nil {
		return status.Wrap(status.IO, err, p.Name())
	}
	d.mu.Lock()
	d.cfg[p] = c
	d.mu.Unlock()
	d.log.Debugf(logTag, "%s: %s (%s)", p.Name(), c, p.Function())
	return nil
}

func (d *Driver) Set(port, pin uint32, v gpio.Value) error {
	p := d.pin(port, pin)
	if err := p.Out(pgpio.Level(v == gpio.High)); err != nil {
		return status.Wrap(status.IO, err, p.Name())
	}
	return nil
}

func (d *Driver) Get(port, pin uint32) (gpio.Value, error) {
	return gpio.Level(bool(d.pin(port, pin).Read())), nil
}

// AnalogWrite sets a PWM pin's duty from a 16-bit value.
func (d *Driver) AnalogWrite(port, pin uint32, v uint32) error {
	p := d.pin(port, pin)
	d.mu.Lock()
	c := d.cfg[p]
	d.mu.Unlock()
	if c.Signal != gpio.SignalPWM {
		return status.Errorf(status.Unsupported, "periph: %s has no DAC", p.Name())
	}
	duty := pgpio.Duty(uint64(min(v, 0xFFFF)) * uint64(pgpio.DutyMax) / 0xFFFF)
	if err := p.PWM(duty, d.freq); err != nil {
		return status.Wrap(status.IO, err, p.Name())
	}
	return nil
}

// AnalogCapable reports PWM output on every pin and no ADC.
func (d *Driver) AnalogCapable(port, pin uint32) (in, out bool) {
	return false, true
}

func (d *Driver) AnalogRead(port, pin uint32) (uint32, error) {
	return 0, status.Errorf(status.Unsupported, "periph: %s has no ADC", d.pin(port, pin).Name())
}

// Close halts every pin that was configured.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for p := range d.cfg {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	d.cfg = make(map[pgpio.PinIO]gpio.Config)
	return errors.Join(errs...)
}

var (
	_ gpio.Driver       = (*Driver)(nil)
	_ gpio.AnalogDriver = (*Driver)(nil)
)
