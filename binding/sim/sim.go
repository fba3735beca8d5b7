// Package sim is an in-memory GPIO binding. Output levels loop back to reads,
// input levels can be injected, and each optional capability can be switched off
// to model a less capable device.
package sim

import (
	"sync"

	"flexhal/gpio"
	"flexhal/status"
)

// Options describes the simulated device.
type Options struct {
	Ports     uint32
	Pins      uint32
	Pulldown  bool
	OpenDrain bool
	Analog    bool
	PWM       bool
	Bulk      bool
}

// Full returns options for a device that realizes every valid configuration.
func Full(ports, pins uint32) Options {
	return Options{Ports: ports, Pins: pins, Pulldown: true, OpenDrain: true, Analog: true, PWM: true, Bulk: true}
}

type line struct {
	cfg        gpio.Config
	configured bool
	out        gpio.Value
	in         gpio.Value
	injected   bool
	analogIn   uint32
	analogOut  uint32
}

// Driver implements gpio.Driver, gpio.PortDriver and gpio.AnalogDriver.
type Driver struct {
	opts Options

	mu    sync.Mutex
	lines [][]line
	fault error
}

// New returns a simulated device.
func New(opts Options) *Driver {
	d := &Driver{opts: opts, lines: make([][]line, opts.Ports)}
	for i := range d.lines {
		d.lines[i] = make([]line, opts.Pins)
	}
	return d
}

func (d *Driver) Name() string                { return "sim" }
func (d *Driver) NumPorts() uint32            { return d.opts.Ports }
func (d *Driver) NumPins(port uint32) uint32  { return d.opts.Pins }
func (d *Driver) Options() Options            { return d.opts }
func (d *Driver) line(port, pin uint32) *line { return &d.lines[port][pin] }

// FailNext makes the next driver call return err.
func (d *Driver) FailNext(err error) {
	d.mu.Lock()
	d.fault = err
	d.mu.Unlock()
}

func (d *Driver) takeFault() error {
	err := d.fault
	d.fault = nil
	return err
}

// SetInput drives an external level onto a pin.
func (d *Driver) SetInput(port, pin uint32, v gpio.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.line(port, pin)
	l.in, l.injected = v, true
}

// SetAnalogInput sets the sample returned by AnalogRead.
func (d *Driver) SetAnalogInput(port, pin uint32, v uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.line(port, pin).analogIn = v
}

// AnalogOutput returns the last value written with AnalogWrite.
func (d *Driver) AnalogOutput(port, pin uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line(port, pin).analogOut
}

// Hardware returns the configuration programmed into a pin.
func (d *Driver) Hardware(port, pin uint32) (gpio.Config, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.line(port, pin)
	return l.cfg, l.configured
}

func (d *Driver) supports(c gpio.Config) bool {
	switch {
	case c.Pull == gpio.PullDown && !d.opts.Pulldown:
		return false
	case c.Signal == gpio.SignalOpenDrain && !d.opts.OpenDrain:
		return false
	case c.Signal == gpio.SignalAnalog && !d.opts.Analog:
		return false
	case c.Signal == gpio.SignalPWM && !d.opts.PWM:
		return false
	}
	return true
}

func (d *Driver) Configure(port, pin uint32, c gpio.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFault(); err != nil {
		return err
	}
	if !d.supports(c) {
		return status.Errorf(status.Unsupported, "sim: %s", c)
	}
	l := d.line(port, pin)
	l.cfg, l.configured = c, true
	return nil
}

func (d *Driver) Set(port, pin uint32, v gpio.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFault(); err != nil {
		return err
	}
	d.line(port, pin).out = v
	return nil
}

func (d *Driver) Get(port, pin uint32) (gpio.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFault(); err != nil {
		return gpio.Low, err
	}
	return d.level(d.line(port, pin)), nil
}

// level is what the pin senses: its own drive when outputting, otherwise the
// injected level or the bias resistor.
func (d *Driver) level(l *line) gpio.Value {
	if l.cfg.IsOutput() {
		if l.cfg.Signal == gpio.SignalOpenDrain && l.injected && l.in == gpio.Low {
			return gpio.Low
		}
		return l.out
	}
	if l.injected {
		return l.in
	}
	if l.cfg.Pull == gpio.PullUp {
		return gpio.High
	}
	return gpio.Low
}

func (d *Driver) WritePort(port uint32, value, mask uint32) error {
	if !d.opts.Bulk {
		return status.Errorf(status.Unsupported, "sim: bulk write")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFault(); err != nil {
		return err
	}
	for i := range d.lines[port] {
		if i < 32 && mask&(1<<i) != 0 {
			d.lines[port][i].out = gpio.Level(value&(1<<i) != 0)
		}
	}
	return nil
}

func (d *Driver) ReadPort(port uint32) (uint32, error) {
	if !d.opts.Bulk {
		return 0, status.Errorf(status.Unsupported, "sim: bulk read")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFault(); err != nil {
		return 0, err
	}
	var v uint32
	for i := range d.lines[port] {
		if i < 32 && d.level(&d.lines[port][i]) == gpio.High {
			v |= 1 << i
		}
	}
	return v, nil
}

func (d *Driver) AnalogCapable(port, pin uint32) (in, out bool) {
	return d.opts.Analog, d.opts.Analog || d.opts.PWM
}

func (d *Driver) AnalogWrite(port, pin uint32, v uint32) error {
	if !d.opts.Analog && !d.opts.PWM {
		return status.Errorf(status.Unsupported, "sim: analog write")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFault(); err != nil {
		return err
	}
	d.line(port, pin).analogOut = v
	return nil
}

func (d *Driver) AnalogRead(port, pin uint32) (uint32, error) {
	if !d.opts.Analog {
		return 0, status.Errorf(status.Unsupported, "sim: analog read")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFault(); err != nil {
		return 0, err
	}
	return d.line(port, pin).analogIn, nil
}

var (
	_ gpio.Driver       = (*Driver)(nil)
	_ gpio.PortDriver   = (*Driver)(nil)
	_ gpio.AnalogDriver = (*Driver)(nil)
)
