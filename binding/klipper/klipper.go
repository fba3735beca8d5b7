// Package klipper drives the pins of a Klipper-protocol microcontroller as a
// single GPIO port. Pin n is bound to oid n, so the controller must be freshly
// reset: oids are allocated once per connection and each pin can be configured
// once per firmware session.
package klipper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flexhal/gpio"
	"flexhal/host/mcu"
	"flexhal/logger"
	"flexhal/protocol"
	"flexhal/status"
)

const logTag = "klipper"

// MaxPins is the largest pin count a single controller can expose; oids are one byte.
const MaxPins = 256

// Options tunes how pins are programmed.
type Options struct {
	// Pins is the number of pins exposed, numbered as the firmware numbers them.
	Pins uint32
	// PWMCycleTicks is the PWM period in controller clock ticks.
	PWMCycleTicks uint32
	// ADCSamples is the number of samples averaged per AnalogRead.
	ADCSamples uint8
	// ADCSampleTicks is the spacing between samples in controller clock ticks.
	ADCSampleTicks uint32
	// Timeout bounds each exchange with the controller.
	Timeout time.Duration
}

// DefaultOptions suits a 12 MHz controller with 30 pins.
func DefaultOptions() Options {
	return Options{
		Pins:           30,
		PWMCycleTicks:  12000,
		ADCSamples:     4,
		ADCSampleTicks: 1200,
		Timeout:        2 * time.Second,
	}
}

type kind uint8

const (
	kindNone kind = iota
	kindDigitalOut
	kindEndstop
	kindPWM
	kindAnalogIn
)

func (k kind) String() string {
	return [...]string{"unconfigured", "digital_out", "endstop", "pwm_out", "analog_in"}[k]
}

type pinState struct {
	kind  kind
	cfg   gpio.Config
	value gpio.Value
}

// Driver implements gpio.Driver and gpio.AnalogDriver over an MCU connection.
type Driver struct {
	mcu  *mcu.MCU
	opts Options
	log  *logger.Logger

	pwmMax float64

	mu   sync.Mutex
	pins []pinState
}

// New allocates one oid per pin on an identified controller.
func New(ctx context.Context, m *mcu.MCU, opts Options, log *logger.Logger) (*Driver, error) {
	if opts.Pins == 0 || opts.Pins > MaxPins {
		return nil, status.Errorf(status.Param, "klipper: pin count %d out of range 1..%d", opts.Pins, MaxPins)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.ADCSamples == 0 {
		opts.ADCSamples = 1
	}
	d := &Driver{
		mcu:    m,
		opts:   opts,
		log:    log,
		pwmMax: 255,
		pins:   make([]pinState, opts.Pins),
	}
	if v, ok := m.Constant("PWM_MAX"); ok && v > 0 {
		d.pwmMax = v
	}
	if err := d.send(ctx, "allocate_oids", int64(opts.Pins)); err != nil {
		if status.CodeOf(err) == status.Unsupported {
			return nil, err
		}
		return nil, status.Wrap(status.NoMemory, err, fmt.Sprintf("allocate %d oids", opts.Pins))
	}
	log.Infof(logTag, "allocated %d oids", opts.Pins)
	return d, nil
}

func (d *Driver) Name() string               { return "klipper" }
func (d *Driver) NumPorts() uint32           { return 1 }
func (d *Driver) NumPins(port uint32) uint32 { return d.opts.Pins }

// Close closes the controller connection.
func (d *Driver) Close() error {
	return d.mcu.Close()
}

func (d *Driver) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.opts.Timeout)
}

func (d *Driver) send(ctx context.Context, name string, args ...int64) error {
	return d.mcu.Send(ctx, name, args...)
}

// kindFor selects the firmware object that realizes c.
func kindFor(c gpio.Config) (kind, error) {
	switch {
	case c.Direction == gpio.DirOutput && c.Signal == gpio.SignalPushPull:
		return kindDigitalOut, nil
	case c.Direction == gpio.DirOutput && c.Signal == gpio.SignalPWM:
		return kindPWM, nil
	case c.Direction == gpio.DirInput && c.Signal == gpio.SignalFloating && c.Pull != gpio.PullDown:
		return kindEndstop, nil
	case c.Direction == gpio.DirInput && c.Signal == gpio.SignalAnalog:
		return kindAnalogIn, nil
	}
	return kindNone, status.Errorf(status.Unsupported, "klipper: %s", c)
}

func (d *Driver) Configure(port, pin uint32, c gpio.Config) error {
	k, err := kindFor(c)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st := &d.pins[pin]
	if st.kind != kindNone {
		if st.cfg == c {
			return nil
		}
		return status.Errorf(status.Unsupported, "klipper: pin %d already configured as %s", pin, st.kind)
	}

	ctx, cancel := d.context()
	defer cancel()
	oid := int64(pin)
	switch k {
	case kindDigitalOut:
		err = d.send(ctx, "config_digital_out", oid, int64(pin), 0, 0, 0)
	case kindPWM:
		err = d.send(ctx, "config_pwm_out", oid, int64(pin), int64(d.opts.PWMCycleTicks), 0, 0, 0)
	case kindEndstop:
		pullUp := int64(0)
		if c.Pull == gpio.PullUp {
			pullUp = 1
		}
		err = d.send(ctx, "config_endstop", oid, int64(pin), pullUp)
	case kindAnalogIn:
		err = d.send(ctx, "config_analog_in", oid, int64(pin))
	}
	if err != nil {
		return err
	}
	*st = pinState{kind: k, cfg: c}
	d.log.Debugf(logTag, "pin %d configured as %s", pin, k)
	return nil
}

func (d *Driver) Set(port, pin uint32, v gpio.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := &d.pins[pin]
	if st.kind != kindDigitalOut {
		return status.Errorf(status.Param, "klipper: pin %d is %s", pin, st.kind)
	}
	ctx, cancel := d.context()
	defer cancel()
	if err := d.send(ctx, "update_digital_out", int64(pin), int64(v)); err != nil {
		return err
	}
	st.value = v
	return nil
}

// Get queries endstop pins. Outputs report the last level written.
func (d *Driver) Get(port, pin uint32) (gpio.Value, error) {
	d.mu.Lock()
	st := d.pins[pin]
	d.mu.Unlock()
	switch st.kind {
	case kindDigitalOut:
		return st.value, nil
	case kindEndstop:
	default:
		return gpio.Low, status.Errorf(status.Param, "klipper: pin %d is %s", pin, st.kind)
	}

	ctx, cancel := d.context()
	defer cancel()
	oid := int64(pin)
	values, err := d.mcu.Query(ctx, "endstop_query_state", []int64{oid}, "endstop_state", matchOID(oid))
	if err != nil {
		return gpio.Low, err
	}
	return gpio.Level(values.Uint("pin_value") != 0), nil
}

// AnalogWrite sets a PWM pin's duty from a 16-bit value.
// AnalogCapable follows the MCU dictionary: ADC needs config_analog_in and
// query_analog_in, PWM needs config_pwm_out and set_pwm_out.
func (d *Driver) AnalogCapable(port, pin uint32) (in, out bool) {
	in = d.mcu.HasCommand("config_analog_in") && d.mcu.HasCommand("query_analog_in")
	out = d.mcu.HasCommand("config_pwm_out") && d.mcu.HasCommand("set_pwm_out")
	return in, out
}

func (d *Driver) AnalogWrite(port, pin uint32, v uint32) error {
	d.mu.Lock()
	st := d.pins[pin]
	d.mu.Unlock()
	if st.kind != kindPWM {
		return status.Errorf(status.Unsupported, "klipper: pin %d is %s, no DAC", pin, st.kind)
	}
	duty := int64(float64(min(v, 0xFFFF))*d.pwmMax/0xFFFF + 0.5)
	ctx, cancel := d.context()
	defer cancel()
	return d.send(ctx, "set_pwm_out", int64(pin), duty)
}

// AnalogRead returns the mean of ADCSamples raw samples.
func (d *Driver) AnalogRead(port, pin uint32) (uint32, error) {
	d.mu.Lock()
	st := d.pins[pin]
	d.mu.Unlock()
	if st.kind != kindAnalogIn {
		return 0, status.Errorf(status.Param, "klipper: pin %d is %s", pin, st.kind)
	}

	ctx, cancel := d.context()
	defer cancel()
	start, err := d.clock(ctx)
	if err != nil {
		return 0, err
	}
	oid := int64(pin)
	samples := int64(d.opts.ADCSamples)
	ticks := int64(d.opts.ADCSampleTicks)
	args := []int64{oid, start + ticks, ticks, samples, ticks * samples * 4, 0, 0xFFFF, 0}
	values, err := d.mcu.Query(ctx, "query_analog_in", args, "analog_in_state", matchOID(oid))
	if err != nil {
		return 0, err
	}
	return values.Uint("value") / uint32(samples), nil
}

// clock returns the controller's current clock, or zero when the firmware
// cannot report it.
func (d *Driver) clock(ctx context.Context) (int64, error) {
	if !d.mcu.HasCommand("get_clock") {
		return 0, nil
	}
	values, err := d.mcu.Query(ctx, "get_clock", nil, "clock", nil)
	if err != nil {
		return 0, err
	}
	return int64(values.Uint("clock")), nil
}

func matchOID(oid int64) func(protocol.Values) bool {
	return func(v protocol.Values) bool { return int64(v.Uint("oid")) == oid }
}

var (
	_ gpio.Driver       = (*Driver)(nil)
	_ gpio.AnalogDriver = (*Driver)(nil)
)
