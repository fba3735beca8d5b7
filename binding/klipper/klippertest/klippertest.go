// Package klippertest simulates a Klipper-protocol microcontroller exposing the
// digital_out, endstop, pwm_out and analog_in command sets. It serves a
// compressed dictionary and answers over any byte stream, typically one end of
// a net.Pipe.
package klippertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"

	"flexhal/protocol"
	"flexhal/tinycompress"
)

const (
	ClockFreq = 12000000
	PWMMax    = 255
	ADCMax    = 4095
)

// Pin is the simulated state of one controller pin.
type Pin struct {
	Kind     string
	PullUp   bool
	Output   uint8
	PWM      uint16
	Input    bool
	InputSet bool
	ADC      uint16
}

type object struct {
	kind string
	pin  uint32
}

// MCU is a simulated controller. Its state accessors are safe to call while it
// is serving.
type MCU struct {
	catalog *protocol.Catalog
	omit    map[string]bool

	mu         sync.Mutex
	dictionary []byte
	oidCount   int
	objects    map[uint8]*object
	pins       map[uint32]*Pin
	commands   []string
	errors     []string
	clock      uint32
	mute       bool

	transport *protocol.Transport
	out       *protocol.ScratchOutput
}

// Option configures the simulated controller.
type Option func(*MCU)

// WithoutCommands leaves the named commands out of the published dictionary.
func WithoutCommands(names ...string) Option {
	return func(m *MCU) {
		for _, n := range names {
			m.omit[n] = true
		}
	}
}

// New returns a controller ready to Serve.
func New(opts ...Option) *MCU {
	m := &MCU{
		catalog: protocol.NewCatalog(),
		omit:    make(map[string]bool),
		objects: make(map[uint8]*object),
		pins:    make(map[uint32]*Pin),
		out:     protocol.NewScratchOutput(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registerCommands()
	m.dictionary = tinycompress.Compress(m.buildDictionary())
	m.transport = protocol.NewTransport(m.out, m.dispatch)
	return m
}

func (m *MCU) registerCommands() {
	c := m.catalog
	c.RegisterResponse("identify_response", "offset=%u data=%.*s")
	m.handle("identify", "offset=%u count=%c", m.identify)
	m.handle("get_clock", "", m.getClock)
	c.RegisterResponse("clock", "clock=%u")
	m.handle("allocate_oids", "count=%c", m.allocateOIDs)
	m.handle("config_digital_out", "oid=%c pin=%u value=%c default_value=%c max_duration=%u", m.configDigitalOut)
	m.handle("update_digital_out", "oid=%c value=%c", m.updateDigitalOut)
	m.handle("config_endstop", "oid=%c pin=%u pull_up=%c", m.configEndstop)
	m.handle("endstop_query_state", "oid=%c", m.endstopQueryState)
	c.RegisterResponse("endstop_state", "oid=%c homing=%c next_clock=%u pin_value=%c")
	m.handle("config_pwm_out", "oid=%c pin=%u cycle_ticks=%u value=%hu default_value=%hu max_duration=%u", m.configPWMOut)
	m.handle("set_pwm_out", "oid=%c value=%hu", m.setPWMOut)
	m.handle("config_analog_in", "oid=%c pin=%u", m.configAnalogIn)
	m.handle("query_analog_in", "oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u min_value=%hu max_value=%hu range_check_count=%c", m.queryAnalogIn)
	c.RegisterResponse("analog_in_state", "oid=%c next_clock=%u value=%hu")
}

// handle registers a command whose arguments are decoded from its format.
func (m *MCU) handle(name, format string, fn func(protocol.Values) error) {
	params, err := protocol.ParseFormat(format)
	if err != nil {
		panic(fmt.Sprintf("klippertest: %s: %v", name, err))
	}
	m.catalog.Register(name, format, func(data *[]byte) error {
		values, err := protocol.DecodeArgs(params, data)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.commands = append(m.commands, name)
		m.mu.Unlock()
		return fn(values)
	})
}

func (m *MCU) buildDictionary() []byte {
	commands, responses := m.catalog.Dictionary()
	for sig := range commands {
		if name, _ := protocol.SplitSignature(sig); m.omit[name] {
			delete(commands, sig)
		}
	}
	data, _ := json.Marshal(map[string]any{
		"version":        "flexhal-klippertest",
		"build_versions": "go",
		"config": map[string]any{
			"CLOCK_FREQ": ClockFreq,
			"MCU":        "klippertest",
			"PWM_MAX":    PWMMax,
			"ADC_MAX":    ADCMax,
		},
		"commands":  commands,
		"responses": responses,
	})
	return data
}

func (m *MCU) dispatch(cmdID uint16, data *[]byte) error {
	return m.catalog.Dispatch(cmdID, data)
}

func (m *MCU) respond(name string, args ...int64) {
	cmd, ok := m.catalog.Lookup(name)
	if !ok {
		return
	}
	params, _ := protocol.ParseFormat(cmd.Format)
	m.transport.SendCommand(cmd.ID, func(out protocol.OutputBuffer) {
		_ = protocol.EncodeArgs(out, params, args)
	})
}

// Serve answers frames read from rw until it fails or is closed.
func (m *MCU) Serve(rw io.ReadWriter) error {
	in := protocol.NewSliceInputBuffer(nil)
	buf := make([]byte, 256)
	for {
		n, err := rw.Read(buf)
		if err != nil {
			return err
		}
		in.Append(buf[:n])
		m.transport.Receive(in)

		m.mu.Lock()
		mute := m.mute
		m.mu.Unlock()
		if out := m.out.Result(); len(out) > 0 && !mute {
			if _, err := rw.Write(out); err != nil {
				return err
			}
		}
		m.out.Reset()
	}
}

// Pipe serves the controller on one end of an in-memory connection and returns
// the other end.
func (m *MCU) Pipe() net.Conn {
	host, dev := net.Pipe()
	go func() {
		_ = m.Serve(dev)
		_ = dev.Close()
	}()
	return host
}

// Mute stops the controller from answering, simulating a hung device.
func (m *MCU) Mute(mute bool) {
	m.mu.Lock()
	m.mute = mute
	m.mu.Unlock()
}

// Pin returns a copy of a pin's state.
func (m *MCU) Pin(pin uint32) (Pin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[pin]
	if !ok {
		return Pin{}, false
	}
	return *p, true
}

// SetInput drives an external level onto an endstop pin.
func (m *MCU) SetInput(pin uint32, high bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pinLocked(pin)
	p.Input, p.InputSet = high, true
}

// SetADC sets the raw sample an analog pin reports.
func (m *MCU) SetADC(pin uint32, v uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinLocked(pin).ADC = v
}

// Commands returns the names of all commands received, in order.
func (m *MCU) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Errors returns protocol misuse the controller detected, such as a command on
// an unallocated oid.
func (m *MCU) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

// OIDs returns the allocated oid count.
func (m *MCU) OIDs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oidCount
}

// ConfiguredPins lists pins that have been configured, ascending.
func (m *MCU) ConfiguredPins() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint32
	for n, p := range m.pins {
		if p.Kind != "" {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *MCU) pinLocked(pin uint32) *Pin {
	p, ok := m.pins[pin]
	if !ok {
		p = &Pin{}
		m.pins[pin] = p
	}
	return p
}

func (m *MCU) fail(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	m.errors = append(m.errors, msg)
	return nil
}
