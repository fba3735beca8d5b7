// Package gpio is the device-independent GPIO abstraction: a Controller owns Ports,
// a Port owns Pins, and a Pin is configured and driven through a small set of
// operations. Hardware access is delegated to a binding that implements Driver.
//
// Every fallible operation returns an error carrying a status.Code: NotFound for
// out-of-range indices, Param for invalid configurations or operations that the
// pin's current configuration does not allow, Unsupported for valid requests the
// binding cannot realize and IO for hardware failures.
package gpio

// State summarizes what a pin is currently configured for.
type State uint8

const (
	StateUnconfigured State = iota
	StateInput
	StateOutput
	StateAnalog
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateInput:
		return "input"
	case StateOutput:
		return "output"
	case StateAnalog:
		return "analog"
	case StateDisabled:
		return "disabled"
	}
	return "unknown"
}

// Pin is a single I/O line.
type Pin interface {
	PortIndex() uint32
	PinIndex() uint32
	Port() Port

	SetMode(m Mode) error
	SetConfig(c Config) error
	// Config returns the applied configuration and false while unconfigured.
	Config() (Config, bool)
	State() State

	DigitalWrite(v Value) error
	DigitalRead() (Value, error)
	AnalogWrite(v uint32) error
	AnalogRead() (uint32, error)
}

// Port is an ordered group of pins. Bit i of a bulk value is pin i.
type Port interface {
	Index() uint32
	NumPins() uint32
	Pin(i uint32) (Pin, error)
	Pins() ([]Pin, error)
	Write(v uint32) error
	Read() (uint32, error)
	Controller() Controller
}

// Controller is a GPIO device exposing a fixed number of ports.
type Controller interface {
	Name() string
	NumPorts() uint32
	Port(i uint32) (Port, error)
	Close() error
}

// Driver is implemented by platform bindings. Indices passed in are always in
// range and configurations always valid. Configure must leave the hardware
// unchanged when it fails.
type Driver interface {
	Name() string
	NumPorts() uint32
	NumPins(port uint32) uint32
	Configure(port, pin uint32, c Config) error
	Set(port, pin uint32, v Value) error
	Get(port, pin uint32) (Value, error)
}

// PortDriver is implemented by bindings with bulk port access. Only bits set in
// mask are written.
type PortDriver interface {
	WritePort(port uint32, value, mask uint32) error
	ReadPort(port uint32) (uint32, error)
}

// AnalogDriver is implemented by bindings with ADC, DAC or PWM capability.
// AnalogCapable reports whether a pin has an analog input (ADC) and an analog
// output (DAC or PWM); it is consulted before any pin state is checked.
type AnalogDriver interface {
	AnalogCapable(port, pin uint32) (in, out bool)
	AnalogWrite(port, pin uint32, v uint32) error
	AnalogRead(port, pin uint32) (uint32, error)
}

// PinAt resolves a pin through its controller and port.
func PinAt(c Controller, port, pin uint32) (Pin, error) {
	p, err := c.Port(port)
	if err != nil {
		return nil, err
	}
	return p.Pin(pin)
}
