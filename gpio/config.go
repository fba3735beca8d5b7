package gpio

import (
	"fmt"
	"strings"

	"flexhal/status"
)

// Mode is a coarse configuration intent.
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
	ModeInputPullup
	ModeInputPulldown
	ModeOutputOpenDrain
	ModeAnalog
	ModeDisabled
)

// Direction of a pin.
type Direction uint8

const (
	DirInput Direction = iota
	DirOutput
	DirInOut
)

// Pull is the internal bias resistor setting.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// SignalType is the electrical signal kind of a pin.
type SignalType uint8

const (
	SignalFloating SignalType = iota
	SignalPushPull
	SignalOpenDrain
	SignalAnalog
	SignalPWM
)

// Value is a logic level.
type Value uint8

const (
	Low Value = iota
	High
)

// Config fully specifies a pin's electrical configuration.
type Config struct {
	Direction Direction
	Pull      Pull
	Signal    SignalType
}

var canonical = [...]Config{
	ModeInput:           {DirInput, PullNone, SignalFloating},
	ModeOutput:          {DirOutput, PullNone, SignalPushPull},
	ModeInputPullup:     {DirInput, PullUp, SignalFloating},
	ModeInputPulldown:   {DirInput, PullDown, SignalFloating},
	ModeOutputOpenDrain: {DirOutput, PullNone, SignalOpenDrain},
	ModeAnalog:          {DirInput, PullNone, SignalAnalog},
	ModeDisabled:        {DirInput, PullNone, SignalFloating},
}

// Canonicalize maps a mode to its canonical Config. Unknown modes map to the
// ModeDisabled configuration.
func Canonicalize(m Mode) Config {
	if int(m) >= len(canonical) {
		return canonical[ModeDisabled]
	}
	return canonical[m]
}

// Validate reports a Param error when c is internally inconsistent.
// A valid Config may still be rejected by a binding as Unsupported.
func (c Config) Validate() error {
	if c.Direction > DirInOut || c.Pull > PullDown || c.Signal > SignalPWM {
		return status.Errorf(status.Param, "config %v out of range", c)
	}
	switch c.Direction {
	case DirInput:
		if c.Signal != SignalFloating && c.Signal != SignalAnalog {
			return status.Errorf(status.Param, "input cannot drive a %s signal", c.Signal)
		}
	case DirOutput:
		if c.Signal == SignalFloating {
			return status.Errorf(status.Param, "output needs a driven signal")
		}
	case DirInOut:
		if c.Signal != SignalPushPull && c.Signal != SignalOpenDrain {
			return status.Errorf(status.Param, "in/out needs push-pull or open-drain, got %s", c.Signal)
		}
	}
	if c.Pull != PullNone {
		switch c.Signal {
		case SignalPushPull, SignalPWM, SignalAnalog:
			return status.Errorf(status.Param, "%s signal takes no pull resistor", c.Signal)
		}
	}
	return nil
}

// IsOutput reports whether the pin drives its line.
func (c Config) IsOutput() bool {
	return c.Direction == DirOutput || c.Direction == DirInOut
}

// IsDigital reports whether the signal carries logic levels.
func (c Config) IsDigital() bool {
	switch c.Signal {
	case SignalFloating, SignalPushPull, SignalOpenDrain:
		return true
	}
	return false
}

func (c Config) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Direction, c.Pull, c.Signal)
}

var modeNames = [...]string{
	ModeInput:           "input",
	ModeOutput:          "output",
	ModeInputPullup:     "input-pullup",
	ModeInputPulldown:   "input-pulldown",
	ModeOutputOpenDrain: "output-open-drain",
	ModeAnalog:          "analog",
	ModeDisabled:        "disabled",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode accepts the names printed by Mode.String, ignoring case and treating
// underscores as dashes.
func ParseMode(s string) (Mode, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return 0, status.Errorf(status.Param, "unknown pin mode %q", s)
}

func (d Direction) String() string {
	switch d {
	case DirInput:
		return "in"
	case DirOutput:
		return "out"
	case DirInOut:
		return "inout"
	}
	return fmt.Sprintf("dir(%d)", uint8(d))
}

func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	}
	return fmt.Sprintf("pull(%d)", uint8(p))
}

func (s SignalType) String() string {
	switch s {
	case SignalFloating:
		return "floating"
	case SignalPushPull:
		return "push-pull"
	case SignalOpenDrain:
		return "open-drain"
	case SignalAnalog:
		return "analog"
	case SignalPWM:
		return "pwm"
	}
	return fmt.Sprintf("signal(%d)", uint8(s))
}

func (v Value) String() string {
	if v == Low {
		return "low"
	}
	return "high"
}

// ParseValue accepts 0/1, low/high and off/on.
func ParseValue(s string) (Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "low", "off":
		return Low, nil
	case "1", "high", "on":
		return High, nil
	}
	return Low, status.Errorf(status.Param, "invalid level %q", s)
}

// Level converts a boolean to a Value.
func Level(high bool) Value {
	if high {
		return High
	}
	return Low
}
