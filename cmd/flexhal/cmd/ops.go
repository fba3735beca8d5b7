package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"flexhal/gpio"
	"flexhal/status"
	"flexhal/timeutil"
)

// session is an open controller plus where results are printed.
type session struct {
	ctrl  gpio.Controller
	out   io.Writer
	clock *timeutil.Clock
}

// op is one console operation, shared by the subcommands and the shell.
type op struct {
	name             string
	use              string
	short            string
	minArgs, maxArgs int
	run              func(ctx context.Context, s *session, args []string) error
}

var pinOps = []op{
	{
		name: "info", use: "info", short: "Show the controller's ports and configured pins",
		run: func(_ context.Context, s *session, _ []string) error { return s.info() },
	},
	{
		name: "mode", use: "mode <port> <pin> <mode>", short: "Configure a pin (input, output, input-pullup, input-pulldown, output-open-drain, analog, disabled)",
		minArgs: 3, maxArgs: 3, run: modeOp,
	},
	{
		name: "write", use: "write <port> <pin> <level>", short: "Drive a pin high or low, making it an output if unconfigured",
		minArgs: 3, maxArgs: 3, run: writeOp,
	},
	{
		name: "read", use: "read <port> <pin>", short: "Read a pin, making it an input if unconfigured",
		minArgs: 2, maxArgs: 2, run: readOp,
	},
	{
		name: "analog-read", use: "analog-read <port> <pin>", short: "Sample a pin's ADC, making it analog if unconfigured",
		minArgs: 2, maxArgs: 2, run: analogReadOp,
	},
	{
		name: "analog-write", use: "analog-write <port> <pin> <duty>", short: "Set a 16-bit PWM duty, making the pin a PWM output if unconfigured",
		minArgs: 3, maxArgs: 3, run: analogWriteOp,
	},
}

var portReadOp = op{
	name: "port read", use: "read <port>", short: "Read every pin of a port as a bit mask",
	minArgs: 1, maxArgs: 1, run: portRead,
}

var portWriteOp = op{
	name: "port write", use: "write <port> <value> [mask]", short: "Drive the output pins of a port from a bit mask",
	minArgs: 2, maxArgs: 3, run: portWrite,
}

var blinkOp = op{
	name: "blink", use: "blink <port> <pin> [count] [interval]", short: "Toggle an output pin",
	minArgs: 2, maxArgs: 4, run: blink,
}

func parseUint(s, what string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, status.Errorf(status.Param, "%s %q: %v", what, s, err)
	}
	return n, nil
}

func (s *session) pin(args []string) (gpio.Pin, error) {
	port, err := parseUint(args[0], "port", 32)
	if err != nil {
		return nil, err
	}
	pin, err := parseUint(args[1], "pin", 32)
	if err != nil {
		return nil, err
	}
	return gpio.PinAt(s.ctrl, uint32(port), uint32(pin))
}

func (s *session) port(arg string) (gpio.Port, error) {
	n, err := parseUint(arg, "port", 32)
	if err != nil {
		return nil, err
	}
	return s.ctrl.Port(uint32(n))
}

func label(p gpio.Pin) string {
	return fmt.Sprintf("port %d pin %d", p.PortIndex(), p.PinIndex())
}

// ensure applies c when the pin has never been configured.
func ensure(p gpio.Pin, c gpio.Config) error {
	if p.State() != gpio.StateUnconfigured {
		return nil
	}
	return p.SetConfig(c)
}

func (s *session) info() error {
	fmt.Fprintf(s.out, "controller %s: %d ports\n", s.ctrl.Name(), s.ctrl.NumPorts())
	for i := uint32(0); i < s.ctrl.NumPorts(); i++ {
		port, err := s.ctrl.Port(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "  port %d: %d pins\n", i, port.NumPins())
		pins, err := port.Pins()
		if err != nil {
			return err
		}
		for _, p := range pins {
			if c, ok := p.Config(); ok {
				fmt.Fprintf(s.out, "    pin %d: %s %s\n", p.PinIndex(), p.State(), c)
			}
		}
	}
	return nil
}

func modeOp(_ context.Context, s *session, args []string) error {
	p, err := s.pin(args)
	if err != nil {
		return err
	}
	mode, err := gpio.ParseMode(args[2])
	if err != nil {
		return err
	}
	if err := p.SetMode(mode); err != nil {
		return err
	}
	c, _ := p.Config()
	fmt.Fprintf(s.out, "%s: %s (%s)\n", label(p), mode, c)
	return nil
}

func writeOp(_ context.Context, s *session, args []string) error {
	p, err := s.pin(args)
	if err != nil {
		return err
	}
	v, err := gpio.ParseValue(args[2])
	if err != nil {
		return err
	}
	if err := ensure(p, gpio.Canonicalize(gpio.ModeOutput)); err != nil {
		return err
	}
	if err := p.DigitalWrite(v); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s = %s\n", label(p), v)
	return nil
}

func readOp(_ context.Context, s *session, args []string) error {
	p, err := s.pin(args)
	if err != nil {
		return err
	}
	if err := ensure(p, gpio.Canonicalize(gpio.ModeInput)); err != nil {
		return err
	}
	v, err := p.DigitalRead()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s = %s\n", label(p), v)
	return nil
}

func analogReadOp(_ context.Context, s *session, args []string) error {
	p, err := s.pin(args)
	if err != nil {
		return err
	}
	if err := ensure(p, gpio.Canonicalize(gpio.ModeAnalog)); err != nil {
		return err
	}
	v, err := p.AnalogRead()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s = %d\n", label(p), v)
	return nil
}

func analogWriteOp(_ context.Context, s *session, args []string) error {
	p, err := s.pin(args)
	if err != nil {
		return err
	}
	duty, err := parseUint(args[2], "duty", 16)
	if err != nil {
		return err
	}
	pwm := gpio.Config{Direction: gpio.DirOutput, Pull: gpio.PullNone, Signal: gpio.SignalPWM}
	if err := ensure(p, pwm); err != nil {
		return err
	}
	if err := p.AnalogWrite(uint32(duty)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s <- %d\n", label(p), duty)
	return nil
}

func portRead(_ context.Context, s *session, args []string) error {
	port, err := s.port(args[0])
	if err != nil {
		return err
	}
	v, err := port.Read()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "port %d = 0x%08x\n", port.Index(), v)
	return nil
}

func portWrite(_ context.Context, s *session, args []string) error {
	port, err := s.port(args[0])
	if err != nil {
		return err
	}
	v, err := parseUint(args[1], "value", 32)
	if err != nil {
		return err
	}
	mask := uint64(0xFFFFFFFF)
	if len(args) > 2 {
		if mask, err = parseUint(args[2], "mask", 32); err != nil {
			return err
		}
	}
	for i := uint32(0); i < min(port.NumPins(), 32); i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		p, err := port.Pin(i)
		if err != nil {
			return err
		}
		if err := ensure(p, gpio.Canonicalize(gpio.ModeOutput)); err != nil {
			return err
		}
	}
	if err := port.Write(uint32(v & mask)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "port %d <- 0x%08x\n", port.Index(), v&mask)
	return nil
}

func blink(ctx context.Context, s *session, args []string) error {
	p, err := s.pin(args)
	if err != nil {
		return err
	}
	count, interval := uint64(10), 500*time.Millisecond
	if len(args) > 2 {
		if count, err = parseUint(args[2], "count", 32); err != nil {
			return err
		}
	}
	if len(args) > 3 {
		if interval, err = time.ParseDuration(args[3]); err != nil {
			return status.Errorf(status.Param, "interval %q: %v", args[3], err)
		}
	}
	if err := ensure(p, gpio.Canonicalize(gpio.ModeOutput)); err != nil {
		return err
	}

	v := gpio.Low
	start := s.clock.Millis()
	for i := uint64(0); i < count; i++ {
		v ^= gpio.High
		if err := p.DigitalWrite(v); err != nil {
			return err
		}
		if i+1 < count {
			if err := s.clock.Sleep(ctx, interval); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(s.out, "%s toggled %d times in %dms, now %s\n", label(p), count, s.clock.Millis()-start, v)
	return nil
}
