// Package board opens the GPIO controllers described by a board configuration.
package board

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"flexhal/binding/klipper"
	"flexhal/binding/mcp23017"
	"flexhal/binding/periph"
	"flexhal/binding/sim"
	"flexhal/config"
	"flexhal/gpio"
	"flexhal/host/mcu"
	"flexhal/host/serial"
	"flexhal/logger"
	"flexhal/status"
)

const logTag = "board"

var (
	hostOnce sync.Once
	hostErr  error
)

// initHost loads the periph host drivers once per process.
func initHost(log *logger.Logger) error {
	hostOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			hostErr = status.Wrap(status.IO, err, "periph host init")
			return
		}
		for _, d := range state.Loaded {
			log.Debugf(logTag, "periph driver %s loaded", d)
		}
	})
	return hostErr
}

// Open opens the named controller, or the default one for an empty name.
func Open(ctx context.Context, cfg *config.Config, name string, log *logger.Logger) (gpio.Controller, error) {
	cc, err := cfg.Controller(name)
	if err != nil {
		return nil, err
	}
	return OpenController(ctx, cc, log)
}

// OpenController builds the binding selected by cc.Driver and wraps it in a
// controller.
func OpenController(ctx context.Context, cc *config.ControllerConfig, log *logger.Logger) (gpio.Controller, error) {
	drv, err := openDriver(ctx, cc, log)
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", cc.Name, err)
	}
	log.Infof(logTag, "controller %s opened (%s, %d ports)", cc.Name, drv.Name(), drv.NumPorts())
	return gpio.NewController(drv, gpio.WithLogger(log)), nil
}

func openDriver(ctx context.Context, cc *config.ControllerConfig, log *logger.Logger) (gpio.Driver, error) {
	switch cc.Driver {
	case config.DriverSim:
		if cc.Sim == nil {
			return nil, status.Errorf(status.Param, "missing sim section")
		}
		return sim.New(sim.Options{
			Ports:     cc.Sim.Ports,
			Pins:      cc.Sim.Pins,
			Pulldown:  cc.Sim.Pulldown,
			OpenDrain: cc.Sim.OpenDrain,
			Analog:    cc.Sim.Analog,
			PWM:       cc.Sim.PWM,
			Bulk:      cc.Sim.Bulk,
		}), nil

	case config.DriverMCP23017:
		if cc.MCP23017 == nil {
			return nil, status.Errorf(status.Param, "missing mcp23017 section")
		}
		if err := initHost(log); err != nil {
			return nil, err
		}
		return mcp23017.Open(cc.MCP23017.Bus, cc.MCP23017.Addresses, log)

	case config.DriverPeriph:
		if cc.Periph == nil {
			return nil, status.Errorf(status.Param, "missing periph section")
		}
		if err := initHost(log); err != nil {
			return nil, err
		}
		freq := physic.Frequency(cc.Periph.PWMFrequency) * physic.Hertz
		return periph.Open(cc.Periph.Ports, freq, log)

	case config.DriverKlipper:
		if cc.Klipper == nil {
			return nil, status.Errorf(status.Param, "missing klipper section")
		}
		return openKlipper(ctx, cc.Klipper, log)
	}
	return nil, status.Errorf(status.Unsupported, "unknown driver %q", cc.Driver)
}

func klipperOptions(kc *config.KlipperConfig) klipper.Options {
	opts := klipper.DefaultOptions()
	if kc.Pins != 0 {
		opts.Pins = kc.Pins
	}
	if kc.PWMCycleTicks != 0 {
		opts.PWMCycleTicks = kc.PWMCycleTicks
	}
	if kc.ADCSamples != 0 {
		opts.ADCSamples = kc.ADCSamples
	}
	if kc.ADCSampleTicks != 0 {
		opts.ADCSampleTicks = kc.ADCSampleTicks
	}
	if kc.Timeout != 0 {
		opts.Timeout = kc.Timeout
	}
	return opts
}

func openKlipper(ctx context.Context, kc *config.KlipperConfig, log *logger.Logger) (gpio.Driver, error) {
	m, err := DialMCU(ctx, kc, log)
	if err != nil {
		return nil, err
	}
	return attachKlipper(ctx, m, klipperOptions(kc), log)
}

// DialMCU opens the serial link of a Klipper controller and retrieves its
// dictionary without binding any pins.
func DialMCU(ctx context.Context, kc *config.KlipperConfig, log *logger.Logger) (*mcu.MCU, error) {
	sc := serial.DefaultConfig(kc.Device)
	if kc.Baud != 0 {
		sc.Baud = kc.Baud
	}
	return mcu.Dial(ctx, sc, mcu.WithLogger(log), mcu.WithTimeout(klipperOptions(kc).Timeout))
}

// attachKlipper binds the pins of an identified controller, closing it on failure.
func attachKlipper(ctx context.Context, m *mcu.MCU, opts klipper.Options, log *logger.Logger) (gpio.Driver, error) {
	drv, err := klipper.New(ctx, m, opts, log)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return drv, nil
}
