package config

import (
	"fmt"
	"strings"

	"flexhal/logger"
	"flexhal/status"
)

// ValidationError accumulates config validation errors. It matches status.Param.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) Is(target error) bool {
	return target == status.Param
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLog(cfg, ve)
	validateControllers(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLog(cfg *Config, ve *ValidationError) {
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		ve.Add("log.level: %v", err)
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		ve.Add("log.format %q must be text or json", cfg.Log.Format)
	}
}

func validateControllers(cfg *Config, ve *ValidationError) {
	if len(cfg.Controllers) == 0 {
		ve.Add("at least one controller is required")
		return
	}
	seen := make(map[string]bool, len(cfg.Controllers))
	for i := range cfg.Controllers {
		c := &cfg.Controllers[i]
		prefix := fmt.Sprintf("controllers[%d]", i)
		if c.Name == "" {
			ve.Add("%s.name is required", prefix)
		} else {
			if seen[c.Name] {
				ve.Add("%s.name %q is duplicated", prefix, c.Name)
			}
			seen[c.Name] = true
			prefix = fmt.Sprintf("controller %q", c.Name)
		}
		validateDriver(c, prefix, ve)
	}
	if cfg.DefaultController != "" && !seen[cfg.DefaultController] {
		ve.Add("default_controller %q is not defined", cfg.DefaultController)
	}
}

func validateDriver(c *ControllerConfig, prefix string, ve *ValidationError) {
	switch c.Driver {
	case DriverSim:
		if c.Sim == nil {
			ve.Add("%s: sim section is required", prefix)
			return
		}
		if c.Sim.Ports == 0 || c.Sim.Pins == 0 {
			ve.Add("%s: sim.ports and sim.pins must be > 0", prefix)
		}
	case DriverMCP23017:
		if c.MCP23017 == nil || len(c.MCP23017.Addresses) == 0 {
			ve.Add("%s: mcp23017.addresses is required", prefix)
			return
		}
		for _, a := range c.MCP23017.Addresses {
			if a < 0x20 || a > 0x27 {
				ve.Add("%s: mcp23017 address %#02x outside 0x20..0x27", prefix, a)
			}
		}
	case DriverPeriph:
		if c.Periph == nil || len(c.Periph.Ports) == 0 {
			ve.Add("%s: periph.ports is required", prefix)
			return
		}
		for i, group := range c.Periph.Ports {
			if len(group) == 0 {
				ve.Add("%s: periph.ports[%d] is empty", prefix, i)
			}
		}
	case DriverKlipper:
		if c.Klipper == nil || c.Klipper.Device == "" {
			ve.Add("%s: klipper.device is required", prefix)
			return
		}
		if c.Klipper.Pins == 0 || c.Klipper.Pins > 256 {
			ve.Add("%s: klipper.pins must be 1..256", prefix)
		}
		if c.Klipper.Timeout < 0 {
			ve.Add("%s: klipper.timeout must be >= 0", prefix)
		}
	case "":
		ve.Add("%s: driver is required", prefix)
	default:
		ve.Add("%s: unknown driver %q", prefix, c.Driver)
	}
}
