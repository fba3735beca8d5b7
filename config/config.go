// Package config loads the YAML board description: which GPIO controllers exist,
// which binding drives each one and how the log is written.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"flexhal/logger"
	"flexhal/status"
)

// Binding names accepted in ControllerConfig.Driver.
const (
	DriverSim      = "sim"
	DriverMCP23017 = "mcp23017"
	DriverPeriph   = "periph"
	DriverKlipper  = "klipper"
)

// Config is the root of the board description.
type Config struct {
	Log               LogConfig          `yaml:"log"`
	DefaultController string             `yaml:"default_controller"`
	Controllers       []ControllerConfig `yaml:"controllers"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ControllerConfig names a controller and carries the section for its driver.
type ControllerConfig struct {
	Name     string          `yaml:"name"`
	Driver   string          `yaml:"driver"`
	Sim      *SimConfig      `yaml:"sim,omitempty"`
	MCP23017 *MCP23017Config `yaml:"mcp23017,omitempty"`
	Periph   *PeriphConfig   `yaml:"periph,omitempty"`
	Klipper  *KlipperConfig  `yaml:"klipper,omitempty"`
}

type SimConfig struct {
	Ports     uint32 `yaml:"ports"`
	Pins      uint32 `yaml:"pins"`
	Pulldown  bool   `yaml:"pulldown"`
	OpenDrain bool   `yaml:"open_drain"`
	Analog    bool   `yaml:"analog"`
	PWM       bool   `yaml:"pwm"`
	Bulk      bool   `yaml:"bulk"`
}

type MCP23017Config struct {
	// Bus is a periph I2C bus name; empty selects the first bus.
	Bus       string  `yaml:"bus"`
	Addresses []uint8 `yaml:"addresses"`
}

type PeriphConfig struct {
	// Ports lists the pin names of each port, as known to the periph registry.
	Ports [][]string `yaml:"ports"`
	// PWMFrequency is in hertz.
	PWMFrequency uint64 `yaml:"pwm_frequency"`
}

type KlipperConfig struct {
	Device         string        `yaml:"device"`
	Baud           int           `yaml:"baud"`
	Pins           uint32        `yaml:"pins"`
	PWMCycleTicks  uint32        `yaml:"pwm_cycle_ticks"`
	ADCSamples     uint8         `yaml:"adc_samples"`
	ADCSampleTicks uint32        `yaml:"adc_sample_ticks"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Defaults describes a single simulated controller so the tools work without a
// board file.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DefaultController: "sim",
		Controllers: []ControllerConfig{
			{
				Name:   "sim",
				Driver: DriverSim,
				Sim: &SimConfig{
					Ports:     2,
					Pins:      16,
					Pulldown:  true,
					OpenDrain: true,
					Analog:    true,
					PWM:       true,
					Bulk:      true,
				},
			},
		},
	}
}

// Load reads a YAML board file, applies env var overrides and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		// a board file replaces the default controller list
		cfg.Controllers = nil
		cfg.DefaultController = ""
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, status.Wrap(status.Param, err, "parse config")
		}
	}

	ApplyEnvOverrides(cfg)
	if cfg.DefaultController == "" && len(cfg.Controllers) > 0 {
		cfg.DefaultController = cfg.Controllers[0].Name
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps FLEXHAL_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLEXHAL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FLEXHAL_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FLEXHAL_CONTROLLER"); v != "" {
		cfg.DefaultController = v
	}
}

// Controller returns the named controller, or the default one for an empty name.
func (c *Config) Controller(name string) (*ControllerConfig, error) {
	if name == "" {
		name = c.DefaultController
	}
	for i := range c.Controllers {
		if c.Controllers[i].Name == name {
			return &c.Controllers[i], nil
		}
	}
	return nil, status.Errorf(status.NotFound, "no controller named %q", name)
}

// NewLogger builds the logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) (*logger.Logger, error) {
	level, err := logger.ParseLevel(l.Level)
	if err != nil {
		return nil, status.Wrap(status.Param, err, "log.level")
	}
	var log *logger.Logger
	switch l.Format {
	case "", "text":
		log = logger.NewText(w)
	case "json":
		log = logger.NewJSON(w)
	default:
		return nil, status.Errorf(status.Param, "log.format %q: want text or json", l.Format)
	}
	log.SetLevel(level)
	return log, nil
}
