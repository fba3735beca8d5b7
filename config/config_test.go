package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexhal/logger"
	"flexhal/status"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))
	c, err := cfg.Controller("")
	require.NoError(t, err)
	assert.Equal(t, DriverSim, c.Driver)
	assert.Equal(t, uint32(2), c.Sim.Ports)
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
default_controller: printer
controllers:
  - name: expander
    driver: mcp23017
    mcp23017:
      addresses: [0x20, 0x21]
  - name: header
    driver: periph
    periph:
      ports: [[GPIO17, GPIO27], [GPIO5]]
      pwm_frequency: 2000
  - name: printer
    driver: klipper
    klipper:
      device: /dev/ttyACM0
      baud: 250000
      pins: 30
      timeout: 1500ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Len(t, cfg.Controllers, 3)

	c, err := cfg.Controller("")
	require.NoError(t, err)
	assert.Equal(t, "printer", c.Name)
	assert.Equal(t, 1500*time.Millisecond, c.Klipper.Timeout)

	exp, err := cfg.Controller("expander")
	require.NoError(t, err)
	assert.Equal(t, []uint8{0x20, 0x21}, exp.MCP23017.Addresses)

	hdr, err := cfg.Controller("header")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"GPIO17", "GPIO27"}, {"GPIO5"}}, hdr.Periph.Ports)
	assert.Equal(t, uint64(2000), hdr.Periph.PWMFrequency)

	_, err = cfg.Controller("nope")
	assert.ErrorIs(t, err, status.NotFound)
}

func TestFirstControllerIsDefault(t *testing.T) {
	path := writeConfig(t, `
controllers:
  - name: bench
    driver: sim
    sim: {ports: 1, pins: 8}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bench", cfg.DefaultController)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLEXHAL_LOG_LEVEL", "verbose")
	t.Setenv("FLEXHAL_LOG_FORMAT", "json")
	t.Setenv("FLEXHAL_CONTROLLER", "other")

	path := writeConfig(t, `
controllers:
  - {name: bench, driver: sim, sim: {ports: 1, pins: 8}}
  - {name: other, driver: sim, sim: {ports: 1, pins: 4}}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "verbose", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	c, err := cfg.Controller("")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), c.Sim.Pins)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{
		Log:               LogConfig{Level: "loud", Format: "xml"},
		DefaultController: "missing",
		Controllers: []ControllerConfig{
			{Name: "a", Driver: DriverSim},
			{Name: "a", Driver: "gpiochip"},
			{Name: "b", Driver: DriverMCP23017, MCP23017: &MCP23017Config{Addresses: []uint8{0x40}}},
			{Name: "c", Driver: DriverKlipper, Klipper: &KlipperConfig{Device: "/dev/ttyUSB0"}},
			{Driver: DriverPeriph, Periph: &PeriphConfig{Ports: [][]string{{}}}},
		},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, status.Param)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	want := []string{
		"log.level",
		"log.format",
		`controller "a": sim section is required`,
		`"a" is duplicated`,
		`unknown driver "gpiochip"`,
		"0x40 outside",
		"klipper.pins must be 1..256",
		"controllers[4].name is required",
		"periph.ports[0] is empty",
		`default_controller "missing"`,
	}
	msg := ve.Error()
	for _, w := range want {
		assert.True(t, strings.Contains(msg, w), "missing %q in:\n%s", w, msg)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "controllers: [")
	_, err := Load(path)
	assert.ErrorIs(t, err, status.Param)
}

func TestNewLogger(t *testing.T) {
	var buf strings.Builder
	log, err := LogConfig{Level: "debug", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logger.Debug, log.Level())

	log.Debugf("test", "hello %d", 1)
	assert.Contains(t, buf.String(), `"msg":"hello 1"`)
	assert.Contains(t, buf.String(), `"tag":"test"`)

	_, err = LogConfig{Level: "info", Format: "xml"}.NewLogger(&buf)
	assert.ErrorIs(t, err, status.Param)
	_, err = LogConfig{Level: "shout"}.NewLogger(&buf)
	assert.ErrorIs(t, err, status.Param)
}
