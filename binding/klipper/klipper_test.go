package klipper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexhal/binding/klipper"
	"flexhal/binding/klipper/klippertest"
	"flexhal/gpio"
	"flexhal/host/mcu"
	"flexhal/status"
)

func testOptions() klipper.Options {
	opts := klipper.DefaultOptions()
	opts.Pins = 16
	opts.Timeout = 500 * time.Millisecond
	return opts
}

func newController(t *testing.T, dev *klippertest.MCU, opts klipper.Options) gpio.Controller {
	t.Helper()
	ctx := context.Background()
	m := mcu.New(dev.Pipe(), mcu.WithTimeout(opts.Timeout))
	require.NoError(t, m.Identify(ctx))

	drv, err := klipper.New(ctx, m, opts, nil)
	if err != nil {
		_ = m.Close()
		t.Fatal(err)
	}
	ctrl := gpio.NewController(drv)
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl
}

func pinAt(t *testing.T, ctrl gpio.Controller, n uint32) gpio.Pin {
	t.Helper()
	p, err := gpio.PinAt(ctrl, 0, n)
	require.NoError(t, err)
	return p
}

func TestAllocatesOIDs(t *testing.T) {
	dev := klippertest.New()
	ctrl := newController(t, dev, testOptions())

	assert.Equal(t, "klipper", ctrl.Name())
	assert.Equal(t, uint32(1), ctrl.NumPorts())
	port, err := ctrl.Port(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), port.NumPins())
	assert.Equal(t, 16, dev.OIDs())
	assert.Empty(t, dev.Errors())

	_, err = port.Pin(16)
	assert.ErrorIs(t, err, status.NotFound)
}

func TestNewRejectsPinCount(t *testing.T) {
	dev := klippertest.New()
	m := mcu.New(dev.Pipe())
	defer m.Close()
	require.NoError(t, m.Identify(context.Background()))

	opts := testOptions()
	opts.Pins = 0
	_, err := klipper.New(context.Background(), m, opts, nil)
	assert.ErrorIs(t, err, status.Param)
}

func TestDigitalOutput(t *testing.T) {
	dev := klippertest.New()
	ctrl := newController(t, dev, testOptions())

	pin := pinAt(t, ctrl, 5)
	require.NoError(t, pin.SetMode(gpio.ModeOutput))
	require.NoError(t, pin.DigitalWrite(gpio.High))

	hw, ok := dev.Pin(5)
	require.True(t, ok)
	assert.Equal(t, "digital_out", hw.Kind)
	assert.Equal(t, uint8(1), hw.Output)

	v, err := pin.DigitalRead()
	require.NoError(t, err)
	assert.Equal(t, gpio.High, v)

	require.NoError(t, pin.DigitalWrite(gpio.Low))
	hw, _ = dev.Pin(5)
	assert.Equal(t, uint8(0), hw.Output)
	assert.Empty(t, dev.Errors())
}

func TestEndstopInput(t *testing.T) {
	dev := klippertest.New()
	ctrl := newController(t, dev, testOptions())

	pin := pinAt(t, ctrl, 2)
	require.NoError(t, pin.SetMode(gpio.ModeInputPullup))
	hw, _ := dev.Pin(2)
	assert.Equal(t, "endstop", hw.Kind)
	assert.True(t, hw.PullUp)

	v, err := pin.DigitalRead()
	require.NoError(t, err)
	assert.Equal(t, gpio.High, v, "pull-up should read high with nothing attached")

	dev.SetInput(2, false)
	v, err = pin.DigitalRead()
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, v)

	assert.ErrorIs(t, pin.DigitalWrite(gpio.High), status.Param)
}

func TestPWMScaling(t *testing.T) {
	dev := klippertest.New()
	ctrl := newController(t, dev, testOptions())

	pin := pinAt(t, ctrl, 9)
	require.NoError(t, pin.SetConfig(gpio.Config{
		Direction: gpio.DirOutput,
		Pull:      gpio.PullNone,
		Signal:    gpio.SignalPWM,
	}))

	tests := []struct {
		duty uint32
		want uint16
	}{
		{0, 0},
		{0xFFFF, klippertest.PWMMax},
		{0x8000, 128},
		{0x1FFFF, klippertest.PWMMax},
	}
	for _, tt := range tests {
		require.NoError(t, pin.AnalogWrite(tt.duty))
		hw, _ := dev.Pin(9)
		assert.Equal(t, tt.want, hw.PWM, "duty %#x", tt.duty)
	}
}

func TestAnalogRead(t *testing.T) {
	dev := klippertest.New()
	ctrl := newController(t, dev, testOptions())

	dev.SetADC(7, 1000)
	pin := pinAt(t, ctrl, 7)
	require.NoError(t, pin.SetMode(gpio.ModeAnalog))
	assert.Equal(t, gpio.StateAnalog, pin.State())

	v, err := pin.AnalogRead()
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), v)

	_, err = pin.DigitalRead()
	assert.ErrorIs(t, err, status.Param)
}

func TestUnsupportedConfigs(t *testing.T) {
	dev := klippertest.New()
	ctrl := newController(t, dev, testOptions())

	for _, mode := range []gpio.Mode{gpio.ModeInputPulldown, gpio.ModeOutputOpenDrain} {
		pin := pinAt(t, ctrl, 1)
		err := pin.SetMode(mode)
		assert.Equal(t, status.Unsupported, status.CodeOf(err), "mode %s", mode)
		_, configured := pin.Config()
		assert.False(t, configured)
		assert.Equal(t, gpio.StateUnconfigured, pin.State())
	}
	assert.Empty(t, dev.ConfiguredPins())
}

func TestMissingCommand(t *testing.T) {
	dev := klippertest.New(klippertest.WithoutCommands("config_pwm_out"))
	ctrl := newController(t, dev, testOptions())

	pin := pinAt(t, ctrl, 3)
	err := pin.SetConfig(gpio.Config{Direction: gpio.DirOutput, Signal: gpio.SignalPWM})
	assert.Equal(t, status.Unsupported, status.CodeOf(err))
	assert.Equal(t, gpio.StateUnconfigured, pin.State())
	assert.Equal(t, status.Unsupported, status.CodeOf(pin.AnalogWrite(1)))

	require.NoError(t, pin.SetMode(gpio.ModeOutput))
	assert.Equal(t, status.Unsupported, status.CodeOf(pin.AnalogWrite(1)))
}

func TestReconfigure(t *testing.T) {
	dev := klippertest.New()
	ctrl := newController(t, dev, testOptions())

	pin := pinAt(t, ctrl, 4)
	require.NoError(t, pin.SetMode(gpio.ModeOutput))
	require.NoError(t, pin.SetMode(gpio.ModeOutput))

	err := pin.SetMode(gpio.ModeInput)
	assert.Equal(t, status.Unsupported, status.CodeOf(err))
	assert.Equal(t, gpio.StateOutput, pin.State())
	assert.Empty(t, dev.Errors())
}

func TestUnresponsiveController(t *testing.T) {
	dev := klippertest.New()
	opts := testOptions()
	opts.Timeout = 100 * time.Millisecond
	ctrl := newController(t, dev, opts)

	pin := pinAt(t, ctrl, 6)
	require.NoError(t, pin.SetMode(gpio.ModeOutput))

	dev.Mute(true)
	err := pin.DigitalWrite(gpio.High)
	assert.Equal(t, status.Timeout, status.CodeOf(err))
}
