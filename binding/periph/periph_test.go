package periph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"flexhal/binding/periph"
	"flexhal/gpio"
	"flexhal/status"
)

// brokenPin fails every drive request.
type brokenPin struct {
	*gpiotest.Pin
}

func (p *brokenPin) Out(pgpio.Level) error { return errors.New("line held by another process") }

func testPins() []*gpiotest.Pin {
	return []*gpiotest.Pin{
		{N: "GPIO17", Num: 17},
		{N: "GPIO27", Num: 27},
		{N: "GPIO22", Num: 22},
	}
}

func newController(t *testing.T, pins []*gpiotest.Pin) gpio.Controller {
	t.Helper()
	port := make([]pgpio.PinIO, len(pins))
	for i, p := range pins {
		port[i] = p
	}
	drv, err := periph.New([][]pgpio.PinIO{port}, 0, nil)
	require.NoError(t, err)
	ctrl := gpio.NewController(drv)
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl
}

func TestPullMapping(t *testing.T) {
	pins := testPins()
	ctrl := newController(t, pins)

	up, err := gpio.PinAt(ctrl, 0, 0)
	require.NoError(t, err)
	require.NoError(t, up.SetMode(gpio.ModeInputPullup))
	v, err := up.DigitalRead()
	require.NoError(t, err)
	assert.Equal(t, gpio.High, v)

	down, err := gpio.PinAt(ctrl, 0, 1)
	require.NoError(t, err)
	pins[1].L = pgpio.High
	require.NoError(t, down.SetMode(gpio.ModeInputPulldown))
	v, err = down.DigitalRead()
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, v)
}

func TestOutput(t *testing.T) {
	pins := testPins()
	ctrl := newController(t, pins)

	pin, err := gpio.PinAt(ctrl, 0, 2)
	require.NoError(t, err)
	require.NoError(t, pin.SetMode(gpio.ModeOutput))
	require.NoError(t, pin.DigitalWrite(gpio.High))
	assert.Equal(t, pgpio.High, pins[2].Read())

	v, err := pin.DigitalRead()
	require.NoError(t, err)
	assert.Equal(t, gpio.High, v)
}

func TestPWMDutyScaling(t *testing.T) {
	pins := testPins()
	ctrl := newController(t, pins)

	pin, err := gpio.PinAt(ctrl, 0, 0)
	require.NoError(t, err)
	require.NoError(t, pin.SetConfig(gpio.Config{Direction: gpio.DirOutput, Signal: gpio.SignalPWM}))
	assert.Equal(t, periph.DefaultFrequency, pins[0].F)

	tests := []struct {
		in   uint32
		want pgpio.Duty
	}{
		{0, 0},
		{0xFFFF, pgpio.DutyMax},
		{0x10000, pgpio.DutyMax},
		{0x8000, pgpio.Duty(uint64(0x8000) * uint64(pgpio.DutyMax) / 0xFFFF)},
	}
	for _, tt := range tests {
		require.NoError(t, pin.AnalogWrite(tt.in))
		assert.Equal(t, tt.want, pins[0].D, "duty %#x", tt.in)
	}
}

func TestUnsupported(t *testing.T) {
	ctrl := newController(t, testPins())
	pin, err := gpio.PinAt(ctrl, 0, 0)
	require.NoError(t, err)

	for _, m := range []gpio.Mode{gpio.ModeOutputOpenDrain, gpio.ModeAnalog} {
		err := pin.SetMode(m)
		assert.Equal(t, status.Unsupported, status.CodeOf(err), "mode %s", m)
		assert.Equal(t, gpio.StateUnconfigured, pin.State())
	}
	err = pin.SetConfig(gpio.Config{Direction: gpio.DirInOut, Signal: gpio.SignalOpenDrain})
	assert.Equal(t, status.Unsupported, status.CodeOf(err))

	port, err := ctrl.Port(0)
	require.NoError(t, err)
	assert.ErrorIs(t, port.Write(1), status.Unsupported)
}

func TestAnalogReadUnsupported(t *testing.T) {
	ctrl := newController(t, testPins())
	pin, err := gpio.PinAt(ctrl, 0, 0)
	require.NoError(t, err)

	_, err = pin.AnalogRead()
	assert.Equal(t, status.Unsupported, status.CodeOf(err), "unconfigured pin")

	require.NoError(t, pin.SetMode(gpio.ModeInput))
	_, err = pin.AnalogRead()
	assert.Equal(t, status.Unsupported, status.CodeOf(err), "digital input")

	assert.Equal(t, status.Param, status.CodeOf(pin.AnalogWrite(1)), "PWM exists but the pin is an input")
}

func TestDriveFailure(t *testing.T) {
	pin := &brokenPin{Pin: &gpiotest.Pin{N: "GPIO5", Num: 5}}
	drv, err := periph.New([][]pgpio.PinIO{{pin}}, physic.KiloHertz, nil)
	require.NoError(t, err)
	ctrl := gpio.NewController(drv)

	p, err := gpio.PinAt(ctrl, 0, 0)
	require.NoError(t, err)
	err = p.SetMode(gpio.ModeOutput)
	assert.Equal(t, status.IO, status.CodeOf(err))
	_, ok := p.Config()
	assert.False(t, ok)
}

func TestOpenByName(t *testing.T) {
	a := &gpiotest.Pin{N: "FLEXHAL_TEST_A", Num: 901}
	b := &gpiotest.Pin{N: "FLEXHAL_TEST_B", Num: 902}
	for _, p := range []*gpiotest.Pin{a, b} {
		require.NoError(t, gpioreg.Register(p))
		name := p.N
		t.Cleanup(func() { _ = gpioreg.Unregister(name) })
	}

	drv, err := periph.Open([][]string{{"FLEXHAL_TEST_A"}, {"FLEXHAL_TEST_B", "FLEXHAL_TEST_A"}}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), drv.NumPorts())
	assert.Equal(t, uint32(1), drv.NumPins(0))
	assert.Equal(t, uint32(2), drv.NumPins(1))

	_, err = periph.Open([][]string{{"FLEXHAL_NO_SUCH_PIN"}}, 0, nil)
	assert.ErrorIs(t, err, status.NotFound)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := periph.New(nil, 0, nil)
	assert.ErrorIs(t, err, status.Param)
	_, err = periph.New([][]pgpio.PinIO{{nil}}, 0, nil)
	assert.ErrorIs(t, err, status.Param)
}
