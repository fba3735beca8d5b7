package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexhal/status"
)

func TestCanonicalizeTable(t *testing.T) {
	cases := []struct {
		mode Mode
		want Config
	}{
		{ModeInput, Config{DirInput, PullNone, SignalFloating}},
		{ModeOutput, Config{DirOutput, PullNone, SignalPushPull}},
		{ModeInputPullup, Config{DirInput, PullUp, SignalFloating}},
		{ModeInputPulldown, Config{DirInput, PullDown, SignalFloating}},
		{ModeOutputOpenDrain, Config{DirOutput, PullNone, SignalOpenDrain}},
		{ModeAnalog, Config{DirInput, PullNone, SignalAnalog}},
		{ModeDisabled, Config{DirInput, PullNone, SignalFloating}},
	}
	for _, tc := range cases {
		t.Run(tc.mode.String(), func(t *testing.T) {
			got := Canonicalize(tc.mode)
			if got != tc.want {
				t.Errorf("Canonicalize(%s) = %s, want %s", tc.mode, got, tc.want)
			}
			assert.NoError(t, got.Validate())
		})
	}
}

func TestCanonicalizeUnknownMode(t *testing.T) {
	assert.Equal(t, Canonicalize(ModeDisabled), Canonicalize(Mode(200)))
}

func TestValidate(t *testing.T) {
	valid := []Config{
		{DirOutput, PullUp, SignalOpenDrain},
		{DirOutput, PullNone, SignalPWM},
		{DirOutput, PullNone, SignalAnalog},
		{DirInOut, PullUp, SignalOpenDrain},
		{DirInOut, PullNone, SignalPushPull},
	}
	for _, c := range valid {
		assert.NoError(t, c.Validate(), c.String())
	}

	invalid := []Config{
		{DirInput, PullNone, SignalPushPull},
		{DirInput, PullNone, SignalPWM},
		{DirInput, PullNone, SignalOpenDrain},
		{DirOutput, PullNone, SignalFloating},
		{DirOutput, PullUp, SignalPushPull},
		{DirOutput, PullDown, SignalPWM},
		{DirInput, PullUp, SignalAnalog},
		{DirInOut, PullNone, SignalAnalog},
		{Direction(9), PullNone, SignalFloating},
		{DirInput, Pull(7), SignalFloating},
		{DirInput, PullNone, SignalType(11)},
	}
	for _, c := range invalid {
		err := c.Validate()
		require.Error(t, err, c.String())
		assert.ErrorIs(t, err, status.Param)
	}
}

func TestParseMode(t *testing.T) {
	for m := ModeInput; m <= ModeDisabled; m++ {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode("INPUT_PULLUP")
	require.NoError(t, err)
	assert.Equal(t, ModeInputPullup, got)

	_, err = ParseMode("tristate")
	assert.ErrorIs(t, err, status.Param)
}

func TestParseValue(t *testing.T) {
	for s, want := range map[string]Value{"1": High, "HIGH": High, "on": High, "0": Low, "low": Low, "off": Low} {
		got, err := ParseValue(s)
		require.NoError(t, err)
		assert.Equal(t, want, got, s)
	}
	_, err := ParseValue("2")
	assert.ErrorIs(t, err, status.Param)
}
