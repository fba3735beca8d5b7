package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexhal/status"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	if !hasFlag(args, "--config") {
		args = append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...)
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func TestInfo(t *testing.T) {
	out, err := run(t, "", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "controller sim: 2 ports")
	assert.Contains(t, out, "port 1: 16 pins")
}

func TestPinCommands(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"write", "0", "3", "high"}, "port 0 pin 3 = high"},
		{[]string{"read", "0", "3"}, "port 0 pin 3 = low"},
		{[]string{"mode", "1", "2", "input_pullup"}, "port 1 pin 2: input-pullup (in/up/floating)"},
		{[]string{"analog-read", "0", "1"}, "port 0 pin 1 = 0"},
		{[]string{"analog-write", "0", "1", "32768"}, "port 0 pin 1 <- 32768"},
		{[]string{"port", "write", "0", "0x5", "--mask", "0xf"}, "port 0 <- 0x00000005"},
		{[]string{"blink", "0", "4", "-n", "3", "-i", "1ms"}, "toggled 3 times"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			out, err := run(t, "", tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		args []string
		code status.Code
	}{
		{[]string{"read", "9", "0"}, status.NotFound},
		{[]string{"read", "0", "16"}, status.NotFound},
		{[]string{"mode", "0", "0", "sideways"}, status.Param},
		{[]string{"write", "0", "0", "maybe"}, status.Param},
		{[]string{"read", "zero", "0"}, status.Param},
		{[]string{"-c", "missing", "info"}, status.NotFound},
	}
	for _, tt := range tests {
		_, err := run(t, "", tt.args...)
		assert.Equal(t, tt.code, status.CodeOf(err), "%v", tt.args)
	}

	_, err := run(t, "", "read", "0")
	assert.Error(t, err, "argument count is checked")
}

func TestBoardFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log: {level: error}
controllers:
  - name: small
    driver: sim
    sim: {ports: 1, pins: 4}
`), 0o600))

	out, err := run(t, "", "--config", path, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "controller sim: 1 ports")
	assert.Contains(t, out, "port 0: 4 pins")

	_, err = run(t, "", "--config", path, "mode", "0", "0", "input-pulldown")
	assert.Equal(t, status.Unsupported, status.CodeOf(err))
}

func TestShell(t *testing.T) {
	script := strings.Join([]string{
		"mode 0 1 output",
		"write 0 1 high",
		"read 0 1",
		"port read 0",
		"",
		"bogus",
		"write 0",
		"read 0 99",
		"info",
		"help",
		"quit",
		"read 0 1",
	}, "\n")
	out, err := run(t, script, "shell")
	require.NoError(t, err)

	assert.Contains(t, out, "port 0 pin 1: output (out/none/push-pull)")
	assert.Contains(t, out, "port 0 pin 1 = high")
	assert.Contains(t, out, "port 0 = 0x00000002")
	assert.Contains(t, out, "Unknown command: bogus")
	assert.Contains(t, out, "Usage: write <port> <pin> <level>")
	assert.Contains(t, out, "Error: ")
	assert.Contains(t, out, "pin 1: output out/none/push-pull")
	assert.Contains(t, out, "port write <port> <value> [mask]")
	assert.True(t, strings.HasSuffix(out, "Goodbye!\n"), "commands after quit must not run")
}

func TestShellEOF(t *testing.T) {
	out, err := run(t, "write 0 0 on", "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "port 0 pin 0 = high")
}

func TestDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log: {level: error}
default_controller: bench
controllers:
  - name: bench
    driver: sim
    sim: {ports: 1, pins: 8}
  - name: printer
    driver: klipper
    klipper:
      device: /nonexistent/ttyACM9
      pins: 30
`), 0o600))

	_, err := run(t, "", "--config", path, "dictionary")
	assert.Equal(t, status.Param, status.CodeOf(err), "sim controllers have no dictionary")

	_, err = run(t, "", "--config", path, "-c", "printer", "dictionary")
	assert.Equal(t, status.IO, status.CodeOf(err))
}
