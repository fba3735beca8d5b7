package serial

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexhal/status"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, 250000, cfg.Baud)
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeout)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(nil)
	assert.ErrorIs(t, err, status.Param)

	_, err = Open(&Config{})
	assert.ErrorIs(t, err, status.Param)

	_, err = Open(DefaultConfig(filepath.Join(t.TempDir(), "missing-tty")))
	require.Error(t, err)
	assert.ErrorIs(t, err, status.IO)
}
