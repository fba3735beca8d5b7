// Package serial opens the serial links that remote controllers are attached to.
package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"flexhal/status"
)

// Port is an open serial link.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read.
	Flush() error
}

// Config describes a serial link.
type Config struct {
	Device string
	Baud   int
	// ReadTimeout bounds each Read; zero blocks until data arrives.
	ReadTimeout time.Duration
}

const DefaultBaud = 250000

// DefaultConfig returns the settings Klipper firmware expects. USB CDC devices
// ignore the baud rate.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Open opens the device described by cfg.
func Open(cfg *Config) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, status.Errorf(status.Param, "serial: no device configured")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, status.Wrap(status.IO, err, fmt.Sprintf("open serial port %s", cfg.Device))
	}
	return port, nil
}

var _ Port = (*serial.Port)(nil)
