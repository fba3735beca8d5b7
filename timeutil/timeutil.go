// Package timeutil provides the monotonic millisecond/microsecond counters and blocking
// delays used by bindings and tools.
package timeutil

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"flexhal/status"
)

// Clock measures time since its creation. Counters wrap at 32 bits.
type Clock struct {
	clock clockwork.Clock
	start time.Time
}

// New returns a Clock backed by c. A nil c selects the real clock.
func New(c clockwork.Clock) *Clock {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Clock{clock: c, start: c.Now()}
}

// Millis returns milliseconds elapsed since the clock was created.
func (c *Clock) Millis() uint32 {
	return uint32(c.clock.Since(c.start).Milliseconds())
}

// Micros returns microseconds elapsed since the clock was created.
func (c *Clock) Micros() uint32 {
	return uint32(c.clock.Since(c.start).Microseconds())
}

// DelayMs blocks for ms milliseconds.
func (c *Clock) DelayMs(ms uint32) status.Code {
	if ms > 0 {
		c.clock.Sleep(time.Duration(ms) * time.Millisecond)
	}
	return status.OK
}

// DelayUs blocks for us microseconds.
func (c *Clock) DelayUs(us uint32) status.Code {
	if us > 0 {
		c.clock.Sleep(time.Duration(us) * time.Microsecond)
	}
	return status.OK
}

// Sleep blocks for d or until ctx is done, in which case it returns a Timeout
// error wrapping ctx.Err().
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return status.Wrap(status.Timeout, ctx.Err(), "sleep")
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return status.Wrap(status.Timeout, ctx.Err(), "sleep")
	}
}

var std = New(nil)

// Millis reads the process-wide clock.
func Millis() uint32 { return std.Millis() }

// Micros reads the process-wide clock.
func Micros() uint32 { return std.Micros() }

// DelayMs sleeps on the process-wide clock.
func DelayMs(ms uint32) status.Code { return std.DelayMs(ms) }

// DelayUs sleeps on the process-wide clock.
func DelayUs(us uint32) status.Code { return std.DelayUs(us) }

// Sleep sleeps on the process-wide clock.
func Sleep(ctx context.Context, d time.Duration) error { return std.Sleep(ctx, d) }
