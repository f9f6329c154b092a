// Package system adapts the host wall clock to the sync client.
package system

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Clock reads CLOCK_REALTIME and steps it with settimeofday. In dry-run mode
// writes are logged and dropped, leaving the host clock alone.
type Clock struct {
	DryRun bool
	logger zerolog.Logger
}

func NewClock(dryRun bool, logger zerolog.Logger) *Clock {
	return &Clock{DryRun: dryRun, logger: logger}
}

// WritesEnabled reports whether ENABLED=1 is set. Without it commands run the
// clock in dry-run mode.
func WritesEnabled() bool {
	return os.Getenv("ENABLED") == "1"
}

func (c *Clock) ReadMicroseconds() (int64, int64) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		c.logger.Error().Err(err).Msg("clock_gettime failed")
		return 0, 0
	}
	sec, nsec := ts.Unix()
	return sec, nsec / 1000
}

func (c *Clock) Write(sec, usec int64) error {
	if c.DryRun {
		c.logger.Info().Int64("sec", sec).Int64("usec", usec).Msg("dry run, not setting system clock")
		return nil
	}
	return Settimeofday(sec, usec)
}
