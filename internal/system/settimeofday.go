package system

import (
	"golang.org/x/sys/unix"
)

// Settimeofday steps the wall clock. The Timeval field widths differ across
// platforms, so it is built from nanoseconds.
func Settimeofday(sec, usec int64) error {
	timeVal := unix.NsecToTimeval(sec*1e9 + usec*1e3)
	return unix.Settimeofday(&timeVal)
}
