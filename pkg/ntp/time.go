package ntp

import (
	"math"
	"time"
)

// FractionToMicros converts a 2^-32 s fraction to whole microseconds.
func FractionToMicros(fraction uint32) int64 {
	return int64((uint64(fraction) * 1_000_000) >> 32)
}

// MicrosToFraction is the inverse of FractionToMicros for usec in [0, 1e6).
// It rounds up so that converting back yields the same microsecond.
func MicrosToFraction(usec int64) uint32 {
	return uint32(((uint64(usec) << 32) + 999_999) / 1_000_000)
}

func TimestampFromUnixMicros(epochMicros int64) Timestamp {
	sec := epochMicros / 1_000_000
	usec := epochMicros % 1_000_000
	if usec < 0 {
		sec--
		usec += 1_000_000
	}
	return Timestamp{
		Seconds:  uint32(sec + UnixEraOffset),
		Fraction: MicrosToFraction(usec),
	}
}

// Unix returns the timestamp as Unix seconds and microseconds. Era 0 only.
func (ts Timestamp) Unix() (int64, int64) {
	return int64(ts.Seconds) - UnixEraOffset, FractionToMicros(ts.Fraction)
}

func (ts Timestamp) Time() time.Time {
	sec, usec := ts.Unix()
	return time.Unix(sec, usec*int64(time.Microsecond)).UTC()
}

func (ts Timestamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Fraction == 0
}

// Log2ToDouble expands a log2 seconds field such as Poll or Precision.
func Log2ToDouble(exponent int8) float64 {
	return math.Ldexp(1, int(exponent))
}
