package ntp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFractionToMicros(t *testing.T) {
	assert.Equal(t, int64(500_000), FractionToMicros(0x80000000))
	assert.Equal(t, int64(0), FractionToMicros(0x00000000))
	assert.InDelta(t, 999_999, FractionToMicros(0xFFFFFFFF), 1)
	assert.Equal(t, int64(250_000), FractionToMicros(0x40000000))
	assert.Equal(t, int64(750_000), FractionToMicros(0xC0000000))
}

func TestMicrosToFractionRoundTrip(t *testing.T) {
	for _, usec := range []int64{0, 1, 2, 499_999, 500_000, 600_000, 999_998, 999_999} {
		assert.Equalf(t, usec, FractionToMicros(MicrosToFraction(usec)), "usec %d", usec)
	}
}

func TestTimestampFromUnixMicros(t *testing.T) {
	ts := TimestampFromUnixMicros(1_000_000*1_000_000 + 600_000)
	sec, usec := ts.Unix()
	assert.Equal(t, int64(1_000_000), sec)
	assert.Equal(t, int64(600_000), usec)

	assert.Equal(t, time.Unix(1_000_000, 600_000_000).UTC(), ts.Time())
	assert.False(t, ts.IsZero())
	assert.True(t, Timestamp{}.IsZero())
}

func TestLog2ToDouble(t *testing.T) {
	assert.Equal(t, 0.25, Log2ToDouble(-2))
	assert.Equal(t, 1.0, Log2ToDouble(0))
	assert.Equal(t, 64.0, Log2ToDouble(6))
	assert.Equal(t, 1.0/1_048_576, Log2ToDouble(-20))
}
