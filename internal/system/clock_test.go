package system

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestReadMicroseconds(t *testing.T) {
	clock := NewClock(true, zerolog.Nop())

	before := time.Now().Unix()
	sec, usec := clock.ReadMicroseconds()
	after := time.Now().Unix()

	assert.GreaterOrEqual(t, sec, before)
	assert.LessOrEqual(t, sec, after)
	assert.GreaterOrEqual(t, usec, int64(0))
	assert.Less(t, usec, int64(1_000_000))
}

func TestDryRunWrite(t *testing.T) {
	clock := NewClock(true, zerolog.Nop())
	assert.NoError(t, clock.Write(946_684_800, 0))

	// the host clock must be untouched
	assert.Greater(t, time.Now().Unix(), int64(946_684_800+86400))
}

func TestWritesEnabled(t *testing.T) {
	t.Setenv("ENABLED", "1")
	assert.True(t, WritesEnabled())

	t.Setenv("ENABLED", "0")
	assert.False(t, WritesEnabled())
}
