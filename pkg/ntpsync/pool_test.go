package ntpsync

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool() *Pool {
	return NewPool(zerolog.Nop(), func() int64 { return 1_700_000_000 })
}

func TestPoolAdd(t *testing.T) {
	pool := newTestPool()

	require.NoError(t, pool.Add("time.example.com", 0))
	require.NoError(t, pool.Add("time.example.com", 123))
	require.NoError(t, pool.Add("time.example.com", 1123))
	assert.Equal(t, 2, pool.Len())

	server := pool.List()[0]
	assert.Equal(t, uint16(123), server.Port)
	assert.Equal(t, uint8(UnknownStratum), server.Stratum)
	assert.True(t, server.Reachable)
	assert.Equal(t, "time.example.com:123", server.Address())

	assert.ErrorIs(t, pool.Add("  ", 123), ErrInvalidServer)
}

func TestPoolFull(t *testing.T) {
	pool := newTestPool()
	for i := 0; i < MaxServers; i++ {
		require.NoError(t, pool.Add(fmt.Sprintf("s%d.example.com", i), 123))
	}

	assert.ErrorIs(t, pool.Add("extra.example.com", 123), ErrPoolFull)
	assert.Equal(t, MaxServers, pool.Len())

	// existing entries are still accepted when full
	assert.NoError(t, pool.Add("s0.example.com", 123))
}

func TestPoolRemove(t *testing.T) {
	pool := newTestPool()
	require.NoError(t, pool.Add("a", 123))
	require.NoError(t, pool.Add("b", 123))
	require.NoError(t, pool.Add("a", 1123))

	require.NoError(t, pool.Remove("a"))
	servers := pool.List()
	require.Len(t, servers, 1)
	assert.Equal(t, "b", servers[0].Hostname)

	assert.ErrorIs(t, pool.Remove("a"), ErrServerNotFound)

	pool.Clear()
	assert.Zero(t, pool.Len())
	_, ok := pool.Best()
	assert.False(t, ok)
}

func TestPoolListIsCopy(t *testing.T) {
	pool := newTestPool()
	require.NoError(t, pool.Add("a", 123))

	servers := pool.List()
	servers[0].Reachable = false
	assert.True(t, pool.List()[0].Reachable)
}

func TestBestStratumDominates(t *testing.T) {
	pool := newTestPool()
	require.NoError(t, pool.Add("fast", 123))
	require.NoError(t, pool.Add("accurate", 123))

	pool.servers[0].Stratum = 2
	pool.servers[0].AverageRTTMs = 1
	pool.servers[1].Stratum = 1
	pool.servers[1].AverageRTTMs = 500

	best, ok := pool.Best()
	require.True(t, ok)
	assert.Equal(t, "accurate", best.Hostname)
	assert.Less(t, pool.servers[1].Score(), pool.servers[0].Score())
}

func TestBestTieKeepsInsertionOrder(t *testing.T) {
	pool := newTestPool()
	require.NoError(t, pool.Add("first", 123))
	require.NoError(t, pool.Add("second", 123))

	best, ok := pool.Best()
	require.True(t, ok)
	assert.Equal(t, "first", best.Hostname)
}

func TestSelectBest(t *testing.T) {
	servers := []Server{
		{Hostname: "down", Port: 123, Stratum: 1},
		{Hostname: "slow", Port: 123, Stratum: 2, AverageRTTMs: 80, Reachable: true},
		{Hostname: "fast", Port: 123, Stratum: 2, AverageRTTMs: 20, Reachable: true},
	}

	best, ok := SelectBest(servers)
	require.True(t, ok)
	assert.Equal(t, "fast", best.Hostname)

	_, ok = SelectBest(servers[:1])
	assert.False(t, ok)
}

func TestThreeFailuresExcludeServer(t *testing.T) {
	pool := newTestPool()
	require.NoError(t, pool.Add("flaky", 123))
	require.NoError(t, pool.Add("backup", 123))
	pool.servers[1].Stratum = 3

	for i := 0; i < MaxConsecutiveFailures-1; i++ {
		require.NoError(t, pool.RecordOutcome("flaky", false, 0, 0))
	}
	assert.True(t, pool.List()[0].Reachable)

	require.NoError(t, pool.RecordOutcome("flaky", false, 0, 0))
	flaky := pool.List()[0]
	assert.False(t, flaky.Reachable)
	assert.Equal(t, uint32(3), flaky.FailureCount)

	best, ok := pool.Best()
	require.True(t, ok)
	assert.Equal(t, "backup", best.Hostname)

	// a later success clears the failures but not the exclusion
	require.NoError(t, pool.RecordOutcome("flaky", true, 10, 20))
	flaky = pool.List()[0]
	assert.Zero(t, flaky.FailureCount)
	assert.False(t, flaky.Reachable)

	assert.ErrorIs(t, pool.RecordOutcome("missing", true, 0, 0), ErrServerNotFound)
}

func TestRecordOutcomeAverages(t *testing.T) {
	pool := newTestPool()
	require.NoError(t, pool.Add("a", 123))

	require.NoError(t, pool.RecordOutcome("a", true, 100, 40))
	server := pool.List()[0]
	assert.Equal(t, 100.0, server.AverageOffsetMs)
	assert.Equal(t, 40.0, server.AverageRTTMs)
	assert.Equal(t, int64(1_700_000_000), server.LastSuccessTime)

	require.NoError(t, pool.RecordOutcome("a", true, 200, 60))
	server = pool.List()[0]
	assert.InDelta(t, 110.0, server.AverageOffsetMs, 1e-9)
	assert.InDelta(t, 42.0, server.AverageRTTMs, 1e-9)
	assert.Equal(t, uint32(2), server.Samples)

	// a zero first sample still counts as the first sample
	require.NoError(t, pool.Add("b", 123))
	require.NoError(t, pool.RecordOutcome("b", true, 0, 0))
	require.NoError(t, pool.RecordOutcome("b", true, 100, 100))
	assert.InDelta(t, 10.0, pool.List()[1].AverageOffsetMs, 1e-9)
}

func TestRemoveIndex(t *testing.T) {
	s := []int{1, 2, 3}
	RemoveIndex(&s, 1)
	assert.Equal(t, []int{1, 3}, s)
}
