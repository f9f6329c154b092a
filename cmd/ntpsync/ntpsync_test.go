package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/AndrewLester/ntpsync/internal/config"
	"github.com/AndrewLester/ntpsync/internal/store"
	"github.com/AndrewLester/ntpsync/pkg/ntp"
	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/AndrewLester/ntpsync/pkg/tz"
	beevik "github.com/beevik/ntp"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct {
	sec, usec int64
}

func (c *stubClock) ReadMicroseconds() (int64, int64) { return c.sec, c.usec }

func (c *stubClock) Write(sec, usec int64) error {
	c.sec, c.usec = sec, usec
	return nil
}

// echoTransport answers every request with a stratum 1 reply.
type echoTransport struct {
	pending bool
}

func (t *echoTransport) Send(address string, packet []byte) error {
	t.pending = true
	return nil
}

func (t *echoTransport) Receive(buf []byte, remaining time.Duration) (int, error) {
	if !t.pending {
		return 0, ntpsync.ErrWouldBlock
	}
	t.pending = false
	return copy(buf, ntp.Encode(ntp.Packet{
		Version:  4,
		Mode:     ntp.SERVER,
		Stratum:  1,
		Transmit: ntp.TimestampFromUnixMicros(1_700_000_000_250_000),
	})), nil
}

type fakeLock struct {
	busy     bool
	unlocked int
}

func (l *fakeLock) TryLock() (bool, error) { return !l.busy, nil }

func (l *fakeLock) Unlock() error {
	l.unlocked++
	return nil
}

func newLoop(t *testing.T, clock clockwork.Clock, lock tryLocker) (*daemonLoop, *[]ntpsync.State) {
	t.Helper()

	client := ntpsync.New(&stubClock{sec: 1_700_000_000},
		ntpsync.WithLogger(zerolog.Nop()),
		ntpsync.WithMonotonicClock(clock),
	)
	require.NoError(t, client.AddServer("a", 123))
	require.NoError(t, client.Begin(&echoTransport{}))
	client.SetAutoSync(true, 60)

	var saved []ntpsync.State
	return &daemonLoop{
		client: client,
		clock:  clock,
		lock:   lock,
		save: func(state ntpsync.State) error {
			saved = append(saved, state)
			return nil
		},
		logger: zerolog.Nop(),
	}, &saved
}

func TestDaemonLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	lock := &fakeLock{}
	loop, saved := newLoop(t, clock, lock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		loop.mu.Lock()
		defer loop.mu.Unlock()
		return loop.client.Statistics().SyncCount == 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	require.Len(t, *saved, 2)
	assert.Equal(t, int64(250), (*saved)[1].LastOffsetMs)
	assert.Equal(t, 1, lock.unlocked)
}

func TestDaemonTickSkipsWhenLocked(t *testing.T) {
	loop, saved := newLoop(t, clockwork.NewFakeClock(), &fakeLock{busy: true})

	loop.tick()
	assert.Zero(t, loop.client.Statistics().SyncCount)
	assert.Empty(t, *saved)
}

func TestClockLock(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state", "state.db")

	lock, err := clockLock(stateFile)
	require.NoError(t, err)

	_, err = clockLock(stateFile)
	assert.ErrorIs(t, err, errLocked)

	require.NoError(t, lock.Unlock())
	lock, err = clockLock(stateFile)
	require.NoError(t, err)
	require.NoError(t, lock.Unlock())
}

func TestDescribeZone(t *testing.T) {
	summer := tz.MakeTime(2024, time.July, 1, 12, 0, 0)
	out := describeZone(tz.USEastern(), summer)
	assert.Contains(t, out, "Zone:  EST (UTC-5)")
	assert.Contains(t, out, "Local: 2024-07-01 08:00:00")
	assert.Contains(t, out, "DST:   active (+60m)")
	assert.Contains(t, out, "Start: 2024-03-10 02:00:00 UTC")
	assert.Contains(t, out, "End:   2024-11-03 02:00:00 UTC")

	assert.Contains(t, describeZone(tz.UTC(), summer), "DST:   not observed")
}

func TestFormatServers(t *testing.T) {
	out := formatServers([]ntpsync.Server{
		{Hostname: "a", Port: 123, Stratum: 1, AverageRTTMs: 12.34, AverageOffsetMs: -3, Reachable: true},
		{Hostname: "b", Port: 123, Stratum: 255, FailureCount: 3},
	})
	assert.Contains(t, out, "a:123")
	assert.Contains(t, out, "12.3ms")
	assert.Contains(t, out, "UNREACHABLE")
}

func TestFormatCheckResults(t *testing.T) {
	out := formatCheckResults([]checkResult{
		{
			server:    ntpsync.Server{Hostname: "a", Port: 123},
			outcome:   ntpsync.Outcome{Success: true, OffsetMs: 480},
			reference: &beevik.Response{ClockOffset: 450 * time.Millisecond},
		},
		{
			server:  ntpsync.Server{Hostname: "b", Port: 123},
			outcome: ntpsync.Outcome{Err: ntpsync.ErrTimeout},
			refErr:  errors.New("i/o timeout"),
		},
	})
	assert.Contains(t, out, "480ms")
	assert.Contains(t, out, "450ms")
	assert.Contains(t, out, "30ms")
	assert.Contains(t, out, "ntpsync: timeout waiting for NTP response")
	assert.Contains(t, out, "reference: i/o timeout")
}

func TestCheckerUsesReference(t *testing.T) {
	client := ntpsync.New(&stubClock{sec: 1_700_000_000}, ntpsync.WithLogger(zerolog.Nop()))
	require.NoError(t, client.AddServer("a", 1123))
	require.NoError(t, client.Begin(&echoTransport{}))

	var queried string
	chk := &checker{
		client:  client,
		timeout: time.Second,
		query: func(host string, port int, timeout time.Duration) (*beevik.Response, error) {
			queried = fmt.Sprintf("%s:%d", host, port)
			return &beevik.Response{ClockOffset: 200 * time.Millisecond}, nil
		},
	}

	result := chk.check(client.Servers()[0])
	require.True(t, result.outcome.Success, result.outcome.Message())
	assert.Equal(t, int64(250), result.outcome.OffsetMs)
	assert.Equal(t, "a:1123", queried)
	assert.Equal(t, 200*time.Millisecond, result.reference.ClockOffset)
}

type fakeDaemon struct {
	calls []string
}

func (d *fakeDaemon) FetchDiagnostics() (ntpsync.Diagnostics, error) {
	d.calls = append(d.calls, "fetch")
	return ntpsync.Diagnostics{Servers: []ntpsync.Server{
		{Hostname: "h", Port: 123, Stratum: 3, Reachable: true},
		{Hostname: "h", Port: 1123, Stratum: 1, Reachable: true},
	}}, nil
}

func (d *fakeDaemon) ResetStatistics() error {
	d.calls = append(d.calls, "reset")
	return nil
}

func TestDaemonServers(t *testing.T) {
	daemon := &fakeDaemon{}
	servers, err := daemonServers(daemon, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"reset", "fetch"}, daemon.calls)

	best, ok := ntpsync.SelectBest(servers)
	require.True(t, ok)
	assert.Equal(t, "h:1123", best.Address())

	daemon.calls = nil
	_, err = daemonServers(daemon, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch"}, daemon.calls)
}

func TestSavedServersReset(t *testing.T) {
	cfg := config.Default()
	cfg.StateFile = filepath.Join(t.TempDir(), "state.db")
	cfg.Servers = []config.Server{{Host: "a", Port: 123}, {Host: "b", Port: 123}}

	require.NoError(t, store.SaveFile(cfg.StateFile, ntpsync.State{
		Servers: []ntpsync.Server{{Hostname: "a", Port: 123, Stratum: 2, FailureCount: 3}},
	}))

	servers, err := savedServers(cfg, false)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.False(t, servers[0].Reachable)
	assert.Equal(t, uint32(3), servers[0].FailureCount)

	servers, err = savedServers(cfg, true)
	require.NoError(t, err)
	assert.True(t, servers[0].Reachable)
	assert.Zero(t, servers[0].FailureCount)

	state, found, err := store.LoadFile(cfg.StateFile)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, state.Servers[0].Reachable)
}
