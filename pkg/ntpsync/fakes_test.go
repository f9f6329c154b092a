package ntpsync

import (
	"errors"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/ntp"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type fakeSystemClock struct {
	sec, usec int64
	writes    [][2]int64
	err       error
}

func (c *fakeSystemClock) ReadMicroseconds() (int64, int64) {
	return c.sec, c.usec
}

func (c *fakeSystemClock) Write(sec, usec int64) error {
	if c.err != nil {
		return c.err
	}
	c.sec, c.usec = sec, usec
	c.writes = append(c.writes, [2]int64{sec, usec})
	return nil
}

// fakeTransport answers a request with the response registered for the
// destination address. Unknown addresses never answer.
type fakeTransport struct {
	responses map[string][]byte
	sent      []string
	pending   []byte
	sendErr   error
	recvErr   error
	waitPolls int // polls that see nothing before a pending reply arrives
	latency   time.Duration
	clock     *clockwork.FakeClock
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string][]byte{}}
}

func (t *fakeTransport) Send(address string, packet []byte) error {
	t.sent = append(t.sent, address)
	if t.sendErr != nil {
		return t.sendErr
	}
	t.pending = t.responses[address]
	return nil
}

func (t *fakeTransport) Receive(buf []byte, remaining time.Duration) (int, error) {
	if t.recvErr != nil {
		return 0, t.recvErr
	}
	if t.pending == nil {
		return 0, ErrWouldBlock
	}
	if t.waitPolls > 0 {
		t.waitPolls--
		return 0, ErrWouldBlock
	}
	if t.clock != nil {
		t.clock.Advance(t.latency)
	}
	n := copy(buf, t.pending)
	t.pending = nil
	return n, nil
}

func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}

func serverResponse(stratum uint8, unixMicros int64) []byte {
	return ntp.Encode(ntp.Packet{
		Version:     4,
		Mode:        ntp.SERVER,
		Stratum:     stratum,
		Poll:        6,
		Precision:   -20,
		ReferenceID: 0x47505300, // "GPS"
		Reference:   ntp.TimestampFromUnixMicros(unixMicros - 16_000_000),
		Transmit:    ntp.TimestampFromUnixMicros(unixMicros),
	})
}

var errBoom = errors.New("boom")

// newTestClient returns an initialized client whose round trips are measured
// on a fake monotonic clock.
func newTestClient(sec, usec int64) (*Client, *fakeSystemClock, *fakeTransport) {
	clock := &fakeSystemClock{sec: sec, usec: usec}
	transport := newFakeTransport()
	transport.clock = clockwork.NewFakeClock()

	client := New(clock,
		WithLogger(zerolog.Nop()),
		WithMonotonicClock(transport.clock),
	)
	if err := client.Begin(transport); err != nil {
		panic(err)
	}
	return client, clock, transport
}

// newTimeoutClient uses the real clock so the wait loop can expire.
func newTimeoutClient() (*Client, *fakeSystemClock, *fakeTransport) {
	clock := &fakeSystemClock{sec: 1_700_000_000}
	transport := newFakeTransport()

	client := New(clock, WithLogger(zerolog.Nop()), WithPollInterval(time.Millisecond))
	if err := client.Begin(transport); err != nil {
		panic(err)
	}
	return client, clock, transport
}
