package ntpsync

import (
	"errors"
	"fmt"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/ntp"
	"github.com/google/uuid"
)

const DefaultTimeout = 5 * time.Second

// Outcome describes one sync attempt. It is populated on failure as well, so
// callers inspect Success rather than expecting an error return.
type Outcome struct {
	AttemptID    string
	Success      bool
	Epoch        int64 /* corrected epoch that was written */
	Microseconds int64
	OffsetMs     int64
	RoundTripMs  int64
	Stratum      uint8
	Server       string
	Duration     time.Duration
	Err          error
}

func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// OffsetMs is the difference between the server and system instants, in
// milliseconds truncated toward zero.
func OffsetMs(ntpSeconds, ntpMicros, sysSeconds, sysMicros int64) int64 {
	corrected := ntpSeconds*1_000_000 + ntpMicros
	system := sysSeconds*1_000_000 + sysMicros
	return (corrected - system) / 1000
}

// SyncTime tries the best server, then every reachable server in pool order,
// stopping at the first success. A non-positive timeout selects
// DefaultTimeout.
func (c *Client) SyncTime(timeout time.Duration) Outcome {
	if !c.initialized {
		return Outcome{AttemptID: uuid.NewString(), Err: ErrNotInitialized}
	}

	var last Outcome
	if best := c.pool.best(); best != nil {
		last = c.syncServer(best, timeout)
		if last.Success || errors.Is(last.Err, ErrClockWrite) {
			c.countClockWriteFailure(last)
			return last
		}
	}

	// callbacks may edit the pool while we walk it
	servers := append([]*Server(nil), c.pool.servers...)
	for _, server := range servers {
		if !server.Reachable {
			continue
		}
		last = c.syncServer(server, timeout)
		if last.Success || errors.Is(last.Err, ErrClockWrite) {
			c.countClockWriteFailure(last)
			return last
		}
	}

	c.stats.FailureCount++
	if last.Err != nil {
		last.Err = fmt.Errorf("%w: last error: %v", ErrAllServersFailed, last.Err)
	} else {
		last = Outcome{AttemptID: uuid.NewString(), Err: ErrAllServersFailed}
	}
	last.Success = false
	c.logger.Error().Uint32("failures", c.stats.FailureCount).Msg("failed to sync with any server")
	return last
}

func (c *Client) countClockWriteFailure(out Outcome) {
	if !out.Success {
		c.stats.FailureCount++
	}
}

// ForceSync runs SyncTime with the default timeout.
func (c *Client) ForceSync() bool {
	c.logger.Info().Msg("forcing time sync")
	return c.SyncTime(DefaultTimeout).Success
}

// SyncFromServer performs one request/response exchange with hostname and, on
// success, steps the system clock. When hostname is in the pool more than
// once, the first entry is used. Hosts outside the pool are queried on the
// default port and leave no health record. A non-positive timeout selects
// DefaultTimeout.
func (c *Client) SyncFromServer(hostname string, timeout time.Duration) Outcome {
	if server := c.pool.find(hostname); server != nil {
		return c.syncServer(server, timeout)
	}
	return c.exchange(hostname, ntp.Port, nil, timeout)
}

func (c *Client) syncServer(server *Server, timeout time.Duration) Outcome {
	return c.exchange(server.Hostname, server.Port, server, timeout)
}

// exchange runs one sync against hostname:port. Health is recorded on server
// when it is not nil.
func (c *Client) exchange(hostname string, port uint16, server *Server, timeout time.Duration) Outcome {
	out := Outcome{AttemptID: uuid.NewString(), Server: hostname}
	if !c.initialized {
		out.Err = ErrNotInitialized
		return out
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := c.logger.With().Str("server", hostname).Str("attempt", out.AttemptID).Logger()

	start := c.monotonic.Now()
	fail := func(err error) Outcome {
		out.Err = err
		out.Duration = c.monotonic.Since(start)
		logger.Warn().Err(err).Msg("sync failed")
		if server != nil {
			c.pool.record(server, false, 0, 0)
		}
		return out
	}

	logger.Debug().Msg("attempting sync")

	sec, usec := c.clock.ReadMicroseconds()
	request := ntp.EncodeRequest(sec*1_000_000 + usec)
	address := Server{Hostname: hostname, Port: port}.Address()
	if err := c.transport.Send(address, request); err != nil {
		return fail(fmt.Errorf("%w: send to %s: %v", ErrTransport, address, err))
	}

	buf := make([]byte, ntp.PacketSize*2)
	n, err := c.await(buf, start.Add(timeout))
	if err != nil {
		return fail(err)
	}
	rtt := c.monotonic.Since(start).Milliseconds()

	response, err := ntp.DecodeResponse(buf[:n])
	if err != nil {
		return fail(err)
	}
	event := logger.Debug().
		Uint8("stratum", response.Stratum).
		Str("refid", response.ReferenceIDString()).
		Float64("poll_s", ntp.Log2ToDouble(response.Poll)).
		Float64("precision_s", ntp.Log2ToDouble(response.Precision)).
		Int64("unix", response.UnixSeconds).
		Int64("usec", response.Microseconds)
	if !response.Reference.IsZero() {
		event = event.Time("reference", response.Reference.Time())
	}
	event.Msg("received response")

	sysSec, sysUsec := c.clock.ReadMicroseconds()
	offset := OffsetMs(response.UnixSeconds, response.Microseconds, sysSec, sysUsec)

	epoch := response.UnixSeconds + rtt/2000
	if epoch < ntp.MinEpoch || epoch > ntp.MaxEpoch {
		return fail(fmt.Errorf("%w: corrected epoch %d out of range", ErrInvalidPacket, epoch))
	}

	if err := c.clock.Write(epoch, response.Microseconds); err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrClockWrite, err)
		out.Duration = c.monotonic.Since(start)
		logger.Error().Err(err).Msg("failed to set system clock")
		return out
	}
	if c.onTimeChange != nil {
		c.onTimeChange(sysSec, epoch)
	}

	out.Success = true
	out.Epoch = epoch
	out.Microseconds = response.Microseconds
	out.OffsetMs = offset
	out.RoundTripMs = rtt
	out.Stratum = response.Stratum
	out.Duration = c.monotonic.Since(start)

	c.stats.SyncCount++
	c.stats.TotalSyncDurationMs += uint64(out.Duration.Milliseconds())
	c.lastSyncTime = epoch
	c.lastOffsetMs = offset

	if server != nil {
		c.pool.record(server, true, offset, rtt)
		server.Stratum = response.Stratum
	}

	logger.Info().Int64("offset_ms", offset).Int64("rtt_ms", rtt).Uint8("stratum", response.Stratum).Msg("time synced")

	if c.onSync != nil {
		c.onSync(out)
	}
	if c.onRTCUpdate != nil {
		c.onRTCUpdate(epoch)
	}
	return out
}

// await polls the transport until a datagram arrives or deadline passes,
// running the yield hook between polls.
func (c *Client) await(buf []byte, deadline time.Time) (int, error) {
	for {
		remaining := deadline.Sub(c.monotonic.Now())
		if remaining < 0 {
			remaining = 0
		}

		n, err := c.transport.Receive(buf, remaining)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ErrWouldBlock) {
			return 0, fmt.Errorf("%w: receive: %v", ErrTransport, err)
		}
		if remaining == 0 {
			return 0, ErrTimeout
		}

		if c.yield != nil {
			c.yield()
		}
		c.monotonic.Sleep(c.pollInterval)
	}
}
