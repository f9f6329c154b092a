// Package udp is the datagram transport used by the sync client.
package udp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

// DefaultPollSlice bounds a single Receive so the client's yield hook keeps
// running during long waits.
const DefaultPollSlice = 10 * time.Millisecond

type Config struct {
	Host      string // local address, empty for any
	Port      int    // local port, 0 for ephemeral
	TOS       int    // IP type-of-service byte, 0 leaves the default
	TTL       int    // IP TTL, 0 leaves the default
	PollSlice time.Duration
}

// Transport is an IPv4 UDP socket that only accepts replies from the peer it
// last sent to.
type Transport struct {
	conn      *net.UDPConn
	peer      *net.UDPAddr
	pollSlice time.Duration
	logger    zerolog.Logger
}

func Listen(config Config, logger zerolog.Logger) (*Transport, error) {
	local := &net.UDPAddr{IP: net.ParseIP(config.Host), Port: config.Port}
	conn, err := net.ListenUDP("udp4", local)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", local, err)
	}

	pconn := ipv4.NewConn(conn)
	if config.TOS != 0 {
		if err := pconn.SetTOS(config.TOS); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set tos %d: %w", config.TOS, err)
		}
	}
	if config.TTL != 0 {
		if err := pconn.SetTTL(config.TTL); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set ttl %d: %w", config.TTL, err)
		}
	}

	pollSlice := config.PollSlice
	if pollSlice <= 0 {
		pollSlice = DefaultPollSlice
	}

	logger.Debug().Str("local", conn.LocalAddr().String()).Msg("udp transport listening")
	return &Transport{conn: conn, pollSlice: pollSlice, logger: logger}, nil
}

func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *Transport) Send(address string, packet []byte) error {
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return err
	}

	t.peer = addr
	_, err = t.conn.WriteToUDP(packet, addr)
	return err
}

// Receive waits at most min(remaining, poll slice) for a datagram from the
// current peer. Datagrams from other sources are dropped.
func (t *Transport) Receive(buf []byte, remaining time.Duration) (int, error) {
	wait := t.pollSlice
	if remaining < wait {
		wait = remaining
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, err
	}

	n, from, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, ntpsync.ErrWouldBlock
		}
		return 0, err
	}

	if t.peer == nil || !from.IP.Equal(t.peer.IP) || from.Port != t.peer.Port {
		t.logger.Debug().Str("from", from.String()).Msg("dropping datagram from unexpected source")
		return 0, ntpsync.ErrWouldBlock
	}
	return n, nil
}

func (t *Transport) Close() error {
	return t.conn.Close()
}
