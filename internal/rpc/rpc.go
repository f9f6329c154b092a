// Package rpc exposes a running daemon's client over a unix socket.
package rpc

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"sync"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/rs/zerolog"
)

const serviceName = "NTPSync"

// Client is the part of *ntpsync.Client served over RPC.
type Client interface {
	Diagnostics() ntpsync.Diagnostics
	SyncTime(timeout time.Duration) ntpsync.Outcome
	ResetStatistics()
}

type SyncReply struct {
	Success     bool
	Server      string
	Epoch       int64
	OffsetMs    int64
	RoundTripMs int64
	Stratum     uint8
	Error       string
}

// Server serializes every call through Lock, which the daemon also holds
// while it drives the client.
type Server struct {
	Socket string
	Client Client
	Lock   sync.Locker
	Logger zerolog.Logger
}

// Listen binds the socket, replacing a stale one.
func (s *Server) Listen() (net.Listener, error) {
	err := os.Remove(s.Socket)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("bind error: %w", err)
	}

	l, err := net.Listen("unix", s.Socket)
	if err != nil {
		return nil, fmt.Errorf("listen error: %w", err)
	}
	s.Logger.Info().Str("socket", s.Socket).Msg("RPC listening")
	return l, nil
}

// Serve accepts connections until l is closed.
func (s *Server) Serve(l net.Listener) error {
	server := rpc.NewServer()
	if err := server.RegisterName(serviceName, &service{s}); err != nil {
		return err
	}
	server.Accept(l)
	return nil
}

type service struct {
	s *Server
}

func (r *service) FetchDiagnostics(args int, reply *ntpsync.Diagnostics) error {
	r.s.Lock.Lock()
	defer r.s.Lock.Unlock()

	*reply = r.s.Client.Diagnostics()
	r.s.Logger.Debug().Int("servers", len(reply.Servers)).Msg("fetched diagnostics")
	return nil
}

func (r *service) ForceSync(timeout time.Duration, reply *SyncReply) error {
	r.s.Lock.Lock()
	defer r.s.Lock.Unlock()

	out := r.s.Client.SyncTime(timeout)
	*reply = SyncReply{
		Success:     out.Success,
		Server:      out.Server,
		Epoch:       out.Epoch,
		OffsetMs:    out.OffsetMs,
		RoundTripMs: out.RoundTripMs,
		Stratum:     out.Stratum,
		Error:       out.Message(),
	}
	return nil
}

func (r *service) ResetStatistics(args int, reply *bool) error {
	r.s.Lock.Lock()
	defer r.s.Lock.Unlock()

	r.s.Client.ResetStatistics()
	*reply = true
	return nil
}

// Conn is the status-side view of a daemon.
type Conn struct {
	client *rpc.Client
}

func Dial(socket string) (*Conn, error) {
	client, err := rpc.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("error connecting to ntpsync daemon: %w", err)
	}
	return &Conn{client: client}, nil
}

func (c *Conn) FetchDiagnostics() (ntpsync.Diagnostics, error) {
	var reply ntpsync.Diagnostics
	err := c.client.Call(serviceName+".FetchDiagnostics", 0, &reply)
	return reply, err
}

func (c *Conn) ForceSync(timeout time.Duration) (SyncReply, error) {
	var reply SyncReply
	err := c.client.Call(serviceName+".ForceSync", timeout, &reply)
	return reply, err
}

func (c *Conn) ResetStatistics() error {
	var reply bool
	return c.client.Call(serviceName+".ResetStatistics", 0, &reply)
}

func (c *Conn) Close() error {
	return c.client.Close()
}
