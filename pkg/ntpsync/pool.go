package ntpsync

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/ntp"
	"github.com/rs/zerolog"
)

const (
	MaxServers             = 10
	MaxConsecutiveFailures = 3   // failures before a server is marked unreachable
	OffsetFilterAlpha      = 0.1 // EMA weight of a new sample
	UnknownStratum         = 255
)

var DefaultServers = []string{
	"pool.ntp.org",
	"time.nist.gov",
	"time.google.com",
	"time.cloudflare.com",
}

// Server is a pool entry together with its health statistics.
type Server struct {
	Hostname        string
	Port            uint16
	LastSuccessTime int64   /* epoch of last successful sync */
	FailureCount    uint32  /* consecutive failures */
	AverageOffsetMs float64 /* EMA of offset */
	AverageRTTMs    float64 /* EMA of round trip */
	Samples         uint32  /* successes since the averages were reset */
	Reachable       bool
	Stratum         uint8
}

func (s Server) Address() string {
	return net.JoinHostPort(s.Hostname, strconv.Itoa(int(s.Port)))
}

// Score ranks servers for selection; lower is better. Stratum dominates,
// then recent failures, then round-trip time.
func (s Server) Score() float64 {
	return float64(s.Stratum)*1000 + float64(s.FailureCount)*100 + s.AverageRTTMs
}

// Pool is the bounded, insertion-ordered list of known servers. It is not
// safe for concurrent use.
type Pool struct {
	servers []*Server
	logger  zerolog.Logger
	now     func() int64
}

func NewPool(logger zerolog.Logger, now func() int64) *Pool {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Pool{logger: logger, now: now}
}

// Add appends a server. Adding an existing (hostname, port) pair succeeds
// without creating a duplicate.
func (p *Pool) Add(hostname string, port uint16) error {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return fmt.Errorf("%w: empty hostname", ErrInvalidServer)
	}
	if port == 0 {
		port = ntp.Port
	}

	for _, server := range p.servers {
		if server.Hostname == hostname && server.Port == port {
			p.logger.Debug().Str("server", server.Address()).Msg("server already exists, skipping")
			return nil
		}
	}

	if len(p.servers) >= MaxServers {
		p.logger.Error().Int("max", MaxServers).Msg("maximum number of servers reached")
		return fmt.Errorf("%w: limit is %d", ErrPoolFull, MaxServers)
	}

	p.servers = append(p.servers, &Server{
		Hostname:  hostname,
		Port:      port,
		Reachable: true,
		Stratum:   UnknownStratum,
	})
	p.logger.Info().Str("server", net.JoinHostPort(hostname, strconv.Itoa(int(port)))).Msg("added NTP server")
	return nil
}

// Remove deletes every entry with the given hostname.
func (p *Pool) Remove(hostname string) error {
	removed := false
	for i := len(p.servers) - 1; i >= 0; i-- {
		if p.servers[i].Hostname == hostname {
			RemoveIndex(&p.servers, i)
			removed = true
		}
	}

	if !removed {
		p.logger.Warn().Str("server", hostname).Msg("server not found")
		return fmt.Errorf("%w: %s", ErrServerNotFound, hostname)
	}
	p.logger.Info().Str("server", hostname).Msg("removed NTP server")
	return nil
}

func (p *Pool) Clear() {
	p.servers = nil
	p.logger.Info().Msg("cleared all NTP servers")
}

func (p *Pool) Len() int {
	return len(p.servers)
}

// List returns a copy of the pool in insertion order.
func (p *Pool) List() []Server {
	servers := make([]Server, len(p.servers))
	for i, server := range p.servers {
		servers[i] = *server
	}
	return servers
}

// Best returns the reachable server with the lowest score. Ties resolve to
// the earliest inserted server.
func (p *Pool) Best() (Server, bool) {
	best := p.best()
	if best == nil {
		return Server{}, false
	}
	return *best, true
}

// SelectBest applies the Best rule to a list of servers, such as one read
// back from a daemon or a saved state.
func SelectBest(servers []Server) (Server, bool) {
	pool := Pool{servers: make([]*Server, len(servers))}
	for i := range servers {
		server := servers[i]
		pool.servers[i] = &server
	}
	return pool.Best()
}

func (p *Pool) best() *Server {
	var best *Server
	bestScore := math.Inf(1)

	for _, server := range p.servers {
		if !server.Reachable {
			continue
		}
		if score := server.Score(); score < bestScore {
			bestScore = score
			best = server
		}
	}
	return best
}

func (p *Pool) find(hostname string) *Server {
	for _, server := range p.servers {
		if server.Hostname == hostname {
			return server
		}
	}
	return nil
}

// RecordOutcome folds one sync attempt into the first server with hostname.
func (p *Pool) RecordOutcome(hostname string, success bool, offsetMs, rttMs int64) error {
	server := p.find(hostname)
	if server == nil {
		return fmt.Errorf("%w: %s", ErrServerNotFound, hostname)
	}
	p.record(server, success, offsetMs, rttMs)
	return nil
}

func (p *Pool) record(server *Server, success bool, offsetMs, rttMs int64) {
	if !success {
		server.FailureCount++
		if server.FailureCount >= MaxConsecutiveFailures && server.Reachable {
			server.Reachable = false
			p.logger.Warn().Str("server", server.Hostname).Uint32("failures", server.FailureCount).Msg("server marked as unreachable")
		}
		return
	}

	server.LastSuccessTime = p.now()
	server.FailureCount = 0

	// only ResetStatistics restores Reachable
	if server.Samples == 0 {
		server.AverageOffsetMs = float64(offsetMs)
		server.AverageRTTMs = float64(rttMs)
	} else {
		server.AverageOffsetMs = (1-OffsetFilterAlpha)*server.AverageOffsetMs + OffsetFilterAlpha*float64(offsetMs)
		server.AverageRTTMs = (1-OffsetFilterAlpha)*server.AverageRTTMs + OffsetFilterAlpha*float64(rttMs)
	}
	server.Samples++
}

func (p *Pool) resetStatistics() {
	for _, server := range p.servers {
		server.FailureCount = 0
		server.AverageOffsetMs = 0
		server.AverageRTTMs = 0
		server.Samples = 0
		server.Reachable = true
	}
}
