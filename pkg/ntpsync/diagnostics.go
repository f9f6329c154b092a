package ntpsync

import (
	"fmt"
	"strings"

	"github.com/AndrewLester/ntpsync/pkg/tz"
)

type Statistics struct {
	SyncCount           uint32
	FailureCount        uint32
	TotalSyncDurationMs uint64
}

// AverageSyncTime is the arithmetic mean duration of successful syncs in
// milliseconds.
func (s Statistics) AverageSyncTime() float64 {
	if s.SyncCount == 0 {
		return 0
	}
	return float64(s.TotalSyncDurationMs) / float64(s.SyncCount)
}

func (c *Client) Statistics() Statistics {
	return c.stats
}

func (c *Client) AverageSyncTime() float64 {
	return c.stats.AverageSyncTime()
}

func (c *Client) LastOffsetMs() int64 {
	return c.lastOffsetMs
}

// ResetStatistics zeroes the counters and every server's health, marking all
// servers reachable again. The last offset is kept.
func (c *Client) ResetStatistics() {
	c.stats = Statistics{}
	c.pool.resetStatistics()
	c.logger.Info().Msg("statistics reset")
}

// Diagnostics is a point-in-time snapshot of a client. It holds only plain
// values so it can cross an RPC boundary.
type Diagnostics struct {
	Initialized      bool
	AutoSync         bool
	AutoSyncInterval uint32
	CurrentTime      string
	Epoch            int64
	TimeZone         tz.Rule
	DSTActive        bool
	LastSyncTime     int64
	NextSyncTime     int64 /* 0 when unscheduled */
	LastOffsetMs     int64
	Statistics       Statistics
	Servers          []Server
}

func (c *Client) Diagnostics() Diagnostics {
	next, _ := c.NextSyncTime()
	return Diagnostics{
		Initialized:      c.initialized,
		AutoSync:         c.autoSync,
		AutoSyncInterval: c.syncInterval,
		CurrentTime:      c.FormattedDateTime(),
		Epoch:            c.EpochTime(),
		TimeZone:         c.rule,
		DSTActive:        c.IsDST(),
		LastSyncTime:     c.lastSyncTime,
		NextSyncTime:     next,
		LastOffsetMs:     c.lastOffsetMs,
		Statistics:       c.stats,
		Servers:          c.pool.List(),
	}
}

// Dump renders the diagnostics as a human readable report.
func (c *Client) Dump() string {
	return c.Diagnostics().String()
}

func (d Diagnostics) String() string {
	var b strings.Builder

	status := "Not initialized"
	if d.Initialized {
		status = "Initialized"
	}
	autoSync := "OFF"
	if d.AutoSync {
		autoSync = "ON"
	}
	dst := "Inactive"
	if d.DSTActive {
		dst = "Active"
	}
	lastSync := "Never"
	if d.LastSyncTime != 0 {
		lastSync = tz.Format(d.LastSyncTime, "2006-01-02 15:04:05") + " UTC"
	}

	fmt.Fprintln(&b, "=== NTP Client Diagnostics ===")
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Auto-sync: %s (interval: %ds)\n", autoSync, d.AutoSyncInterval)
	fmt.Fprintf(&b, "Current time: %s\n", d.CurrentTime)
	fmt.Fprintf(&b, "Time zone: %s\n", d.TimeZone)
	fmt.Fprintf(&b, "DST: %s\n", dst)
	fmt.Fprintf(&b, "Last sync: %s\n", lastSync)
	fmt.Fprintf(&b, "Last offset: %dms\n", d.LastOffsetMs)
	fmt.Fprintf(&b, "Sync count: %d (failures: %d)\n", d.Statistics.SyncCount, d.Statistics.FailureCount)
	fmt.Fprintf(&b, "Average sync time: %.1fms\n", d.Statistics.AverageSyncTime())

	fmt.Fprintf(&b, "\nServers (%d):\n", len(d.Servers))
	for _, server := range d.Servers {
		state := "OK"
		if !server.Reachable {
			state = "UNREACHABLE"
		}
		fmt.Fprintf(&b, "  %s - Stratum %d, RTT %.0fms, Offset %.0fms, %s\n",
			server.Address(), server.Stratum, server.AverageRTTMs, server.AverageOffsetMs, state)
	}
	fmt.Fprintln(&b, "==============================")

	return b.String()
}

// State is the part of a client worth keeping across restarts.
type State struct {
	Servers      []Server
	LastSyncTime int64
	LastOffsetMs int64
	Statistics   Statistics
}

func (c *Client) ExportState() State {
	return State{
		Servers:      c.pool.List(),
		LastSyncTime: c.lastSyncTime,
		LastOffsetMs: c.lastOffsetMs,
		Statistics:   c.stats,
	}
}

// ImportState restores health for servers already in the pool and the client
// counters. Servers the pool does not know are ignored.
func (c *Client) ImportState(state State) {
	for _, saved := range state.Servers {
		for _, server := range c.pool.servers {
			if server.Hostname == saved.Hostname && server.Port == saved.Port {
				*server = saved
			}
		}
	}
	c.lastSyncTime = state.LastSyncTime
	c.lastOffsetMs = state.LastOffsetMs
	c.stats = state.Statistics
}
