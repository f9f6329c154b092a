package main

import (
	"fmt"
	"strings"

	"github.com/AndrewLester/ntpsync/internal/config"
	"github.com/AndrewLester/ntpsync/internal/rpc"
	"github.com/AndrewLester/ntpsync/internal/store"
	"github.com/AndrewLester/ntpsync/internal/system"
	"github.com/AndrewLester/ntpsync/internal/ui"
	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var serversCommand = &cli.Command{
	Name:  "servers",
	Usage: "list the configured servers with their saved health",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "clear saved failures and averages, marking every server reachable",
		},
	},
	Action: runServers,
}

// daemonConn is the part of *rpc.Conn the servers command needs.
type daemonConn interface {
	FetchDiagnostics() (ntpsync.Diagnostics, error)
	ResetStatistics() error
}

// daemonServers reads the pool of a running daemon, resetting it first when
// asked.
func daemonServers(conn daemonConn, reset bool) ([]ntpsync.Server, error) {
	if reset {
		if err := conn.ResetStatistics(); err != nil {
			return nil, fmt.Errorf("error resetting daemon statistics: %w", err)
		}
	}
	diagnostics, err := conn.FetchDiagnostics()
	if err != nil {
		return nil, fmt.Errorf("error getting info from daemon: %w", err)
	}
	return diagnostics.Servers, nil
}

// savedServers builds the configured pool and applies the saved health.
func savedServers(cfg config.Config, reset bool) ([]ntpsync.Server, error) {
	client, err := configureClient(cfg, nil, system.NewClock(true, log.Logger))
	if err != nil {
		return nil, err
	}
	if len(client.Servers()) == 0 {
		for _, host := range ntpsync.DefaultServers {
			if err := client.AddServer(host, 0); err != nil {
				return nil, err
			}
		}
	}

	state, found, err := store.LoadFile(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	if found {
		client.ImportState(state)
	}

	if reset {
		client.ResetStatistics()
		if err := store.SaveFile(cfg.StateFile, client.ExportState()); err != nil {
			return nil, err
		}
	}
	return client.Servers(), nil
}

func runServers(c *cli.Context) error {
	var servers []ntpsync.Server

	if conn, err := rpc.Dial(socketPath); err == nil {
		defer conn.Close()
		if servers, err = daemonServers(conn, c.Bool("reset")); err != nil {
			return err
		}
	} else {
		log.Debug().Err(err).Msg("no daemon running, reading saved state")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servers, err = savedServers(cfg, c.Bool("reset")); err != nil {
			return err
		}
	}

	fmt.Print(formatServers(servers))
	if best, ok := ntpsync.SelectBest(servers); ok {
		fmt.Println(ui.Help("best: " + best.Address()))
	}
	return nil
}

func formatServers(servers []ntpsync.Server) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %7s %9s %11s %8s  %s\n", "SERVER", "STRATUM", "RTT", "OFFSET", "FAILURES", "STATUS")
	for _, server := range servers {
		fmt.Fprintf(&b, "%-30s %7d %7.1fms %9.1fms %8d  %s\n",
			server.Address(), server.Stratum, server.AverageRTTMs, server.AverageOffsetMs,
			server.FailureCount, ui.Reachable(server.Reachable))
	}
	return b.String()
}
