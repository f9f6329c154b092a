package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/AndrewLester/ntpsync/internal/config"
	"github.com/AndrewLester/ntpsync/internal/system"
	"github.com/AndrewLester/ntpsync/internal/udp"
	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/rs/zerolog/log"
)

// loadConfig reads the config file when one is given or the default path
// exists. Otherwise built-in defaults are used.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err != nil {
			cfg := config.Default()
			return applyOverrides(cfg), nil
		}
		path = config.DefaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	return applyOverrides(cfg), nil
}

func applyOverrides(cfg config.Config) config.Config {
	if timeout > 0 {
		cfg.TimeoutMs = int(timeout.Milliseconds())
	}
	if port := os.Getenv("NTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.LocalPort = p
		}
	}
	return cfg
}

// newClient builds a started client from cfg. The clock is written only
// when ENABLED=1 is set and the config does not ask for a dry run.
func newClient(cfg config.Config, hosts []string) (*ntpsync.Client, error) {
	logger := log.Logger.With().Str("component", "ntpsync").Logger()
	dryRun := cfg.DryRun || !system.WritesEnabled()

	client, err := configureClient(cfg, hosts, system.NewClock(dryRun, logger))
	if err != nil {
		return nil, err
	}
	client.OnRTCUpdate(rtcCallback(dryRun, logger))

	transport, err := udp.Listen(udp.Config{
		Host: os.Getenv("NTP_HOST"),
		Port: cfg.LocalPort,
		TOS:  cfg.TOS,
		TTL:  cfg.TTL,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := client.BeginWithDefaults(transport); err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to start client: %w", err)
	}

	if dryRun {
		logger.Warn().Msg("clock writes disabled, set ENABLED=1 to step the system clock")
	}
	return client, nil
}

// configureClient applies the timezone, servers and auto-sync settings of cfg
// to a client that has not been started. hosts replaces the configured
// servers when non-empty.
func configureClient(cfg config.Config, hosts []string, clock ntpsync.SystemClock) (*ntpsync.Client, error) {
	logger := log.Logger.With().Str("component", "ntpsync").Logger()
	client := ntpsync.New(clock, ntpsync.WithLogger(logger))

	rule, err := cfg.Rule()
	if err != nil {
		return nil, err
	}
	if err := client.SetTimeZone(rule); err != nil {
		return nil, err
	}

	if len(hosts) > 0 {
		for _, host := range hosts {
			if err := client.AddServer(host, 0); err != nil {
				return nil, err
			}
		}
	} else {
		for _, server := range cfg.Servers {
			if err := client.AddServer(server.Host, server.Port); err != nil {
				return nil, err
			}
		}
	}

	if cfg.AutoSync > 0 {
		client.SetAutoSync(true, cfg.AutoSync)
	}
	return client, nil
}
