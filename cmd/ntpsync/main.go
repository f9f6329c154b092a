package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const defaultSocket = "/var/run/ntpsync.sock"

var (
	configPath string
	socketPath string
	timeout    time.Duration
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	setupLogging()

	app := cli.NewApp()
	app.Name = "ntpsync"
	app.Usage = "synchronize the system clock against a pool of NTP servers"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to the ntp.conf style or YAML config file",
			EnvVars:     []string{"NTPSYNC_CONFIG"},
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "socket",
			Value:       defaultSocket,
			Usage:       "unix socket of the daemon status service",
			EnvVars:     []string{"NTPSYNC_SOCKET"},
			Destination: &socketPath,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "per-server response timeout, overrides the config file",
			Destination: &timeout,
		},
	}
	app.Commands = []*cli.Command{
		syncCommand,
		daemonCommand,
		statusCommand,
		checkCommand,
		serversCommand,
		tzCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("ntpsync failed")
		os.Exit(1)
	}
}

// setupLogging keeps the INFO=1 and DEBUG=1 switches; warnings and errors are
// always shown.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	level := zerolog.WarnLevel
	if os.Getenv("INFO") == "1" {
		level = zerolog.InfoLevel
	}
	if os.Getenv("DEBUG") == "1" {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}
