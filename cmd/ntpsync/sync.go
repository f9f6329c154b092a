package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AndrewLester/ntpsync/internal/store"
	"github.com/AndrewLester/ntpsync/internal/ui"
	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var errLocked = errors.New("another ntpsync process holds the clock lock")

var syncCommand = &cli.Command{
	Name:  "sync",
	Usage: "query the pool once and step the system clock",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "server to query instead of the configured pool, may be repeated",
		},
	},
	Action: runSync,
}

// clockLock serializes clock writes between ntpsync processes.
func clockLock(stateFile string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(stateFile), 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(stateFile + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, errLocked
	}
	return lock, nil
}

func runSync(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lock, err := clockLock(cfg.StateFile)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	client, err := newClient(cfg, c.StringSlice("server"))
	if err != nil {
		return err
	}
	defer client.End()

	if state, found, err := store.LoadFile(cfg.StateFile); err != nil {
		log.Warn().Err(err).Msg("continuing without saved state")
	} else if found {
		client.ImportState(state)
	}

	out := client.SyncTime(cfg.Timeout())

	if err := store.SaveFile(cfg.StateFile, client.ExportState()); err != nil {
		log.Warn().Err(err).Msg("failed to save state")
	}

	if !out.Success {
		return out.Err
	}
	fmt.Println(formatOutcome(out))
	return nil
}

func formatOutcome(out ntpsync.Outcome) string {
	return fmt.Sprintf("%s +/- %dms %s stratum %d", ui.Offset(out.OffsetMs), out.RoundTripMs/2, out.Server, out.Stratum)
}
