package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/AndrewLester/ntpsync/internal/rpc"
	"github.com/AndrewLester/ntpsync/internal/store"
	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sevlyar/go-daemon"
	"github.com/urfave/cli/v2"
)

const daemonName = "ntpsyncd"

var daemonCtx = &daemon.Context{
	PidFileName: fmt.Sprintf("/var/run/%s.pid", daemonName),
	PidFilePerm: 0644,
	LogFileName: fmt.Sprintf("/var/log/%s.log", daemonName),
	LogFilePerm: 0640,
	WorkDir:     "./",
	Umask:       027,
	Args:        append([]string{daemonName}, os.Args[1:]...),
}

var daemonCommand = &cli.Command{
	Name:  "daemon",
	Usage: "keep the clock synced in the background",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "foreground",
			Usage: "don't detach from the terminal",
		},
		&cli.BoolFlag{
			Name:  "stop",
			Usage: "stop a running daemon",
		},
	},
	Action: runDaemon,
}

func killDaemon() error {
	d, err := daemonCtx.Search()
	if err != nil {
		return fmt.Errorf("error finding daemon: %w", err)
	}

	if err := syscall.Kill(d.Pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("couldn't stop %s: %w", daemonName, err)
	}
	return nil
}

func runDaemon(c *cli.Context) error {
	if c.Bool("stop") {
		if err := killDaemon(); err != nil {
			return err
		}
		fmt.Println("Successfully stopped ntpsync daemon.")
		return nil
	}

	if !c.Bool("foreground") {
		d, err := daemonCtx.Reborn()
		if err != nil {
			if errors.Is(err, daemon.ErrWouldBlock) {
				return fmt.Errorf("%s is already running", daemonName)
			}
			return fmt.Errorf("unable to run: %w", err)
		}
		if d != nil {
			fmt.Printf("Daemon process (%s, %d) started successfully.\n", daemonName, d.Pid)
			return nil
		}
		defer daemonCtx.Release()

		log.Info().Strs("args", os.Args).Msg("daemon started")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newClient(cfg, nil)
	if err != nil {
		return err
	}
	defer client.End()
	if !client.AutoSyncEnabled() {
		client.SetAutoSync(true, ntpsync.DefaultSyncInterval)
	}

	if state, found, err := store.LoadFile(cfg.StateFile); err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable state")
	} else if found {
		client.ImportState(state)
	}

	loop := &daemonLoop{
		client: client,
		clock:  clockwork.NewRealClock(),
		lock:   flock.New(cfg.StateFile + ".lock"),
		save: func(state ntpsync.State) error {
			return store.SaveFile(cfg.StateFile, state)
		},
		logger: log.Logger.With().Str("component", "daemon").Logger(),
	}

	server := &rpc.Server{
		Socket: socketPath,
		Client: client,
		Lock:   &loop.mu,
		Logger: loop.logger,
	}
	l, err := server.Listen()
	if err != nil {
		return err
	}
	defer l.Close()
	go server.Serve(l)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return loop.run(ctx)
}

// tryLocker is the part of *flock.Flock the loop needs.
type tryLocker interface {
	TryLock() (bool, error)
	Unlock() error
}

// daemonLoop drives Client.Tick once a second. mu guards the client against
// the RPC goroutine.
type daemonLoop struct {
	mu     sync.Mutex
	client *ntpsync.Client
	clock  clockwork.Clock
	lock   tryLocker
	save   func(ntpsync.State) error
	logger zerolog.Logger
}

func (d *daemonLoop) run(ctx context.Context) error {
	ticker := d.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.save(d.client.ExportState())
		case <-ticker.Chan():
			d.tick()
		}
	}
}

func (d *daemonLoop) tick() {
	locked, err := d.lock.TryLock()
	if err != nil || !locked {
		d.logger.Debug().Err(err).Msg("clock lock busy, skipping tick")
		return
	}
	defer d.lock.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	out, ran := d.client.Tick()
	if !ran {
		return
	}
	if !out.Success {
		d.logger.Warn().Err(out.Err).Msg("auto-sync failed")
	}
	if err := d.save(d.client.ExportState()); err != nil {
		d.logger.Warn().Err(err).Msg("failed to save state")
	}
}
