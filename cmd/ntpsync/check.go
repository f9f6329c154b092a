package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AndrewLester/ntpsync/internal/config"
	"github.com/AndrewLester/ntpsync/internal/sugar"
	"github.com/AndrewLester/ntpsync/internal/system"
	"github.com/AndrewLester/ntpsync/internal/ui"
	"github.com/AndrewLester/ntpsync/internal/udp"
	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	beevik "github.com/beevik/ntp"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var checkCommand = &cli.Command{
	Name:      "check",
	Usage:     "compare each server's offset with an independent NTP implementation, without touching the clock",
	ArgsUsage: "[server...]",
	Action:    runCheck,
}

const (
	padding  = 2
	maxWidth = 80
)

type checkResult struct {
	server    ntpsync.Server
	outcome   ntpsync.Outcome
	reference *beevik.Response
	refErr    error
}

// checker queries servers with a dry-run client and with beevik/ntp.
type checker struct {
	client  *ntpsync.Client
	timeout time.Duration
	query   func(host string, port int, timeout time.Duration) (*beevik.Response, error)
}

func newChecker(cfg config.Config, hosts []string) (*checker, error) {
	logger := log.Logger.With().Str("component", "check").Logger()
	client, err := configureClient(cfg, hosts, system.NewClock(true, logger))
	if err != nil {
		return nil, err
	}

	transport, err := udp.Listen(udp.Config{TOS: cfg.TOS, TTL: cfg.TTL}, logger)
	if err != nil {
		return nil, err
	}
	if err := client.BeginWithDefaults(transport); err != nil {
		transport.Close()
		return nil, err
	}

	return &checker{client: client, timeout: cfg.Timeout(), query: referenceQuery}, nil
}

func referenceQuery(host string, port int, timeout time.Duration) (*beevik.Response, error) {
	response, err := beevik.QueryWithOptions(host, beevik.QueryOptions{Timeout: timeout, Port: port})
	if err != nil {
		return nil, err
	}
	return response, response.Validate()
}

func (c *checker) check(server ntpsync.Server) checkResult {
	result := checkResult{server: server}
	result.outcome = c.client.SyncFromServer(server.Hostname, c.timeout)
	result.reference, result.refErr = c.query(server.Hostname, int(server.Port), c.timeout)
	return result
}

func runCheck(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	chk, err := newChecker(cfg, c.Args().Slice())
	if err != nil {
		return err
	}
	defer chk.client.End()

	m := checkModel{checker: chk, servers: chk.client.Servers()}
	m.resetProgress()

	result, err := sugar.RunProgramWithErrors(m)
	if err != nil {
		return err
	}
	fmt.Print(formatCheckResults(result.(checkModel).results))
	return nil
}

type checkModel struct {
	checker  *checker
	servers  []ntpsync.Server
	results  []checkResult
	progress progress.Model
	err      error
}

type checkResultMessage checkResult

func checkServerCommand(chk *checker, server ntpsync.Server) tea.Cmd {
	return func() tea.Msg {
		return checkResultMessage(chk.check(server))
	}
}

func (m *checkModel) resetProgress() {
	m.progress = progress.New(progress.WithScaledGradient("#68b1b1", "#6ea4ff"))
}

func (m checkModel) Init() tea.Cmd {
	if len(m.servers) == 0 {
		return tea.Quit
	}
	return checkServerCommand(m.checker, m.servers[0])
}

func (m checkModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - padding*2 - 4
		if m.progress.Width > maxWidth {
			m.progress.Width = maxWidth
		}
		return m, nil
	case checkResultMessage:
		m.results = append(m.results, checkResult(msg))
		if len(m.results) == len(m.servers) {
			return m, tea.Quit
		}
		return m, checkServerCommand(m.checker, m.servers[len(m.results)])
	default:
		return m, nil
	}
}

func (m checkModel) View() (s string) {
	if m.err != nil || len(m.results) == len(m.servers) {
		return
	}

	percentage := float64(len(m.results)) / float64(len(m.servers))
	s += ui.Title("ntpsync - Check") + "\n\n"
	s += "Querying " + m.servers[len(m.results)].Address() + "\n"
	s += m.progress.ViewAs(percentage) + "\n\n"
	s += ui.Help("q: exit") + "\n"
	return
}

func (m checkModel) GetError() error {
	return m.err
}

func formatCheckResults(results []checkResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %12s %12s %10s\n", "SERVER", "NTPSYNC", "REFERENCE", "DELTA")

	for _, result := range results {
		ours := "-"
		if result.outcome.Success {
			ours = strconv.FormatInt(result.outcome.OffsetMs, 10) + "ms"
		}
		reference := "-"
		if result.refErr == nil && result.reference != nil {
			reference = strconv.FormatInt(result.reference.ClockOffset.Milliseconds(), 10) + "ms"
		}
		delta := "-"
		if ours != "-" && reference != "-" {
			delta = strconv.FormatInt(result.outcome.OffsetMs-result.reference.ClockOffset.Milliseconds(), 10) + "ms"
		}
		fmt.Fprintf(&b, "%-30s %12s %12s %10s\n", result.server.Address(), ours, reference, delta)

		if !result.outcome.Success {
			fmt.Fprintf(&b, "  ntpsync: %s\n", result.outcome.Message())
		}
		if result.refErr != nil {
			fmt.Fprintf(&b, "  reference: %v\n", result.refErr)
		}
	}
	return b.String()
}
