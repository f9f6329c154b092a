package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/AndrewLester/ntpsync/internal/rpc"
	"github.com/AndrewLester/ntpsync/internal/sugar"
	"github.com/AndrewLester/ntpsync/internal/ui"
	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/AndrewLester/ntpsync/pkg/tz"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
)

const fetchInfoPeriod = time.Second * 5

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "show the running daemon's servers and statistics",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "dump",
			Usage: "print the diagnostics report once instead of the live view",
		},
	},
	Action: runStatus,
}

func runStatus(c *cli.Context) error {
	if c.Bool("dump") {
		conn, err := rpc.Dial(socketPath)
		if err != nil {
			return err
		}
		defer conn.Close()

		diagnostics, err := conn.FetchDiagnostics()
		if err != nil {
			return err
		}
		fmt.Print(diagnostics.String())
		return nil
	}

	m := statusModel{socket: socketPath, table: setupTable()}
	_, err := sugar.RunProgramWithErrors(m)
	return err
}

type statusModel struct {
	socket string
	conn   *rpc.Conn

	table       table.Model
	diagnostics ntpsync.Diagnostics
	status      string
	err         error
}

type dialSocketMessage *rpc.Conn
type fetchInfoMessage ntpsync.Diagnostics
type syncMessage rpc.SyncReply
type statusErrorMessage struct{ err error }
type tickMsg time.Time

func dialSocketCommand(socket string) tea.Cmd {
	return func() tea.Msg {
		conn, err := rpc.Dial(socket)
		if err != nil {
			return statusErrorMessage{err}
		}
		return dialSocketMessage(conn)
	}
}

func fetchInfoCommand(conn *rpc.Conn) tea.Cmd {
	return func() tea.Msg {
		diagnostics, err := conn.FetchDiagnostics()
		if err != nil {
			return statusErrorMessage{fmt.Errorf("error getting info from daemon: %w", err)}
		}
		return fetchInfoMessage(diagnostics)
	}
}

func forceSyncCommand(conn *rpc.Conn) tea.Cmd {
	return func() tea.Msg {
		reply, err := conn.ForceSync(ntpsync.DefaultTimeout)
		if err != nil {
			return statusErrorMessage{err}
		}
		return syncMessage(reply)
	}
}

func resetCommand(conn *rpc.Conn) tea.Cmd {
	return func() tea.Msg {
		if err := conn.ResetStatistics(); err != nil {
			return statusErrorMessage{err}
		}
		return fetchInfoCommand(conn)()
	}
}

func stopDaemonCommand() tea.Cmd {
	return func() tea.Msg {
		if err := killDaemon(); err != nil {
			return statusErrorMessage{err}
		}
		return tea.Quit()
	}
}

func tickCommand(duration time.Duration) tea.Cmd {
	return tea.Tick(duration, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m statusModel) Init() tea.Cmd {
	return dialSocketCommand(m.socket)
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if m.table.Focused() {
				m.table.Blur()
			} else {
				m.table.Focus()
			}
		case "f":
			if m.conn != nil {
				m.status = "Syncing..."
				return m, forceSyncCommand(m.conn)
			}
		case "r":
			if m.conn != nil {
				m.status = "Statistics reset"
				return m, resetCommand(m.conn)
			}
		case "s":
			m.status = "Stopping " + daemonName
			return m, stopDaemonCommand()
		case "ctrl+c", "q":
			return m, tea.Quit
		}

		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case dialSocketMessage:
		m.conn = msg
		return m, tickCommand(0)
	case fetchInfoMessage:
		m.diagnostics = ntpsync.Diagnostics(msg)
		m.table.SetRows(serverRows(m.diagnostics.Servers))
		return m, nil
	case syncMessage:
		if msg.Success {
			m.status = "Synced with " + msg.Server + " " + ui.Offset(msg.OffsetMs)
		} else {
			m.status = ui.Bad("Sync failed: " + msg.Error)
		}
		return m, fetchInfoCommand(m.conn)
	case statusErrorMessage:
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		return m, tea.Batch(tickCommand(fetchInfoPeriod), fetchInfoCommand(m.conn))
	default:
		return m, nil
	}
}

func serverRows(servers []ntpsync.Server) []table.Row {
	rows := []table.Row{}
	for _, server := range servers {
		lastSuccess := "never"
		if server.LastSuccessTime != 0 {
			lastSuccess = tz.Format(server.LastSuccessTime, "15:04:05")
		}
		rows = append(rows, table.Row{
			server.Address(),
			strconv.Itoa(int(server.Stratum)),
			strconv.FormatFloat(server.AverageRTTMs, 'f', 1, 64),
			strconv.FormatFloat(server.AverageOffsetMs, 'f', 1, 64),
			strconv.FormatUint(uint64(server.FailureCount), 10),
			lastSuccess,
			reachability(server.Reachable),
		})
	}
	return rows
}

// reachability is left unstyled so the table can measure cell widths.
func reachability(ok bool) string {
	if ok {
		return "OK"
	}
	return "UNREACHABLE"
}

func (m statusModel) View() (s string) {
	if m.err != nil {
		return
	}

	d := m.diagnostics
	s += ui.Title("ntpsync") + "\n\n"
	s += fmt.Sprintf("Time: %s  Zone: %s  DST: %v\n", d.CurrentTime, d.TimeZone, d.DSTActive)
	s += fmt.Sprintf("Last offset: %s  Syncs: %d  Failures: %d  Avg: %.1fms\n",
		ui.Offset(d.LastOffsetMs), d.Statistics.SyncCount, d.Statistics.FailureCount, d.Statistics.AverageSyncTime())
	if d.NextSyncTime != 0 {
		s += fmt.Sprintf("Next sync: %s UTC\n", tz.Format(d.NextSyncTime, "2006-01-02 15:04:05"))
	}
	s += "\n" + ui.TableBase(m.table.View()) + "\n\n"
	if m.status != "" {
		s += m.status + "\n"
	}
	s += ui.Help("q: exit, f: force sync, r: reset statistics, s: stop daemon") + "\n"
	return
}

func (m statusModel) GetError() error {
	return m.err
}

func setupTable() table.Model {
	columns := []table.Column{
		{Title: "Server", Width: 28},
		{Title: "Stratum", Width: 8},
		{Title: "RTT (ms)", Width: 10},
		{Title: "Offset (ms)", Width: 12},
		{Title: "Failures", Width: 9},
		{Title: "Last OK", Width: 10},
		{Title: "Status", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(ntpsync.MaxServers),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ui.TableGray).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}
