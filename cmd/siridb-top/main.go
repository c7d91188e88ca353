// Command siridb-top is a terminal dashboard that connects to a SiriDB
// cluster and redraws the state of every endpoint on an interval. It
// follows sql-tap's Bubble Tea model: a tea.Model holding connection
// state, a tea.Cmd that re-polls on a tick, and a lipgloss-styled view.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/siridb/go-siridb-connector"
	"github.com/siridb/go-siridb-connector/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/siridb-gateway.yaml", "path to configuration file")
	flag.Parse()

	cluster, dbname, err := connectFromConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "siridb-top:", err)
		os.Exit(1)
	}
	defer cluster.Close()

	p := tea.NewProgram(newModel(cluster, dbname))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "siridb-top:", err)
		os.Exit(1)
	}
}

type endpointRow struct {
	addr      string
	weight    int
	isBackup  bool
	connected bool
	available bool
}

type tickMsg time.Time

type snapshotMsg struct {
	rows []endpointRow
}

type model struct {
	cluster *siridb.Cluster
	dbname  string
	rows    []endpointRow
	width   int
	height  int
}

func newModel(cluster *siridb.Cluster, dbname string) model {
	return model{cluster: cluster, dbname: dbname}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(poll(m.cluster), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func poll(cluster *siridb.Cluster) tea.Cmd {
	return func() tea.Msg {
		eps := cluster.Endpoints()
		rows := make([]endpointRow, 0, len(eps))
		for _, ep := range eps {
			rows = append(rows, endpointRow{
				addr:      ep.Addr(),
				weight:    ep.Weight,
				isBackup:  ep.IsBackup,
				connected: ep.Connected(),
				available: ep.Available(),
			})
		}
		return snapshotMsg{rows: rows}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.rows = msg.rows
		return m, nil

	case tickMsg:
		return m, tea.Batch(poll(m.cluster), tick())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}
	return m, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  db=%s\n\n", headerStyle.Render("siridb-top"), m.dbname)
	fmt.Fprintf(&b, "%-22s %-7s %-7s %-10s %-10s\n", "ENDPOINT", "WEIGHT", "BACKUP", "CONNECTED", "AVAILABLE")

	for _, r := range m.rows {
		connected := downStyle.Render("no")
		if r.connected {
			connected = upStyle.Render("yes")
		}
		available := downStyle.Render("no")
		if r.available {
			available = upStyle.Render("yes")
		}
		backup := "no"
		if r.isBackup {
			backup = "yes"
		}
		fmt.Fprintf(&b, "%-22s %-7d %-7s %-19s %-19s\n", r.addr, r.weight, backup, connected, available)
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q to quit"))
	return b.String()
}

func connectFromConfig(path string) (*siridb.Cluster, string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}

	hostlist := make([]siridb.EndpointSpec, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		hostlist = append(hostlist, siridb.EndpointSpec{
			Host: ep.Host, Port: ep.Port, Weight: ep.Weight, IsBackup: ep.IsBackup,
		})
	}

	cluster, err := siridb.NewCluster(siridb.ClusterConfig{
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		Hostlist: hostlist,
	})
	if err != nil {
		return nil, "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cluster.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "siridb-top: warning: initial connect failed, retrying in background:", err)
	}
	return cluster, cfg.DBName, nil
}
