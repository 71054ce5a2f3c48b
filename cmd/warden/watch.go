// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/gate"
	"github.com/warden-foundation/warden/lib/apiclient"
	"github.com/warden-foundation/warden/lib/rights"
)

func watchCommand() *cli.Command {
	var conn connection
	var interval time.Duration
	return &cli.Command{
		Name:    "watch",
		Summary: "Live node status board",
		Description: `Open a terminal status board for one node: consensus state,
applied index, graph digest, and the full edge list, refreshed on an
interval. Point it at different nodes in two terminals to watch a
cluster converge after a partition heals.

Press q to quit.`,
		Usage: "warden watch [--interval <duration>]",
		Examples: []cli.Example{
			{Command: "warden watch --server 10.0.0.5:7420"},
			{Command: "warden watch --interval 500ms"},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("watch")
			flags.DurationVar(&interval, "interval", 2*time.Second, "poll interval")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			client, err := conn.client()
			if err != nil {
				return err
			}

			model := newWatchModel(client, conn.server, interval)
			program := tea.NewProgram(model, tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}
}

// watchSnapshotMsg carries one poll's results into the message loop.
type watchSnapshotMsg struct {
	status gate.Status
	graph  rights.Dump
	err    error
}

// watchTickMsg schedules the next poll.
type watchTickMsg struct{}

// watchKeys are the board's keybindings.
type watchKeys struct {
	Quit key.Binding
}

var defaultWatchKeys = watchKeys{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true)
	watchLabelStyle = lipgloss.NewStyle().Faint(true)
	watchLeadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	watchLagStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	watchErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	watchHelpStyle  = lipgloss.NewStyle().Faint(true)
)

// watchModel is the bubbletea model behind "warden watch".
type watchModel struct {
	client   *apiclient.Client
	server   string
	interval time.Duration
	keys     watchKeys

	status  gate.Status
	graph   rights.Dump
	pollErr error
	polled  bool

	edges viewport.Model
	width int
	ready bool
}

func newWatchModel(client *apiclient.Client, server string, interval time.Duration) *watchModel {
	return &watchModel{
		client:   client,
		server:   server,
		interval: interval,
		keys:     defaultWatchKeys,
	}
}

func (m *watchModel) Init() tea.Cmd {
	return m.poll()
}

// poll fetches status and graph off the message loop.
func (m *watchModel) poll() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		status, err := client.Status(ctx)
		if err != nil {
			return watchSnapshotMsg{err: err}
		}
		graph, err := client.Graph(ctx)
		if err != nil {
			return watchSnapshotMsg{err: err}
		}
		return watchSnapshotMsg{status: status, graph: graph}
	}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		headerHeight := lipgloss.Height(m.headerView())
		bodyHeight := msg.Height - headerHeight - 1 // status line
		if bodyHeight < 1 {
			bodyHeight = 1
		}
		m.edges.Width = msg.Width
		m.edges.Height = bodyHeight
		m.ready = true
		m.edges.SetContent(m.edgesView())

	case watchSnapshotMsg:
		m.polled = true
		m.pollErr = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.graph = msg.graph
		}
		if m.ready {
			m.edges.SetContent(m.edgesView())
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg {
			return watchTickMsg{}
		})

	case watchTickMsg:
		return m, m.poll()
	}

	var cmd tea.Cmd
	m.edges, cmd = m.edges.Update(msg)
	return m, cmd
}

func (m *watchModel) View() string {
	if !m.ready {
		return "starting..."
	}
	return m.headerView() + "\n" + m.edges.View() + "\n" +
		watchHelpStyle.Render("q: quit · scroll: ↑/↓")
}

// headerView renders the consensus summary block.
func (m *watchModel) headerView() string {
	title := watchTitleStyle.Render("warden · " + m.server)

	if !m.polled {
		return title + "\n" + watchLabelStyle.Render("polling...")
	}
	if m.pollErr != nil {
		return title + "\n" + watchErrStyle.Render("unreachable: "+m.pollErr.Error())
	}

	recovery := m.status.RecoveryState
	stateStyle := watchLagStyle
	if recovery == "synced" {
		stateStyle = watchLeadStyle
	}

	leader := m.status.LeaderID
	if leader == "" {
		leader = "(none)"
	}

	digest := m.status.GraphDigest
	if len(digest) > 16 {
		digest = digest[:16]
	}

	line1 := fmt.Sprintf("%s  %s  %s",
		watchLabelStyle.Render("node")+" "+m.status.NodeID,
		watchLabelStyle.Render("raft")+" "+m.status.RaftState,
		watchLabelStyle.Render("recovery")+" "+stateStyle.Render(recovery),
	)
	line2 := fmt.Sprintf("%s  %s  %s",
		watchLabelStyle.Render("leader")+" "+leader,
		watchLabelStyle.Render("applied")+" "+fmt.Sprintf("%d/%d", m.status.AppliedIndex, m.status.LastIndex),
		watchLabelStyle.Render("digest")+" "+digest,
	)
	line3 := fmt.Sprintf("%s  %s  %s",
		watchLabelStyle.Render("subjects")+" "+fmt.Sprintf("%d", m.status.Graph.Subjects),
		watchLabelStyle.Render("objects")+" "+fmt.Sprintf("%d", m.status.Graph.Objects),
		watchLabelStyle.Render("edges")+" "+fmt.Sprintf("%d", m.status.Graph.Edges),
	)

	return strings.Join([]string{title, line1, line2, line3, ""}, "\n")
}

// edgesView renders the edge table into the viewport.
func (m *watchModel) edgesView() string {
	if len(m.graph.Edges) == 0 {
		return watchLabelStyle.Render("no edges")
	}

	var b strings.Builder
	b.WriteString(watchLabelStyle.Render(fmt.Sprintf("%-20s %-20s %s", "SOURCE", "TARGET", "RIGHTS")))
	b.WriteByte('\n')
	for _, edge := range m.graph.Edges {
		b.WriteString(fmt.Sprintf("%-20s %-20s %s\n",
			edge.Source, edge.Target, joinRights(edge.Rights)))
	}
	return b.String()
}
