package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type DashboardModel struct {
	Client *Client
	Table  table.Model
	Agents []AgentEntry
	Err    error
}

type agentsLoadedMsg struct {
	agents []AgentEntry
	err    error
}

type AgentSelectedMsg struct {
	AgentID string
}

func NewDashboardModel(c *Client, width, height int) DashboardModel {
	columns := []table.Column{
		{Title: "Agent ID", Width: 24},
		{Title: "Status", Width: 10},
		{Title: "Last Connected", Width: 22},
		{Title: "Metadata", Width: 36},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(height-10, 5)),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return DashboardModel{Client: c, Table: t}
}

func (m DashboardModel) loadAgents() tea.Msg {
	agents, err := m.Client.ListAgents()
	return agentsLoadedMsg{agents: agents, err: err}
}

func (m DashboardModel) Init() tea.Cmd {
	return m.loadAgents
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			return m, m.loadAgents
		case "enter":
			if row := m.Table.SelectedRow(); len(row) > 0 {
				agentID := row[0]
				return m, func() tea.Msg { return AgentSelectedMsg{AgentID: agentID} }
			}
		}
	case agentsLoadedMsg:
		if msg.err != nil {
			m.Err = msg.err
			return m, nil
		}
		m.Err = nil
		m.Agents = msg.agents
		rows := make([]table.Row, 0, len(msg.agents))
		for _, a := range msg.agents {
			last := "never"
			if a.LastConnected != nil {
				last = a.LastConnected.Local().Format("2006-01-02 15:04:05")
			}
			status := offlineStyle.Render(a.Status)
			if a.Status == "online" {
				status = onlineStyle.Render(a.Status)
			}
			rows = append(rows, table.Row{a.AgentID, status, last, a.Metadata})
		}
		m.Table.SetRows(rows)
	}

	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m DashboardModel) View() string {
	header := titleStyle.Render("RemoteShell Agents")
	body := m.Table.View()
	footer := helpStyle.Render("r: refresh • enter: history • c: run command • q: quit")
	if m.Err != nil {
		footer = errorMessageStyle(fmt.Sprintf("error: %v", m.Err))
	}
	return docStyle.Render(header + "\n\n" + body + "\n" + footer)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
