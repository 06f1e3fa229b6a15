package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AgentDetailModel shows one agent's command history with the output
// of the selected command.
type AgentDetailModel struct {
	Client   *Client
	AgentID  string
	Table    table.Model
	Commands []CommandEntry
	Err      error
}

type commandsLoadedMsg struct {
	commands []CommandEntry
	err      error
}

func NewAgentDetailModel(c *Client, agentID string, width, height int) AgentDetailModel {
	columns := []table.Column{
		{Title: "Command", Width: 32},
		{Title: "Status", Width: 10},
		{Title: "Exit", Width: 5},
		{Title: "Created", Width: 20},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(height-16, 5)),
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

	return AgentDetailModel{Client: c, AgentID: agentID, Table: t}
}

func (m AgentDetailModel) loadCommands() tea.Msg {
	cmds, err := m.Client.AgentCommands(m.AgentID, 50)
	return commandsLoadedMsg{commands: cmds, err: err}
}

func (m AgentDetailModel) Init() tea.Cmd {
	return m.loadCommands
}

func (m AgentDetailModel) Update(msg tea.Msg) (AgentDetailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "r" {
			return m, m.loadCommands
		}
	case commandsLoadedMsg:
		if msg.err != nil {
			m.Err = msg.err
			return m, nil
		}
		m.Err = nil
		m.Commands = msg.commands
		rows := make([]table.Row, 0, len(msg.commands))
		for _, c := range msg.commands {
			exit := ""
			if c.ExitCode != nil {
				exit = strconv.Itoa(*c.ExitCode)
			}
			rows = append(rows, table.Row{
				c.Command,
				c.Status,
				exit,
				c.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			})
		}
		m.Table.SetRows(rows)
	}

	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m AgentDetailModel) selectedOutput() string {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Commands) {
		return ""
	}
	c := m.Commands[i]
	out := c.Stdout
	if c.Stderr != "" {
		out += "\n" + errorMessageStyle(c.Stderr)
	}
	if c.ErrorMessage != "" {
		out += "\n" + errorMessageStyle(c.ErrorMessage)
	}
	if len(out) > 600 {
		out = out[:600] + "..."
	}
	return out
}

func (m AgentDetailModel) View() string {
	header := titleStyle.Render("History: " + m.AgentID)
	body := m.Table.View()
	output := m.selectedOutput()
	footer := helpStyle.Render("r: refresh • c: run command • esc: back • q: quit")
	if m.Err != nil {
		footer = errorMessageStyle(fmt.Sprintf("error: %v", m.Err))
	}
	return docStyle.Render(header + "\n\n" + body + "\n\n" + output + "\n" + footer)
}
