package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// CommandFormModel collects a shell command, timeout, and priority for
// one agent and submits it to the coordinator.
type CommandFormModel struct {
	Client  *Client
	AgentID string
	Inputs  []textinput.Model
	Focused int
	Status  string
	Err     error
}

type commandSubmittedMsg struct {
	commandID string
	err       error
}

func NewCommandFormModel(c *Client, agentID string) CommandFormModel {
	command := textinput.New()
	command.Placeholder = "shell command"
	command.CharLimit = 1000
	command.Width = 60
	command.Focus()

	timeout := textinput.New()
	timeout.Placeholder = "timeout seconds (default 30)"
	timeout.Width = 30

	priority := textinput.New()
	priority.Placeholder = "priority (default 0)"
	priority.Width = 30

	return CommandFormModel{
		Client:  c,
		AgentID: agentID,
		Inputs:  []textinput.Model{command, timeout, priority},
	}
}

func (m CommandFormModel) submit() tea.Cmd {
	command := m.Inputs[0].Value()
	timeout, _ := strconv.Atoi(m.Inputs[1].Value())
	if timeout <= 0 {
		timeout = 30
	}
	priority, _ := strconv.Atoi(m.Inputs[2].Value())
	return func() tea.Msg {
		id, err := m.Client.Submit(m.AgentID, command, timeout, priority)
		return commandSubmittedMsg{commandID: id, err: err}
	}
}

func (m CommandFormModel) Update(msg tea.Msg) (CommandFormModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "shift+tab":
			if msg.String() == "tab" {
				m.Focused = (m.Focused + 1) % len(m.Inputs)
			} else {
				m.Focused = (m.Focused + len(m.Inputs) - 1) % len(m.Inputs)
			}
			for i := range m.Inputs {
				if i == m.Focused {
					m.Inputs[i].Focus()
				} else {
					m.Inputs[i].Blur()
				}
			}
			return m, nil
		case "enter":
			if m.Inputs[0].Value() == "" {
				m.Err = fmt.Errorf("command must not be empty")
				return m, nil
			}
			m.Status = "submitting..."
			m.Err = nil
			return m, m.submit()
		}
	case commandSubmittedMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.Status = ""
			return m, nil
		}
		m.Status = "queued as " + msg.commandID
		m.Inputs[0].SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.Inputs[m.Focused], cmd = m.Inputs[m.Focused].Update(msg)
	return m, cmd
}

func (m CommandFormModel) View() string {
	header := titleStyle.Render("Run command on " + m.AgentID)
	body := ""
	for _, in := range m.Inputs {
		body += in.View() + "\n"
	}
	footer := helpStyle.Render("tab: next field • enter: submit • esc: back")
	if m.Err != nil {
		footer = errorMessageStyle(fmt.Sprintf("error: %v", m.Err))
	} else if m.Status != "" {
		footer = statusMessageStyle(m.Status)
	}
	return docStyle.Render(header + "\n\n" + body + "\n" + footer)
}
