package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

type state int

const (
	stateDashboard state = iota
	stateDetail
	stateForm
)

type RootModel struct {
	State     state
	Client    *Client
	Dashboard DashboardModel
	Detail    AgentDetailModel
	Form      CommandFormModel
	formFrom  state
	width     int
	height    int
}

func NewRootModel(c *Client) RootModel {
	return RootModel{
		State:     stateDashboard,
		Client:    c,
		Dashboard: NewDashboardModel(c, 80, 24),
	}
}

func (m RootModel) Init() tea.Cmd {
	return m.Dashboard.Init()
}

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.Dashboard.Table.SetHeight(max(msg.Height-10, 5))
		m.Detail.Table.SetHeight(max(msg.Height-16, 5))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.State != stateForm {
				return m, tea.Quit
			}
		case "esc":
			switch m.State {
			case stateDetail:
				m.State = stateDashboard
				return m, m.Dashboard.loadAgents
			case stateForm:
				m.State = m.formFrom
				if m.State == stateDashboard {
					return m, m.Dashboard.loadAgents
				}
				return m, m.Detail.loadCommands
			}
		case "c":
			if m.State == stateDetail {
				m.Form = NewCommandFormModel(m.Client, m.Detail.AgentID)
				m.formFrom = stateDetail
				m.State = stateForm
				return m, nil
			}
			if m.State == stateDashboard {
				if row := m.Dashboard.Table.SelectedRow(); len(row) > 0 {
					m.Form = NewCommandFormModel(m.Client, row[0])
					m.formFrom = stateDashboard
					m.State = stateForm
					return m, nil
				}
			}
		}

	case AgentSelectedMsg:
		m.Detail = NewAgentDetailModel(m.Client, msg.AgentID, m.width, m.height)
		m.State = stateDetail
		return m, m.Detail.Init()
	}

	var cmd tea.Cmd
	switch m.State {
	case stateDashboard:
		m.Dashboard, cmd = m.Dashboard.Update(msg)
	case stateDetail:
		m.Detail, cmd = m.Detail.Update(msg)
	case stateForm:
		m.Form, cmd = m.Form.Update(msg)
	}
	return m, cmd
}

func (m RootModel) View() string {
	switch m.State {
	case stateDetail:
		return m.Detail.View()
	case stateForm:
		return m.Form.View()
	default:
		return m.Dashboard.View()
	}
}
