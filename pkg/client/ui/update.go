package ui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Header, footer, input box (3) and log border (2)
		logHeight := msg.Height - 7
		if logHeight < 1 {
			logHeight = 1
		}
		if m.viewport.Width == 0 || m.viewport.Height == 0 {
			m.viewport = viewport.New(msg.Width-2, logHeight)
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = logHeight
		}
		m.input.Width = msg.Width - 6
		m.viewport.SetContent(m.renderLines())
		m.viewport.GotoBottom()
		return m, nil

	case ServerLineMsg:
		m.appendLine(string(msg))
		return m, listenForServerLines(m.conn)

	case DisconnectedMsg:
		m.connected = false
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEnter:
		line := m.input.Value()
		m.input.Reset()
		return m.execute(ParseInput(line))

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// execute carries out a parsed input line
func (m Model) execute(cmd Command) (tea.Model, tea.Cmd) {
	m.errorMessage = ""

	switch cmd.Kind {
	case CommandNone:
		return m, nil
	case CommandQuit:
		m.quitting = true
		return m, tea.Quit
	case CommandInvalid:
		m.appendLine("[System]: " + cmd.Text)
		return m, nil
	}

	if !m.connected {
		m.errorMessage = "Not connected"
		return m, nil
	}

	var err error
	switch cmd.Kind {
	case CommandPublic:
		err = m.conn.SendPublic(cmd.Text)
	case CommandPrivate:
		if err = m.conn.SendPrivate(cmd.Target, cmd.Text); err == nil {
			m.appendLine("[To " + cmd.Target + "]: " + cmd.Text)
		}
	case CommandDownload:
		if err = m.conn.RequestFile(cmd.Target); err == nil {
			m.appendLine("[System]: Requested file " + cmd.Target)
		}
	}
	if err != nil {
		m.errorMessage = err.Error()
	}
	return m, nil
}
