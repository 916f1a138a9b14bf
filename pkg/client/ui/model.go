package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aeolun/epollchat/pkg/client"
)

// maxLines bounds the scrollback
const maxLines = 1000

// ServerLineMsg carries one display line from the connection
type ServerLineMsg string

// DisconnectedMsg is sent once the connection's message stream ends
type DisconnectedMsg struct{}

// Model is the terminal chat UI: a scrolling message log above a single
// input line
type Model struct {
	conn     client.ConnectionInterface
	username string

	lines    []string
	viewport viewport.Model
	input    textinput.Model

	width        int
	height       int
	connected    bool
	quitting     bool
	errorMessage string
}

// NewModel creates the UI for an already connected, logged in client
func NewModel(conn client.ConnectionInterface, username string) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.CharLimit = 1023
	input.Focus()

	m := Model{
		conn:      conn,
		username:  username,
		input:     input,
		connected: true,
	}
	m.appendLine("Connected to server as " + username)
	m.appendLine("commands: /private <user> <msg>, /download <file>, /quit")
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		listenForServerLines(m.conn),
	)
}

// listenForServerLines waits for the next line from the connection
func listenForServerLines(conn client.ConnectionInterface) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-conn.Messages()
		if !ok {
			return DisconnectedMsg{}
		}
		return ServerLineMsg(line)
	}
}

// Lines returns the scrollback
func (m Model) Lines() []string {
	return m.lines
}

// appendLine adds a line to the scrollback and keeps the log scrolled to it
func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	if m.viewport.Height > 0 {
		m.viewport.SetContent(m.renderLines())
		m.viewport.GotoBottom()
	}
}
