package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records what the UI sends
type fakeConn struct {
	public   []string
	private  [][2]string
	requests []string
	messages chan string
	sendErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{messages: make(chan string, 10)}
}

func (f *fakeConn) Login(username string) error { return f.sendErr }
func (f *fakeConn) SendPublic(content string) error {
	f.public = append(f.public, content)
	return f.sendErr
}
func (f *fakeConn) SendPrivate(target, content string) error {
	f.private = append(f.private, [2]string{target, content})
	return f.sendErr
}
func (f *fakeConn) RequestFile(filename string) error {
	f.requests = append(f.requests, filename)
	return f.sendErr
}
func (f *fakeConn) Messages() <-chan string { return f.messages }
func (f *fakeConn) Close()                  {}

func setupTestModel(conn *fakeConn) Model {
	m := NewModel(conn, "alice")
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func typeLine(m Model, line string) (Model, tea.Cmd) {
	m.input.SetValue(line)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

func TestNewModelShowsBanner(t *testing.T) {
	m := NewModel(newFakeConn(), "alice")

	require.Len(t, m.Lines(), 2)
	assert.Equal(t, "Connected to server as alice", m.Lines()[0])
}

func TestEnterSendsPublicChat(t *testing.T) {
	conn := newFakeConn()
	m := setupTestModel(conn)

	m, _ = typeLine(m, "hello")

	assert.Equal(t, []string{"hello"}, conn.public)
	assert.Empty(t, m.input.Value(), "input cleared after send")
}

func TestPrivateCommandEchoes(t *testing.T) {
	conn := newFakeConn()
	m := setupTestModel(conn)

	m, _ = typeLine(m, "/private bob psst")

	assert.Equal(t, [][2]string{{"bob", "psst"}}, conn.private)
	assert.Equal(t, "[To bob]: psst", m.Lines()[len(m.Lines())-1])
}

func TestDownloadCommand(t *testing.T) {
	conn := newFakeConn()
	m := setupTestModel(conn)

	m, _ = typeLine(m, "/download notes.txt")

	assert.Equal(t, []string{"notes.txt"}, conn.requests)
	assert.Equal(t, "[System]: Requested file notes.txt", m.Lines()[len(m.Lines())-1])
}

func TestInvalidCommandShowsUsage(t *testing.T) {
	conn := newFakeConn()
	m := setupTestModel(conn)

	m, _ = typeLine(m, "/download")

	assert.Empty(t, conn.requests)
	assert.Equal(t, "[System]: Usage: /download <filename>", m.Lines()[len(m.Lines())-1])
}

func TestQuitCommand(t *testing.T) {
	m := setupTestModel(newFakeConn())

	m, cmd := typeLine(m, "/quit")

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

func TestCtrlCQuits(t *testing.T) {
	m := setupTestModel(newFakeConn())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestServerLinesAreAppended(t *testing.T) {
	conn := newFakeConn()
	m := setupTestModel(conn)

	updated, cmd := m.Update(ServerLineMsg("[bob]: hi"))
	m = updated.(Model)

	assert.Equal(t, "[bob]: hi", m.Lines()[len(m.Lines())-1])
	require.NotNil(t, cmd, "keeps listening")

	conn.messages <- "[carol]: hey"
	assert.Equal(t, ServerLineMsg("[carol]: hey"), cmd())

	close(conn.messages)
	assert.Equal(t, DisconnectedMsg{}, listenForServerLines(conn)())
}

func TestDisconnectedBlocksSending(t *testing.T) {
	conn := newFakeConn()
	m := setupTestModel(conn)

	updated, _ := m.Update(DisconnectedMsg{})
	m = updated.(Model)
	m, _ = typeLine(m, "anyone?")

	assert.Empty(t, conn.public)
	assert.Equal(t, "Not connected", m.errorMessage)
	assert.Contains(t, m.View(), "disconnected")
}

func TestSendErrorIsShown(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = errors.New("outgoing queue full")
	m := setupTestModel(conn)

	m, _ = typeLine(m, "hello")
	assert.Equal(t, "outgoing queue full", m.errorMessage)
}

func TestScrollbackIsBounded(t *testing.T) {
	// No window size yet, so lines are kept without rendering
	m := NewModel(newFakeConn(), "alice")

	for i := 0; i < maxLines+50; i++ {
		updated, _ := m.Update(ServerLineMsg("line"))
		m = updated.(Model)
	}
	assert.Len(t, m.Lines(), maxLines)
}

func TestViewBeforeResize(t *testing.T) {
	m := NewModel(newFakeConn(), "alice")
	assert.Equal(t, "Loading...", m.View())
}

func TestViewShowsMessages(t *testing.T) {
	m := setupTestModel(newFakeConn())
	updated, _ := m.Update(ServerLineMsg("[bob]: hi"))
	m = updated.(Model)

	view := m.View()
	assert.True(t, strings.Contains(view, "[bob]: hi"), view)
	assert.Contains(t, view, "logged in as alice")
}

func TestLineStyle(t *testing.T) {
	assert.Equal(t, PrivateLineStyle, lineStyle("[Private from bob]: x"))
	assert.Equal(t, ErrorStyle, lineStyle("User not found: carol"))
	assert.Equal(t, NoticeLineStyle, lineStyle("[File saved to ./a.txt]"))
	assert.Equal(t, PublicLineStyle, lineStyle("[bob]: hi"))
}
