package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	// Don't render until we have dimensions
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	status := "logged in as " + m.username
	if !m.connected {
		status = "disconnected"
	}
	header := HeaderStyle.Render("Chat") + StatusStyle.Render(status)

	logPane := LogPaneStyle.Width(m.width - 2).Render(m.viewport.View())
	input := InputStyle.Width(m.width - 4).Render(m.input.View())

	footer := RenderShortcut("Enter", "send") + "  " +
		RenderShortcut("PgUp/PgDn", "scroll") + "  " +
		RenderShortcut("Ctrl+C", "quit")
	if m.errorMessage != "" {
		footer = RenderError(m.errorMessage)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, logPane, input, FooterStyle.Render(footer))
}

// renderLines renders the scrollback wrapped to the log width
func (m Model) renderLines() string {
	width := m.viewport.Width
	rendered := make([]string, len(m.lines))
	for i, line := range m.lines {
		style := lineStyle(line)
		if width > 0 {
			style = style.Width(width)
		}
		rendered[i] = style.Render(line)
	}
	return strings.Join(rendered, "\n")
}

// lineStyle picks a style from the shape of the line
func lineStyle(line string) lipgloss.Style {
	switch {
	case strings.HasPrefix(line, "[Private from "):
		return PrivateLineStyle
	case strings.HasPrefix(line, "[To "):
		return OwnLineStyle
	case strings.HasPrefix(line, "User not found: "), strings.HasPrefix(line, "[Error"):
		return ErrorStyle
	case strings.HasPrefix(line, "[System]"), strings.HasPrefix(line, "[File saved"),
		strings.HasPrefix(line, "Welcome "), strings.HasPrefix(line, "Disconnected"):
		return NoticeLineStyle
	default:
		return PublicLineStyle
	}
}
