package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

var (
	// statusStyle is the style for key hints in the footer
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// addrStyle is the style for the listen address and peer count
	addrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	// errorStyle is the style for error messages in the footer
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// emptyStyle is the style used when no connections exist yet
	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// inputStyle is the border around the input box
	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	// inputEditingStyle highlights the input box while composing
	inputEditingStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("220"))
)

func (m *Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	var sb strings.Builder

	sb.WriteString(m.renderTabBar())
	sb.WriteString("\n\n")

	sb.WriteString(m.viewport.View())
	sb.WriteString("\n\n")

	sb.WriteString(m.renderInput())
	sb.WriteString("\n")

	sb.WriteString(m.renderMainFooter())

	return sb.String()
}

// updateViewport rebuilds the transcript view for the active tab. Entries
// are numbered the way they sit in the transcript, so operators can refer
// to them unambiguously even after a resize rewraps the text.
func (m *Model) updateViewport() {
	if !m.ready {
		return
	}

	id, ok := m.activeConn()
	if !ok {
		m.viewport.SetContent(emptyStyle.Render("No connections yet. Peers appear here as they dial in."))
		return
	}

	history, ok := m.host.History(id)
	if !ok {
		// The connection vanished between the poll and this render; the
		// next poll removes its tab.
		m.viewport.SetContent("")
		return
	}

	atBottom := m.viewport.AtBottom()

	var sb strings.Builder
	for i, entry := range history {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(wordwrap.String(fmt.Sprintf("%d: %s", i, entry), m.wrapWidth))
	}
	m.viewport.SetContent(sb.String())

	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderInput() string {
	style := inputStyle
	if m.mode == modeEditing {
		style = inputEditingStyle
	}

	width := m.width - 2
	if width < 10 {
		width = 10
	}
	return style.Width(width).Render(m.input.View())
}

// renderMainFooter renders the status line: key hints or a recent error on
// the left, the listen address and peer count on the right.
func (m *Model) renderMainFooter() string {
	var footerLeft string
	if m.err != nil && time.Now().Before(m.errVisibleUntil) {
		footerLeft = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	} else {
		if m.err != nil {
			m.err = nil
			m.errVisibleUntil = time.Time{}
		}
		switch m.mode {
		case modeEditing:
			footerLeft = statusStyle.Render("enter send · esc done")
		default:
			footerLeft = statusStyle.Render("e edit · q quit · ←/→ tab · ↑/↓ scroll")
		}
	}

	status := fmt.Sprintf("%s · %d connected", m.listenAddr, m.host.Count())
	if id, ok := m.activeConn(); ok {
		status = fmt.Sprintf("connection %d · %s", id, status)
	}
	footerRight := addrStyle.Render(status)

	return m.renderFooter(footerLeft, footerRight)
}

// renderFooter is a layout helper that places strings at the left and right
// ends of a line, expanding the space between them as needed.
func (m *Model) renderFooter(left, right string) string {
	width := m.width
	if width <= 0 {
		switch {
		case left == "":
			return right
		case right == "":
			return left
		default:
			return left + " " + right
		}
	}

	leftWidth := lipgloss.Width(left)
	rightWidth := lipgloss.Width(right)
	space := width - leftWidth - rightWidth
	if space < 1 {
		space = 1
	}

	return left + strings.Repeat(" ", space) + right
}
