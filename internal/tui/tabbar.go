package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	// activeTabStyle is the style for the currently selected connection
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("63"))

	// inactiveTabStyle is the style for the other connections
	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243"))

	// tabBarLabelStyle is the style for the bar's leading label
	tabBarLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("36")).
				Bold(true)
)

// renderTabBar renders one tab per live connection in ascending ID order,
// with the active connection highlighted. IDs are assigned in increasing
// order, so new tabs only ever appear to the right of existing ones.
func (m *Model) renderTabBar() string {
	label := tabBarLabelStyle.Render("Connections")

	if len(m.ids) == 0 {
		return label + inactiveTabStyle.Render("  none")
	}

	tabs := []string{label, " "}
	for i, id := range m.ids {
		tabText := connLabel(id)
		if i == m.active {
			tabs = append(tabs, fmt.Sprintf(" %s ", activeTabStyle.Render(tabText)))
		} else {
			tabs = append(tabs, fmt.Sprintf(" %s ", inactiveTabStyle.Render(tabText)))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Left, tabs...)
}
