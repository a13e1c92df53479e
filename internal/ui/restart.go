package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// renderRestartNotice replaces the whole screen while the controller reboots.
func (m Model) renderRestartNotice() string {
	styles := m.theme.Styles()
	notice := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color(m.theme.Warning)).
		Padding(1, 4).
		Render(styles.WarningText.Bold(true).Render(m.snapshot.RestartNotice) + "\n\n" +
			styles.MutedText.Render("The dashboard reloads once the controller is back."))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, notice,
		lipgloss.WithWhitespaceBackground(lipgloss.Color(m.theme.Background)))
}
