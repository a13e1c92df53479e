package ui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/battdash/internal/logtail"
)

type clientLogState struct {
	viewport viewport.Model
	lines    []string
	follow   bool
	err      error
}

type clientLogMsg struct {
	lines []string
	err   error
}

func (m Model) logFile() string {
	if m.config == nil {
		return ""
	}
	return m.config.LogFile
}

func (m Model) readClientLogCmd() tea.Cmd {
	path := m.logFile()
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		lines, err := logtail.Read(path, ClientLogLines)
		if err != nil {
			return clientLogMsg{err: err}
		}
		return clientLogMsg{lines: logtail.FormatLines(lines)}
	}
}

func (m *Model) handleClientLog(msg clientLogMsg) {
	m.clientLog.err = msg.err
	if msg.err != nil {
		return
	}
	m.clientLog.lines = msg.lines
	m.clientLog.viewport.SetContent(m.renderClientLogContent())
	if m.clientLog.follow {
		m.clientLog.viewport.GotoBottom()
	}
}

func (m *Model) resizeClientLog() {
	w, h := max(m.width-4, 1), max(m.contentHeight()-2, 1)
	if m.clientLog.viewport.Width == 0 {
		m.clientLog.viewport = viewport.New(w, h)
	}
	m.clientLog.viewport.Width = w
	m.clientLog.viewport.Height = h
	m.clientLog.viewport.Style = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.FocusBg))
	m.clientLog.viewport.SetContent(m.renderClientLogContent())
	if m.clientLog.follow {
		m.clientLog.viewport.GotoBottom()
	}
}

func (m Model) handleClientLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.clientLog.follow = !m.clientLog.follow
		if m.clientLog.follow {
			m.clientLog.viewport.GotoBottom()
			return m, m.readClientLogCmd()
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.clientLog.follow = false
		m.clientLog.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.clientLog.viewport.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.HalfPageUp):
		// Scrolling back pauses following
		m.clientLog.follow = false
	}
	if key.Matches(msg, m.keys.HalfPageUp) {
		m.clientLog.viewport.HalfPageUp()
		return m, nil
	}
	if key.Matches(msg, m.keys.HalfPageDown) {
		m.clientLog.viewport.HalfPageDown()
		return m, nil
	}
	var cmd tea.Cmd
	m.clientLog.viewport, cmd = m.clientLog.viewport.Update(msg)
	return m, cmd
}

func (m Model) renderClientLog() string {
	title := "Client log"
	if path := m.logFile(); path != "" {
		title += " " + truncateMiddle(path, max(m.width/2, 10))
	}
	if !m.clientLog.follow {
		title += " (paused)"
	}

	content := m.clientLog.viewport.View()
	if m.clientLog.err != nil {
		styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
		content = styles.DangerText.Render("Could not read log: " + m.clientLog.err.Error())
	} else if len(m.clientLog.lines) == 0 {
		content = "No log entries yet"
	}
	return m.renderBox(title, content, m.width, m.contentHeight())
}

func (m Model) renderClientLogContent() string {
	if len(m.clientLog.lines) == 0 {
		return ""
	}
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)
	out := make([]string, len(m.clientLog.lines))
	for i, line := range m.clientLog.lines {
		out[i] = m.colorizeLogLine(line, styles, bg)
	}
	return strings.Join(out, "\n")
}

var (
	timestampRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)
	levelRe     = regexp.MustCompile(`^\s*(TRC|DBG|INF|WRN|ERR|FTL|PNC)\b`)
	componentRe = regexp.MustCompile(`^\s*(\[[^\]]+\])`)
)

// colorizeLogLine styles a line produced by logtail.Format.
func (m Model) colorizeLogLine(line string, styles Styles, bg BgStyle) string {
	if strings.TrimSpace(line) == "" {
		return line
	}

	var result strings.Builder
	remaining := line

	if match := timestampRe.FindStringSubmatchIndex(remaining); match != nil {
		result.WriteString(bg.Render(remaining[match[2]:match[3]], styles.FaintText))
		remaining = remaining[match[1]:]
	}
	if match := levelRe.FindStringSubmatchIndex(remaining); match != nil {
		level := remaining[match[2]:match[3]]
		if result.Len() > 0 {
			result.WriteString(bg.Space())
		}
		result.WriteString(bg.Render(level, levelStyle(level, styles).Bold(true)))
		remaining = remaining[match[1]:]
	}
	if match := componentRe.FindStringSubmatchIndex(remaining); match != nil {
		result.WriteString(bg.Space())
		result.WriteString(bg.Render(remaining[match[2]:match[3]], styles.AccentText))
		remaining = remaining[match[1]:]
	}

	if rest := strings.TrimSpace(remaining); rest != "" {
		if result.Len() > 0 {
			result.WriteString(bg.Space())
		}
		result.WriteString(bg.Render(rest, styles.Text))
	}
	return result.String()
}

func levelStyle(level string, styles Styles) lipgloss.Style {
	switch level {
	case "INF":
		return styles.SuccessText
	case "WRN":
		return styles.WarningText
	case "ERR", "FTL", "PNC":
		return styles.DangerText
	case "DBG", "TRC":
		return styles.InfoText
	default:
		return styles.Text
	}
}
