package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/battdash/internal/device"
)

type deviceLogState struct {
	viewport  viewport.Model
	records   []device.LogRecord
	fetchedAt time.Time
	loading   bool
	err       error
}

type deviceLogMsg struct {
	records []device.LogRecord
	err     error
}

func (m Model) fetchDeviceLogCmd() tea.Cmd {
	if m.controller == nil {
		return nil
	}
	ctrl, parent := m.controller, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, DeviceLogTimeout)
		defer cancel()
		records, err := ctrl.FetchLog(ctx)
		return deviceLogMsg{records: records, err: err}
	}
}

func (m *Model) handleDeviceLog(msg deviceLogMsg) {
	m.deviceLog.loading = false
	m.deviceLog.fetchedAt = time.Now()
	m.deviceLog.err = msg.err
	if msg.err != nil {
		m.log.Warn().Err(msg.err).Msg("fetch device log")
		return
	}
	records := msg.records
	if len(records) > DeviceLogLimit {
		records = records[len(records)-DeviceLogLimit:]
	}
	m.deviceLog.records = records
	m.deviceLog.viewport.SetContent(m.renderDeviceLogContent())
	m.deviceLog.viewport.GotoBottom()
}

func (m *Model) resizeDeviceLog() {
	w, h := max(m.width-4, 1), max(m.contentHeight()-2, 1)
	if m.deviceLog.viewport.Width == 0 {
		m.deviceLog.viewport = viewport.New(w, h)
	}
	m.deviceLog.viewport.Width = w
	m.deviceLog.viewport.Height = h
	m.deviceLog.viewport.Style = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.FocusBg))
	m.deviceLog.viewport.SetContent(m.renderDeviceLogContent())
}

func (m Model) handleDeviceLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Top):
		m.deviceLog.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.deviceLog.viewport.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.HalfPageDown):
		m.deviceLog.viewport.HalfPageDown()
		return m, nil
	case key.Matches(msg, m.keys.HalfPageUp):
		m.deviceLog.viewport.HalfPageUp()
		return m, nil
	}
	var cmd tea.Cmd
	m.deviceLog.viewport, cmd = m.deviceLog.viewport.Update(msg)
	return m, cmd
}

func (m Model) renderDeviceLog() string {
	title := "Device log"
	switch {
	case m.deviceLog.loading:
		title += " (loading...)"
	case !m.deviceLog.fetchedAt.IsZero():
		title += fmt.Sprintf(" (%d rows, fetched %s)", len(m.deviceLog.records), m.deviceLog.fetchedAt.Format("15:04:05"))
	}

	var content string
	switch {
	case m.deviceLog.err != nil:
		styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
		content = styles.DangerText.Render("Could not load /log: " + m.deviceLog.err.Error())
	case m.controller == nil:
		content = "No controller address configured"
	default:
		content = m.deviceLog.viewport.View()
	}
	return m.renderBox(title, content, m.width, m.contentHeight())
}

func (m Model) renderDeviceLogContent() string {
	if len(m.deviceLog.records) == 0 {
		return ""
	}
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)

	lines := make([]string, 0, len(m.deviceLog.records)+1)
	lines = append(lines, bg.Render(fmt.Sprintf("%12s  %3s  %9s  %9s  %-4s  %10s",
		"Uptime", "#", "Voltage", "Current", "Sw", "Consumed"), styles.FaintText))
	for _, rec := range m.deviceLog.records {
		if !rec.Valid {
			lines = append(lines, bg.Render(strings.Join(rec.Cells, " | "), styles.FaintText))
			continue
		}
		stateStyle := styles.DangerText
		if rec.SwitchOn {
			stateStyle = styles.SuccessText
		}
		lines = append(lines,
			bg.Render(fmt.Sprintf("%12s  %3d  %7.2f V  %7.2f A", formatUptime(rec.Uptime), rec.Battery, rec.Voltage, rec.Current), styles.Text)+
				bg.Spaces(2)+bg.Render(fmt.Sprintf("%-4s", onOff(rec.SwitchOn)), stateStyle)+
				bg.Spaces(2)+bg.Render(fmt.Sprintf("%7.3f Ah", rec.AmpereHour), styles.Text))
	}
	return strings.Join(lines, "\n")
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// formatUptime renders controller uptime as h:mm:ss, with days when needed.
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	mnt := d / time.Minute
	d -= mnt * time.Minute
	s := d / time.Second
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, mnt, s)
	}
	return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
}
