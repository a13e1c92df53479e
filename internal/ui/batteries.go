package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/battdash/internal/device"
	"github.com/five82/battdash/internal/state"
)

type switchResultMsg struct {
	battery int
	on      bool
	reply   string
	err     error
}

func (m Model) handleBatteriesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.snapshot.Batteries)
	if count == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selectedBattery < count-1 {
			m.selectedBattery++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedBattery > 0 {
			m.selectedBattery--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedBattery = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedBattery = count - 1
	case key.Matches(msg, m.keys.SwitchOn):
		return m, m.switchCmd(m.snapshot.Batteries[m.selectedBattery].Index, true)
	case key.Matches(msg, m.keys.SwitchOff):
		return m, m.switchCmd(m.snapshot.Batteries[m.selectedBattery].Index, false)
	}
	return m, nil
}

func (m Model) switchCmd(battery int, on bool) tea.Cmd {
	if m.controller == nil {
		return nil
	}
	ctrl, parent := m.controller, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, RequestTimeout)
		defer cancel()
		var (
			reply string
			err   error
		)
		if on {
			reply, err = ctrl.SwitchOn(ctx, battery)
		} else {
			reply, err = ctrl.SwitchOff(ctx, battery)
		}
		return switchResultMsg{battery: battery, on: on, reply: reply, err: err}
	}
}

func (m Model) handleSwitchResult(msg switchResultMsg) (tea.Model, tea.Cmd) {
	verb := "off"
	if msg.on {
		verb = "on"
	}
	if msg.err != nil {
		m.setFlash(fmt.Sprintf("Switch %s battery %d failed: %v", verb, msg.battery, msg.err), true)
		return m, nil
	}
	text := msg.reply
	if text == "" {
		text = fmt.Sprintf("Switched %s battery %d", verb, msg.battery)
	}
	m.setFlash(text, false)
	// Ask for fresh values so the LED column catches up.
	return m, m.refreshCmd()
}

// renderBatteries renders the telemetry table and the control switch list.
func (m Model) renderBatteries() string {
	width := m.width
	height := m.contentHeight()
	inner := max(width-2, 0)

	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)

	if !m.snapshot.HasStatus {
		msg := "Waiting for battery status..."
		if m.snapshot.Conn != state.Open {
			msg = "Not connected to the controller"
		}
		return m.renderBox("Batteries", bg.Render(msg, styles.MutedText), width, height)
	}

	var lines []string
	lines = append(lines, bg.FillLine(bg.Render(batteryHeaderLine(), styles.FaintText), inner))

	visible := max(height-5, 1)
	start := 0
	if m.selectedBattery >= visible {
		start = m.selectedBattery - visible + 1
	}
	end := min(start+visible, len(m.snapshot.Batteries))

	for i := start; i < end; i++ {
		b := m.snapshot.Batteries[i]
		row := formatBatteryRow(b)
		if i == m.selectedBattery {
			lines = append(lines, styles.Selected.Width(inner).Render(row+"  "+ledLabel(b)))
			continue
		}
		led := styles.DangerText
		if b.On() {
			led = styles.SuccessText
		}
		lines = append(lines, bg.FillLine(bg.Render(row, styles.Text)+bg.Spaces(2)+bg.Render(ledLabel(b), led), inner))
	}

	lines = append(lines, bg.FillLine("", inner))
	lines = append(lines, bg.FillLine(
		bg.Render("Control switches:", styles.MutedText)+bg.Space()+
			bg.Render(switchList(m.snapshot.Switches), styles.AccentText), inner))

	title := fmt.Sprintf("Batteries (%d)", len(m.snapshot.Batteries))
	return m.renderBox(title, strings.Join(lines, "\n"), width, height)
}

func batteryHeaderLine() string {
	return fmt.Sprintf("%3s  %9s  %9s  %10s  %s", "#", "Voltage", "Current", "Consumed", "State")
}

func formatBatteryRow(b device.BatteryStatus) string {
	return fmt.Sprintf("%3d  %7.2f V  %7.2f A  %7.3f Ah", b.Index, b.Voltage, b.Current, b.AmpereHour)
}

func ledLabel(b device.BatteryStatus) string {
	if b.On() {
		return "● ON"
	}
	return "● OFF"
}

func switchList(switches []device.ControlSwitch) string {
	if len(switches) == 0 {
		return "none"
	}
	parts := make([]string, len(switches))
	for i, s := range switches {
		parts[i] = fmt.Sprintf("%d", s.Index)
	}
	return strings.Join(parts, " ")
}

// batteryTotals counts connected batteries and sums current and consumption
// over every battery in the frame.
func batteryTotals(batteries []device.BatteryStatus) (on int, current, ampereHour float64) {
	for _, b := range batteries {
		if b.On() {
			on++
		}
		current += b.Current
		ampereHour += b.AmpereHour
	}
	return on, current, ampereHour
}
