package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/battdash/internal/state"
)

const gaugeWidth = 20

// formState holds the configuration form's cursor and edit buffer.
type formState struct {
	selected int
	editing  bool
	input    textinput.Model
	err      string
}

type saveResultMsg struct {
	count int
	err   error
}

func newFormInput() textinput.Model {
	in := textinput.New()
	in.Prompt = "› "
	in.CharLimit = 32
	return in
}

func (m Model) handleConfigKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.snapshot.Fields)
	switch {
	case key.Matches(msg, m.keys.Save):
		return m, m.saveCmd()
	case count == 0:
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.form.selected < count-1 {
			m.form.selected++
		}
	case key.Matches(msg, m.keys.Up):
		if m.form.selected > 0 {
			m.form.selected--
		}
	case key.Matches(msg, m.keys.Top):
		m.form.selected = 0
	case key.Matches(msg, m.keys.Bottom):
		m.form.selected = count - 1
	case key.Matches(msg, m.keys.Edit):
		f := m.snapshot.Fields[m.form.selected]
		value := f.Value
		if m.gateway != nil {
			if pending, ok := m.gateway.PendingValue(f.ID); ok {
				value = pending
			}
		}
		m.form.editing = true
		m.form.err = ""
		m.form.input.SetValue(value)
		m.form.input.CursorEnd()
		cmd := m.form.input.Focus()
		return m, cmd
	}
	return m, nil
}

func (m Model) handleFormEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		m.form.editing = false
		m.form.err = ""
		m.form.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Edit):
		if m.form.selected >= len(m.snapshot.Fields) {
			m.form.editing = false
			return m, nil
		}
		f := m.snapshot.Fields[m.form.selected]
		value := strings.TrimSpace(m.form.input.Value())
		if err := f.Validate(value); err != nil {
			m.form.err = err.Error()
			return m, nil
		}
		if m.gateway != nil {
			m.gateway.UpdateConf(f.ID, value)
		}
		m.log.Debug().Str("field", f.ID).Str("value", value).Msg("configuration edit recorded")
		m.form.editing = false
		m.form.err = ""
		m.form.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.form.input, cmd = m.form.input.Update(msg)
	return m, cmd
}

func (m Model) saveCmd() tea.Cmd {
	if m.gateway == nil {
		return nil
	}
	pending := m.gateway.PendingCount()
	if pending == 0 {
		return flashCmd("No pending changes to save", false)
	}
	if m.snapshot.Conn != state.Open {
		// Saving clears the pending set even when nothing is sent, so wait.
		return flashCmd("Not connected; changes kept until the controller is back", true)
	}
	gw, parent := m.gateway, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, RequestTimeout)
		defer cancel()
		return saveResultMsg{count: pending, err: gw.SaveConf(ctx)}
	}
}

func (m *Model) handleSaveResult(msg saveResultMsg) {
	if msg.err != nil {
		m.setFlash("Save failed: "+msg.err.Error(), true)
		return
	}
	m.setFlash(fmt.Sprintf("Sent %d change(s); controller will restart", msg.count), false)
}

// renderConfig renders the configuration form.
func (m Model) renderConfig() string {
	width := m.width
	height := m.contentHeight()
	inner := max(width-2, 0)

	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)

	fields := m.snapshot.Fields
	if len(fields) == 0 {
		return m.renderBox("Configuration", bg.Render("No fields configured", styles.MutedText), width, height)
	}

	labelWidth := 0
	for _, f := range fields {
		labelWidth = max(labelWidth, len(f.Label))
	}

	var lines []string
	for i, f := range fields {
		label := fmt.Sprintf("%-*s", labelWidth, f.Label)
		if m.form.editing && i == m.form.selected {
			line := bg.Render(label, styles.AccentText) + bg.Spaces(2) + m.form.input.View()
			lines = append(lines, bg.FillLine(line, inner))
			if m.form.err != "" {
				lines = append(lines, bg.FillLine(bg.Spaces(labelWidth+2)+bg.Render(m.form.err, styles.DangerText), inner))
			}
			continue
		}

		value := fieldDisplayValue(f)
		pending := ""
		if m.gateway != nil {
			if v, ok := m.gateway.PendingValue(f.ID); ok {
				pending = "→ " + v
			}
		}

		if i == m.form.selected {
			row := label + "  " + value
			if pending != "" {
				row += "  " + pending
			}
			lines = append(lines, styles.Selected.Width(inner).Render(row))
			continue
		}

		valueStyle := styles.Text
		if !f.HasValue {
			valueStyle = styles.FaintText
		}
		line := bg.Render(label, styles.MutedText) + bg.Spaces(2) + bg.Render(value, valueStyle)
		if pending != "" {
			line += bg.Spaces(2) + bg.Render(pending, styles.WarningText)
		}
		lines = append(lines, bg.FillLine(line, inner))
	}

	title := "Configuration"
	if m.gateway != nil {
		if n := m.gateway.PendingCount(); n > 0 {
			title = fmt.Sprintf("Configuration (%d unsaved)", n)
		}
	}
	return m.renderBox(title, strings.Join(lines, "\n"), width, height)
}

// fieldDisplayValue renders the reported value with its unit, and a gauge for sliders.
func fieldDisplayValue(f state.Field) string {
	if !f.HasValue {
		return "n/a"
	}
	text := f.Value
	if f.IsSlider() && f.Text != "" {
		text = f.Text
	}
	if f.Unit != "" {
		text += " " + f.Unit
	}
	if f.IsSlider() && f.Max > f.Min {
		if v, err := strconv.ParseFloat(f.Value, 64); err == nil {
			text = gauge(v, f.Min, f.Max, gaugeWidth) + " " + text
		}
	}
	return text
}

func gauge(v, lo, hi float64, width int) string {
	frac := (v - lo) / (hi - lo)
	frac = min(max(frac, 0), 1)
	filled := int(frac*float64(width) + 0.5)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

type flashMsg flashMessage

func flashCmd(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return flashMsg{text: text, isErr: isErr}
	}
}
