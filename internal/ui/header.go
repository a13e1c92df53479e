package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/five82/battdash/internal/state"
)

// renderHeader renders the status bar: connection badge, host and battery totals.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth

	parts := []string{bg.Render("battdash", styles.Logo)}

	conn := m.snapshot.Conn.String()
	parts = append(parts, bg.Render("● "+strings.ToUpper(conn), styles.ConnStyle(conn)))

	if host := m.host(); host != "" {
		parts = append(parts, bg.Render(host, styles.MutedText))
	}

	if m.snapshot.Conn != state.Open && m.snapshot.LastError != nil {
		label := classifyConnectionError(m.snapshot.LastError)
		retry := "Retrying..."
		if m.snapshot.IsOffline() {
			retry = fmt.Sprintf("Retrying (attempt %d)...", m.snapshot.Attempts)
		}
		parts = append(parts,
			bg.Render(label, styles.DangerText),
			bg.Render(retry, styles.WarningText))
	}

	if m.snapshot.HasStatus {
		on, current, ah := batteryTotals(m.snapshot.Batteries)
		parts = append(parts,
			bg.Render("On:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d/%d", on, len(m.snapshot.Batteries)), styles.Text))
		if !compact {
			parts = append(parts,
				bg.Render("Σ", styles.MutedText)+bg.Space()+
					bg.Render(fmt.Sprintf("%.2f A", current), styles.Text)+bg.Spaces(2)+
					bg.Render(fmt.Sprintf("%.3f Ah", ah), styles.Text))
		}
	}

	if m.gateway != nil {
		if n := m.gateway.PendingCount(); n > 0 {
			parts = append(parts, bg.Render(fmt.Sprintf("%d unsaved", n), styles.WarningText))
		}
	}

	if ts := formatUpdated(m.snapshot.LastUpdated, time.Now()); ts != "" {
		parts = append(parts, bg.Render(ts, styles.MutedText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

func (m Model) host() string {
	if m.config == nil {
		return ""
	}
	return m.config.Host
}

// formatUpdated shows when the controller last sent data, with a relative hint.
func formatUpdated(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	s := t.Format("15:04:05")
	switch since := now.Sub(t); {
	case since < 10*time.Second:
		return s
	case since < time.Minute:
		return s + fmt.Sprintf(" (%ds ago)", int(since.Seconds()))
	case since < time.Hour:
		return s + fmt.Sprintf(" (%dm ago)", int(since.Minutes()))
	default:
		return s + fmt.Sprintf(" (%dh ago)", int(since.Hours()))
	}
}

// classifyConnectionError returns a short description of the connection error.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "OFFLINE"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "TIMEOUT"
	case strings.Contains(msg, "no route to host"), strings.Contains(msg, "network is unreachable"):
		return "UNREACHABLE"
	default:
		return "ERROR"
	}
}

type hint struct{ key, desc string }

// renderCommandBar renders the key hints for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	var hints []hint
	switch m.currentView {
	case ViewConfig:
		if m.form.editing {
			hints = []hint{{"enter", "Apply"}, {"esc", "Cancel"}}
		} else {
			hints = []hint{{"j/k", "Navigate"}, {"enter", "Edit"}, {"s", "Save"}, {"b", "Batteries"}, {"l", "Device log"}, {"?", "More"}}
		}
	case ViewDeviceLog:
		hints = []hint{{"j/k", "Scroll"}, {"g/G", "Top/Bottom"}, {"r", "Reload"}, {"b", "Batteries"}, {"L", "Client log"}, {"?", "More"}}
	case ViewClientLog:
		follow := "Pause"
		if !m.clientLog.follow {
			follow = "Follow"
		}
		hints = []hint{{"Space", follow}, {"j/k", "Scroll"}, {"b", "Batteries"}, {"l", "Device log"}, {"?", "More"}}
	default:
		hints = []hint{{"j/k", "Navigate"}, {"o", "On"}, {"x", "Off"}, {"c", "Config"}, {"l", "Device log"}, {"y", "Copy"}, {"?", "More"}}
	}

	colon := bg.Sep(":")
	segments := make([]string, 0, len(hints)+1)
	for _, h := range hints {
		segments = append(segments, bg.Render(h.key, styles.AccentText)+colon+bg.Render(h.desc, styles.MutedText))
	}
	segments = append(segments, bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, bg.Spaces(2)))
}

// renderStatusLine shows the latest flash message, or the view name.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles().WithBackground(m.theme.Background)
	bg := NewBgStyle(m.theme.Background)

	var line string
	switch {
	case m.flash.text != "" && m.flash.isErr:
		line = bg.Render(truncate(m.flash.text, max(m.width-2, 10)), styles.DangerText)
	case m.flash.text != "":
		line = bg.Render(truncate(m.flash.text, max(m.width-2, 10)), styles.SuccessText)
	default:
		line = bg.Render(m.currentView.String(), styles.FaintText)
		if m.snapshot.IgnoredKeys > 0 {
			line += bg.Spaces(2) + bg.Render(fmt.Sprintf("%d unknown field(s) ignored", m.snapshot.IgnoredKeys), styles.FaintText)
		}
	}
	return bg.FillLine(bg.Space()+line, m.width)
}

// truncate shortens a string to the given limit, adding ellipsis if needed.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// truncateMiddle keeps the start and the end of a path.
func truncateMiddle(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || value == "" {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 5 {
		return string(runes[:limit])
	}
	keep := limit - 3
	suffix := keep * 2 / 3
	prefix := keep - suffix
	return string(runes[:prefix]) + "..." + string(runes[len(runes)-suffix:])
}
