package ui

import (
	"encoding/json"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/battdash/internal/state"
)

// clipboardWrite is swapped out in tests.
var clipboardWrite = clipboard.WriteAll

type yankResultMsg struct{ err error }

// yankCmd copies the current snapshot to the system clipboard as JSON.
func yankCmd(snap state.Snapshot) tea.Cmd {
	return func() tea.Msg {
		data, err := json.MarshalIndent(snap.Export(), "", "  ")
		if err != nil {
			return yankResultMsg{err: err}
		}
		return yankResultMsg{err: clipboardWrite(string(data))}
	}
}
