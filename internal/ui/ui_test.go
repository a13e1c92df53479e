package ui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/battdash/internal/config"
	"github.com/five82/battdash/internal/device"
	"github.com/five82/battdash/internal/state"
)

type fakeCommander struct {
	mu      sync.Mutex
	pending map[string]string
	saved   int
	saveErr error
}

func (f *fakeCommander) UpdateConf(field, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = make(map[string]string)
	}
	f.pending[field] = value
}

func (f *fakeCommander) PendingValue(field string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.pending[field]
	return v, ok
}

func (f *fakeCommander) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeCommander) SaveConf(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved += len(f.pending)
	f.pending = nil
	return nil
}

func (f *fakeCommander) Refresh(context.Context) error { return nil }

type switchCall struct {
	battery int
	on      bool
}

type fakeController struct {
	calls   []switchCall
	records []device.LogRecord
}

func (f *fakeController) SwitchOn(_ context.Context, battery int) (string, error) {
	f.calls = append(f.calls, switchCall{battery, true})
	return "Switched on battery", nil
}

func (f *fakeController) SwitchOff(_ context.Context, battery int) (string, error) {
	f.calls = append(f.calls, switchCall{battery, false})
	return "Switched off battery", nil
}

func (f *fakeController) FetchLog(context.Context) ([]device.LogRecord, error) {
	return f.records, nil
}

type testEnv struct {
	model Model
	store *state.Store
	gw    *fakeCommander
	ctrl  *fakeController
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "battdash.log")
	env := &testEnv{
		store: state.NewStore(cfg.Fields),
		gw:    &fakeCommander{},
		ctrl:  &fakeController{},
	}
	opts.Store = env.store
	opts.Gateway = env.gw
	opts.Controller = env.ctrl
	opts.Config = &cfg
	env.model = New(opts)
	env.update(t, tea.WindowSizeMsg{Width: 120, Height: 40})
	return env
}

func (e *testEnv) update(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := e.model.Update(msg)
	m, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	e.model = m
	return cmd
}

func (e *testEnv) sync(t *testing.T) {
	t.Helper()
	e.update(t, snapshotMsg(e.store.Snapshot()))
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestParseView(t *testing.T) {
	tests := []struct {
		in   string
		want View
	}{
		{"", ViewBatteries},
		{"config", ViewConfig},
		{" Device-Log ", ViewDeviceLog},
		{"client-log", ViewClientLog},
		{"queue", ViewBatteries},
	}
	for _, tt := range tests {
		if got := ParseView(tt.in); got != tt.want {
			t.Fatalf("ParseView(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, v := range []View{ViewBatteries, ViewConfig, ViewDeviceLog, ViewClientLog} {
		if got := ParseView(v.String()); got != v {
			t.Fatalf("ParseView(%q) = %v, want %v", v.String(), got, v)
		}
	}
}

func TestConfigEditRecordsPendingValue(t *testing.T) {
	env := newTestEnv(t, Options{View: "config"})
	env.store.ApplyFields(map[string]string{"slider1": "10"})
	env.sync(t)

	env.update(t, tea.KeyMsg{Type: tea.KeyEnter})
	if !env.model.form.editing {
		t.Fatal("enter did not start editing")
	}
	if got := env.model.form.input.Value(); got != "10" {
		t.Fatalf("edit buffer = %q, want current value 10", got)
	}

	env.model.form.input.SetValue("99")
	env.update(t, tea.KeyMsg{Type: tea.KeyEnter})
	if !env.model.form.editing || env.model.form.err == "" {
		t.Fatal("out of range value should keep the editor open with an error")
	}

	env.model.form.input.SetValue("30")
	env.update(t, tea.KeyMsg{Type: tea.KeyEnter})
	if env.model.form.editing {
		t.Fatal("valid value should close the editor")
	}
	if v, ok := env.gw.PendingValue("slider1"); !ok || v != "30" {
		t.Fatalf("pending slider1 = %q, %v; want 30", v, ok)
	}
	if !strings.Contains(env.model.View(), "→ 30") {
		t.Fatal("pending value not shown in configuration view")
	}
}

func TestSaveRequiresOpenConnection(t *testing.T) {
	env := newTestEnv(t, Options{View: "config"})
	env.gw.UpdateConf("max_current", "2")

	env.store.SetConnection(state.Disconnected, errors.New("dial tcp: connection refused"))
	env.sync(t)
	cmd := env.update(t, runeKey("s"))
	if cmd == nil {
		t.Fatal("save produced no command")
	}
	msg, ok := cmd().(flashMsg)
	if !ok || !msg.isErr {
		t.Fatalf("save while disconnected = %#v, want error flash", msg)
	}
	if env.gw.PendingCount() != 1 {
		t.Fatal("pending edits dropped while disconnected")
	}

	env.store.SetConnection(state.Open, nil)
	env.sync(t)
	cmd = env.update(t, runeKey("s"))
	res, ok := cmd().(saveResultMsg)
	if !ok || res.err != nil || res.count != 1 {
		t.Fatalf("save while open = %#v, want one change sent", res)
	}
	env.update(t, res)
	if env.gw.saved != 1 || env.model.flash.isErr {
		t.Fatalf("saved = %d, flash = %+v", env.gw.saved, env.model.flash)
	}
}

func TestSaveWithoutChanges(t *testing.T) {
	env := newTestEnv(t, Options{View: "config"})
	cmd := env.update(t, runeKey("s"))
	msg, ok := cmd().(flashMsg)
	if !ok || msg.isErr || !strings.Contains(msg.text, "No pending") {
		t.Fatalf("save with nothing pending = %#v", msg)
	}
}

func TestSwitchKeysUseSelectedBattery(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.store.SetConnection(state.Open, nil)
	env.store.ApplyStatus(device.StatusSnapshot{
		Batteries: []device.BatteryStatus{
			{Index: 1, Voltage: 26.1, LedStatus: "green"},
			{Index: 2, Voltage: 25.8, LedStatus: "red"},
		},
	})
	env.sync(t)

	env.update(t, runeKey("j"))
	cmd := env.update(t, runeKey("o"))
	res, ok := cmd().(switchResultMsg)
	if !ok {
		t.Fatal("switch key did not produce a switch result")
	}
	if len(env.ctrl.calls) != 1 || env.ctrl.calls[0] != (switchCall{2, true}) {
		t.Fatalf("controller calls = %+v, want on for battery 2", env.ctrl.calls)
	}

	if cmd := env.update(t, res); cmd == nil {
		t.Fatal("successful switch should request fresh values")
	}
	if env.model.flash.text != "Switched on battery" {
		t.Fatalf("flash = %q", env.model.flash.text)
	}

	env.update(t, runeKey("x"))
	// The command is not run here; only the key handling matters.
	if env.model.selectedBattery != 1 {
		t.Fatalf("selectedBattery = %d, want 1", env.model.selectedBattery)
	}
}

func TestRestartNoticeTakesOverScreen(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.store.ShowRestartNotice("Saving & Restarting ...")
	env.sync(t)

	if !strings.Contains(env.model.View(), "Saving & Restarting ...") {
		t.Fatal("restart notice not rendered")
	}
	if cmd := env.update(t, runeKey("c")); cmd != nil || env.model.currentView != ViewBatteries {
		t.Fatal("keys should be ignored while restarting")
	}
	if cmd := env.update(t, tea.KeyMsg{Type: tea.KeyCtrlC}); cmd == nil {
		t.Fatal("ctrl+c should still quit while restarting")
	}
}

func TestCycleThemePersistsPrefs(t *testing.T) {
	prefsPath := filepath.Join(t.TempDir(), "prefs.toml")
	env := newTestEnv(t, Options{ThemeName: "Dracula", PrefsPath: prefsPath})

	env.update(t, runeKey("T"))
	if env.model.theme.Name != "Nightfox" {
		t.Fatalf("theme = %q, want Nightfox", env.model.theme.Name)
	}
	env.update(t, runeKey("c"))

	prefs := config.LoadPrefs(prefsPath)
	if prefs.Theme != "Nightfox" || prefs.View != "config" {
		t.Fatalf("prefs = %+v, want Nightfox/config", prefs)
	}
}

func TestDeviceLogFetchedOnEntry(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.ctrl.records = []device.LogRecord{
		{Cells: []string{"Uptime", "Battery"}},
		{Valid: true, Battery: 3, Voltage: 26.2, SwitchOn: true},
	}

	cmd := env.update(t, runeKey("l"))
	if cmd == nil || !env.model.deviceLog.loading {
		t.Fatal("entering the device log should start a fetch")
	}
	env.update(t, cmd())
	if env.model.deviceLog.loading || len(env.model.deviceLog.records) != 2 {
		t.Fatalf("device log state = %+v", env.model.deviceLog)
	}

	// A second visit reuses the fetched rows.
	env.update(t, runeKey("b"))
	if cmd := env.update(t, runeKey("l")); cmd != nil {
		t.Fatal("device log refetched without r")
	}
}

func TestYankCopiesSnapshotJSON(t *testing.T) {
	var copied string
	orig := clipboardWrite
	clipboardWrite = func(s string) error {
		copied = s
		return nil
	}
	t.Cleanup(func() { clipboardWrite = orig })

	env := newTestEnv(t, Options{})
	env.store.SetConnection(state.Open, nil)
	env.store.ApplyFields(map[string]string{"max_current": "1"})
	env.sync(t)

	cmd := env.update(t, runeKey("y"))
	env.update(t, cmd())
	if !strings.Contains(copied, `"connection": "open"`) || !strings.Contains(copied, `"max_current": "1"`) {
		t.Fatalf("clipboard = %s", copied)
	}
	if env.model.flash.isErr {
		t.Fatalf("flash = %+v", env.model.flash)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		secs int
		want string
	}{
		{0, "0:00:00"},
		{3725, "1:02:05"},
		{90061, "1d 01:01:01"},
	}
	for _, tt := range tests {
		if got := formatUptime(secondsDur(tt.secs)); got != tt.want {
			t.Fatalf("formatUptime(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestClassifyConnectionError(t *testing.T) {
	tests := map[string]string{
		"dial tcp 192.168.4.1:80: connect: connection refused": "OFFLINE",
		"dial tcp: lookup esp: no such host":                    "HOST NOT FOUND",
		"dial ws://x/ws: context deadline exceeded":             "TIMEOUT",
		"unexpected EOF":                                        "ERROR",
	}
	for msg, want := range tests {
		if got := classifyConnectionError(errors.New(msg)); got != want {
			t.Fatalf("classifyConnectionError(%q) = %q, want %q", msg, got, want)
		}
	}
}

func TestThemeLookups(t *testing.T) {
	if got := GetTheme("missing").Name; got != "Dracula" {
		t.Fatalf("GetTheme fallback = %q", got)
	}
	names := ThemeNames()
	if got := NextTheme(names[len(names)-1]); got != names[0] {
		t.Fatalf("NextTheme wraps to %q, want %q", got, names[0])
	}
	for _, name := range names {
		th := GetTheme(name)
		for _, conn := range []state.ConnState{state.Disconnected, state.Connecting, state.Open, state.Restarting} {
			if th.ConnColors[conn.String()] == "" {
				t.Fatalf("theme %s has no color for %s", name, conn)
			}
		}
	}
}

func secondsDur(n int) time.Duration { return time.Duration(n) * time.Second }

func TestBatteriesViewRendersStatusFrame(t *testing.T) {
	env := newTestEnv(t, Options{})
	msg, err := device.Decode(`{"batteryStatus":[{"index":1,"voltage":12.1,"current":0.5,"ampereHour":100,"ledStatus":"green"}]}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	env.store.ApplyStatus(msg.Status)
	env.sync(t)

	view := env.model.View()
	if got := strings.Count(view, "● ON") + strings.Count(view, "● OFF"); got != 1 {
		t.Fatalf("rendered %d battery rows, want 1:\n%s", got, view)
	}
	var row string
	for _, line := range strings.Split(view, "\n") {
		if strings.Contains(line, "● ON") {
			row = line
		}
	}
	for _, want := range []string{"12.10 V", "0.50 A", "100.000 Ah"} {
		if !strings.Contains(row, want) {
			t.Errorf("battery row %q missing %q", row, want)
		}
	}
	if !strings.Contains(view, "Batteries (1)") {
		t.Errorf("view missing battery count title:\n%s", view)
	}

	// The next status frame replaces the list rather than merging into it.
	env.store.ApplyStatus(device.StatusSnapshot{})
	env.sync(t)
	view = env.model.View()
	if strings.Contains(view, "● ON") || strings.Contains(view, "12.10 V") {
		t.Fatalf("empty status frame left the old battery on screen:\n%s", view)
	}
	if !strings.Contains(view, "Batteries (0)") {
		t.Fatalf("view missing empty battery title:\n%s", view)
	}
}

func TestColorizeLogLineKeepsConsoleTokens(t *testing.T) {
	env := newTestEnv(t, Options{})
	styles := env.model.theme.Styles().WithBackground(env.model.theme.FocusBg)
	bg := NewBgStyle(env.model.theme.FocusBg)

	line := "2026-10-16 09:14:02 WRN [gateway] gateway dial failed error=refused"
	got := env.model.colorizeLogLine(line, styles, bg)
	for _, want := range []string{"2026-10-16 09:14:02", "WRN", "[gateway]", "gateway dial failed error=refused"} {
		if !strings.Contains(got, want) {
			t.Errorf("colorizeLogLine() = %q, missing %q", got, want)
		}
	}
	if m := levelRe.FindStringSubmatch(" INF [ui] x"); m == nil || m[1] != "INF" {
		t.Errorf("levelRe did not match INF: %v", m)
	}
	if levelStyle("ERR", styles).GetForeground() != styles.DangerText.GetForeground() {
		t.Errorf("ERR not styled as danger")
	}
}

func TestBatteryTotalsSumsEveryBattery(t *testing.T) {
	on, current, ah := batteryTotals([]device.BatteryStatus{
		{Index: 0, Current: 1.5, AmpereHour: 2, LedStatus: "green"},
		{Index: 1, Current: 0.5, AmpereHour: 1, LedStatus: "red"},
	})
	if on != 1 || current != 2 || ah != 3 {
		t.Fatalf("batteryTotals = %d, %v, %v; want 1, 2, 3", on, current, ah)
	}
}
