package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/config"
	"github.com/five82/battdash/internal/device"
	"github.com/five82/battdash/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewBatteries View = iota
	ViewConfig
	ViewDeviceLog
	ViewClientLog
)

var viewNames = []string{"batteries", "config", "device-log", "client-log"}

func (v View) String() string {
	if int(v) < len(viewNames) {
		return viewNames[v]
	}
	return viewNames[0]
}

// ParseView maps a stored view name back to a View. Unknown names give ViewBatteries.
func ParseView(name string) View {
	for i, n := range viewNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return View(i)
		}
	}
	return ViewBatteries
}

// Commander is the part of the gateway client the UI drives.
type Commander interface {
	UpdateConf(field, value string)
	PendingValue(field string) (string, bool)
	PendingCount() int
	SaveConf(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Gateway    Commander
	Controller device.Controller
	Store      *state.Store
	Config     *config.Config
	Logger     zerolog.Logger
	PollTick   time.Duration
	ThemeName  string
	View       string
	PrefsPath  string
}

type flashMessage struct {
	text  string
	isErr bool
	at    time.Time
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx        context.Context
	gateway    Commander
	controller device.Controller
	store      *state.Store
	config     *config.Config
	log        zerolog.Logger
	prefsPath  string
	pollTick   time.Duration
	keys       keyMap

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool
	flash       flashMessage

	// Data state
	snapshot    state.Snapshot
	lastUpdated time.Time

	selectedBattery int
	form            formState
	deviceLog       deviceLogState
	clientLog       clientLogState
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = DefaultUIInterval
	}

	m := Model{
		ctx:         ctx,
		gateway:     opts.Gateway,
		controller:  opts.Controller,
		store:       opts.Store,
		config:      opts.Config,
		log:         opts.Logger.With().Str("component", "ui").Logger(),
		prefsPath:   opts.PrefsPath,
		pollTick:    pollTick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(opts.ThemeName),
		currentView: ParseView(opts.View),
		clientLog:   clientLogState{follow: true},
	}
	m.form.input = newFormInput()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if cmd := m.viewEnteredCmd(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeViewports()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = time.Now()
		m.clampSelections()
		return m, nil

	case switchResultMsg:
		return m.handleSwitchResult(msg)

	case saveResultMsg:
		m.handleSaveResult(msg)
		return m, nil

	case flashMsg:
		m.setFlash(msg.text, msg.isErr)
		return m, nil

	case refreshResultMsg:
		if msg.err != nil {
			m.setFlash("Refresh failed: "+msg.err.Error(), true)
		}
		return m, nil

	case deviceLogMsg:
		m.handleDeviceLog(msg)
		return m, nil

	case clientLogMsg:
		m.handleClientLog(msg)
		return m, nil

	case yankResultMsg:
		if msg.err != nil {
			m.setFlash("Copy failed: "+msg.err.Error(), true)
		} else {
			m.setFlash("Snapshot copied to clipboard", false)
		}
		return m, nil
	}

	// Cursor blink and other input internals while editing.
	if m.form.editing {
		var cmd tea.Cmd
		m.form.input, cmd = m.form.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.snapshot.Restarting() {
		return m.renderRestartNotice()
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	// The controller is rebooting; nothing but quit makes sense.
	if m.snapshot.Restarting() {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	if m.form.editing {
		return m.handleFormEditKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		m.resizeViewports()
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		return m.setView(View((int(m.currentView) + 1) % len(viewNames)))
	case key.Matches(msg, m.keys.ShiftTab):
		return m.setView(View((int(m.currentView) + len(viewNames) - 1) % len(viewNames)))
	case key.Matches(msg, m.keys.ViewBatteries), key.Matches(msg, m.keys.Escape):
		return m.setView(ViewBatteries)
	case key.Matches(msg, m.keys.ViewConfig):
		return m.setView(ViewConfig)
	case key.Matches(msg, m.keys.ViewDeviceLog):
		return m.setView(ViewDeviceLog)
	case key.Matches(msg, m.keys.ViewClientLog):
		return m.setView(ViewClientLog)
	case key.Matches(msg, m.keys.Refresh):
		cmds := []tea.Cmd{m.refreshCmd()}
		if m.currentView == ViewDeviceLog {
			cmds = append(cmds, m.fetchDeviceLogCmd())
		}
		return m, tea.Batch(cmds...)
	case key.Matches(msg, m.keys.Yank):
		return m, yankCmd(m.snapshot)
	}

	switch m.currentView {
	case ViewBatteries:
		return m.handleBatteriesKey(msg)
	case ViewConfig:
		return m.handleConfigKey(msg)
	case ViewDeviceLog:
		return m.handleDeviceLogKey(msg)
	case ViewClientLog:
		return m.handleClientLogKey(msg)
	}
	return m, nil
}

// setView switches views, persists the choice and loads data the view needs.
func (m Model) setView(v View) (tea.Model, tea.Cmd) {
	if v == m.currentView {
		return m, nil
	}
	m.currentView = v
	m.savePrefs()
	cmd := m.viewEnteredCmd()
	return m, cmd
}

func (m *Model) viewEnteredCmd() tea.Cmd {
	switch m.currentView {
	case ViewDeviceLog:
		if m.deviceLog.fetchedAt.IsZero() && !m.deviceLog.loading {
			m.deviceLog.loading = true
			return m.fetchDeviceLogCmd()
		}
	case ViewClientLog:
		return m.readClientLogCmd()
	}
	return nil
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	prefs := config.Prefs{Theme: m.theme.Name, View: m.currentView.String()}
	if err := config.SavePrefs(m.prefsPath, prefs); err != nil {
		m.log.Warn().Err(err).Msg("save prefs")
	}
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = flashMessage{text: text, isErr: isErr, at: time.Now()}
	if isErr {
		m.log.Warn().Msg(text)
	} else {
		m.log.Info().Msg(text)
	}
}

func (m *Model) clampSelections() {
	if n := len(m.snapshot.Batteries); m.selectedBattery >= n {
		m.selectedBattery = max(n-1, 0)
	}
	if n := len(m.snapshot.Fields); m.form.selected >= n {
		m.form.selected = max(n-1, 0)
	}
}

func (m *Model) resizeViewports() {
	if !m.ready {
		return
	}
	m.resizeDeviceLog()
	m.resizeClientLog()
}

// contentHeight is the outer height of the content box: everything below the
// header and command bar, minus the status line.
func (m Model) contentHeight() int {
	return max(m.height-3, 3)
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewClientLog && m.clientLog.follow {
		cmds = append(cmds, m.readClientLogCmd())
	}
	if !m.flash.at.IsZero() && time.Since(m.flash.at) > FlashLifetime {
		m.flash = flashMessage{}
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	return b.String()
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewConfig:
		return m.renderConfig()
	case ViewDeviceLog:
		return m.renderDeviceLog()
	case ViewClientLog:
		return m.renderClientLog()
	default:
		return m.renderBatteries()
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type refreshResultMsg struct{ err error }

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func (m Model) refreshCmd() tea.Cmd {
	if m.gateway == nil {
		return nil
	}
	gw, parent := m.gateway, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, RequestTimeout)
		defer cancel()
		return refreshResultMsg{err: gw.Refresh(ctx)}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}
