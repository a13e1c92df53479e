package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/config"
	"github.com/five82/battdash/internal/device"
	"github.com/five82/battdash/internal/state"
	"github.com/five82/battdash/internal/ui"
)

// Options configure the battdash application.
type Options struct {
	ConfigPath string
	PrefsPath  string        // empty uses default ~/.config/battdash/prefs.toml
	Host       string        // overrides the configured controller host
	LogLevel   string        // zerolog level name; empty means info
	PollEvery  time.Duration // getValues cadence; zero uses default
	Theme      string        // overrides the saved theme
	View       string        // overrides the saved view

	// LogWriter receives console logs for the non-interactive commands.
	// Nil means stderr.
	LogWriter io.Writer
}

// LoadConfig reads the config file and applies command line overrides.
func LoadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if host := config.NormalizeHost(opts.Host); host != "" {
		cfg.Host = host
	}
	return cfg, nil
}

// Run boots the battdash TUI until the user quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	level, err := ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}

	userPrefs := config.LoadPrefs(opts.PrefsPath)
	theme, view := userPrefs.Theme, userPrefs.View
	if strings.TrimSpace(opts.Theme) != "" {
		theme = opts.Theme
	}
	if strings.TrimSpace(opts.View) != "" {
		view = opts.View
	}

	// The terminal belongs to Bubble Tea, so logs go to a file the client
	// log view can tail.
	logger, closeLog, err := NewFileLogger(cfg.LogFile, level)
	if err != nil {
		return err
	}
	defer closeLog()

	controller, err := device.NewClient(cfg.BaseURL())
	if err != nil {
		return fmt.Errorf("init controller client: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := startSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	StartPoller(ctx, sess.gateway, pollInterval(opts), logger)

	logger.Info().Str("host", cfg.Host).Str("log_file", cfg.LogFile).Msg("battdash started")

	uiErr := ui.Run(ui.Options{
		Context:    ctx,
		Gateway:    sess.gateway,
		Controller: controller,
		Store:      sess.store,
		Config:     &cfg,
		Logger:     logger,
		PollTick:   ui.DefaultUIInterval,
		ThemeName:  theme,
		View:       view,
		PrefsPath:  opts.PrefsPath,
	})
	cancel()
	if err := sess.wait(); err != nil && uiErr == nil {
		return err
	}
	logger.Info().Msg("battdash stopped")
	return uiErr
}

// Switch turns one battery on or off over the HTTP side channel.
func Switch(ctx context.Context, opts Options, battery int, on bool) (string, error) {
	controller, err := newController(opts)
	if err != nil {
		return "", err
	}
	if on {
		return controller.SwitchOn(ctx, battery)
	}
	return controller.SwitchOff(ctx, battery)
}

// DeviceLog downloads the controller's SD card log.
func DeviceLog(ctx context.Context, opts Options) ([]device.LogRecord, error) {
	controller, err := newController(opts)
	if err != nil {
		return nil, err
	}
	return controller.FetchLog(ctx)
}

func newController(opts Options) (*device.Client, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	controller, err := device.NewClient(cfg.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("init controller client: %w", err)
	}
	return controller, nil
}

func consoleLogger(opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.LogLevel)
	if err != nil {
		return zerolog.Nop(), err
	}
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	return NewConsoleLogger(w, level), nil
}

func pollInterval(opts Options) time.Duration {
	if opts.PollEvery > 0 {
		return opts.PollEvery
	}
	return defaultPollInterval
}

// batteryEvent logs one battery line in a form that reads well on a console.
func batteryEvent(logger zerolog.Logger, b device.BatteryStatus) {
	logger.Info().
		Int("battery", b.Index).
		Float64("voltage", b.Voltage).
		Float64("current", b.Current).
		Float64("ampere_hour", b.AmpereHour).
		Bool("on", b.On()).
		Msg("battery status")
}

func connected(s state.Snapshot) bool { return s.Conn == state.Open }
