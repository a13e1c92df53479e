package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Field describes one editable setting exposed by the controller.
type Field struct {
	ID    string  `toml:"id"`
	Label string  `toml:"label"`
	Unit  string  `toml:"unit"`
	Min   float64 `toml:"min"`
	Max   float64 `toml:"max"`
}

// IsSlider reports whether the field is rendered as a slider (label plus control).
func (f Field) IsSlider() bool {
	return strings.HasPrefix(f.ID, "slider")
}

// Validate checks value against the field's declared range. Fields without a
// range accept any non-empty text.
func (f Field) Validate(value string) error {
	if value == "" {
		return errors.New("value required")
	}
	if f.Max <= f.Min {
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", value)
	}
	if v < f.Min || v > f.Max {
		return fmt.Errorf("must be between %s and %s",
			strconv.FormatFloat(f.Min, 'f', -1, 64), strconv.FormatFloat(f.Max, 'f', -1, 64))
	}
	return nil
}

// Config captures everything battdash needs to reach and describe the controller.
type Config struct {
	Host           string
	ReconnectDelay time.Duration
	ReloadDelay    time.Duration
	LogFile        string
	Fields         []Field
}

const (
	defaultConfigPath     = "~/.config/battdash/config.toml"
	defaultLogFile        = "~/.local/state/battdash/battdash.log"
	defaultHost           = "192.168.4.1"
	defaultReconnectDelay = 5 * time.Second
	defaultReloadDelay    = time.Second
)

// DefaultFields mirrors the thresholds compiled into the controller firmware.
func DefaultFields() []Field {
	return []Field{
		{ID: "slider1", Label: "Log interval", Unit: "s", Min: 1, Max: 60},
		{ID: "min_voltage", Label: "Undervoltage cut-off", Unit: "mV", Min: 0, Max: 60000},
		{ID: "max_voltage", Label: "Overvoltage cut-off", Unit: "mV", Min: 0, Max: 60000},
		{ID: "max_current", Label: "Overcurrent cut-off", Unit: "A", Min: 0, Max: 100},
		{ID: "reconnect_delay", Label: "Battery reconnect delay", Unit: "ms", Min: 0, Max: 600000},
		{ID: "voltage_diff", Label: "Max voltage spread", Unit: "V", Min: 0, Max: 10},
		{ID: "current_diff", Label: "Max current spread", Unit: "A", Min: 0, Max: 10},
		{ID: "nb_switch_max", Label: "Switch cycles before lockout", Min: 0, Max: 100},
	}
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Host:           defaultHost,
		ReconnectDelay: defaultReconnectDelay,
		ReloadDelay:    defaultReloadDelay,
		LogFile:        mustExpand(defaultLogFile),
		Fields:         DefaultFields(),
	}
}

// Load locates and parses the battdash config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Host             string  `toml:"host"`
		ReconnectDelayMS int64   `toml:"reconnect_delay_ms"`
		ReloadDelayMS    int64   `toml:"reload_delay_ms"`
		LogFile          string  `toml:"log_file"`
		Fields           []Field `toml:"fields"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if host := NormalizeHost(raw.Host); host != "" {
		cfg.Host = host
	}
	if raw.ReconnectDelayMS > 0 {
		cfg.ReconnectDelay = time.Duration(raw.ReconnectDelayMS) * time.Millisecond
	}
	if raw.ReloadDelayMS > 0 {
		cfg.ReloadDelay = time.Duration(raw.ReloadDelayMS) * time.Millisecond
	}
	if logFile := strings.TrimSpace(raw.LogFile); logFile != "" {
		cfg.LogFile = mustExpand(logFile)
	}
	if len(raw.Fields) > 0 {
		fields, err := normalizeFields(raw.Fields)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		cfg.Fields = fields
	}

	return cfg, nil
}

// GatewayURL returns the controller's real-time endpoint.
func (c Config) GatewayURL() string {
	return "ws://" + c.hostOrDefault() + "/ws"
}

// BaseURL returns the controller's plain HTTP root used by the switch and log endpoints.
func (c Config) BaseURL() string {
	return "http://" + c.hostOrDefault()
}

// Field returns the registered field with the given identifier.
func (c Config) Field(id string) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func (c Config) hostOrDefault() string {
	if host := NormalizeHost(c.Host); host != "" {
		return host
	}
	return defaultHost
}

// NormalizeHost strips any scheme, path, or surrounding whitespace from a host value
// so "http://10.0.0.7/" and "10.0.0.7" resolve to the same gateway.
func NormalizeHost(host string) string {
	trimmed := strings.TrimSpace(host)
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	if i := strings.IndexAny(trimmed, "/?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}

func normalizeFields(fields []Field) ([]Field, error) {
	seen := make(map[string]bool, len(fields))
	out := make([]Field, 0, len(fields))
	for i, f := range fields {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			return nil, fmt.Errorf("field %d has no id", i+1)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("field %q declared twice", f.ID)
		}
		seen[f.ID] = true
		f.Label = strings.TrimSpace(f.Label)
		if f.Label == "" {
			f.Label = f.ID
		}
		if f.Max < f.Min {
			f.Min, f.Max = f.Max, f.Min
		}
		out = append(out, f)
	}
	return out, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
