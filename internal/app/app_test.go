package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/config"
	"github.com/five82/battdash/internal/device"
	"github.com/five82/battdash/internal/devicesim"
	"github.com/five82/battdash/internal/gateway"
	"github.com/five82/battdash/internal/logtail"
	"github.com/five82/battdash/internal/state"
)

func newSimOptions(t *testing.T, simOpts devicesim.Options) (*devicesim.Server, Options) {
	t.Helper()
	sim := devicesim.New(simOpts)
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)
	return sim, Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Host:       srv.URL,
		LogWriter:  io.Discard,
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"loud", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFileLoggerWritesParsableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "battdash.log")
	logger, closeLog, err := NewFileLogger(path, zerolog.InfoLevel)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "gateway").Msg("connected")
	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines, err := logtail.Read(path, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("lines = %q, want only the info line", lines)
	}
	if got := logtail.Format(lines[0]); !strings.HasSuffix(got, "INF [gateway] connected") {
		t.Fatalf("Format(%q) = %q", lines[0], got)
	}
}

func TestLoadConfigAppliesHostOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`host = "10.0.0.5"`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Host != "10.0.0.5" {
		t.Fatalf("Host = %q", cfg.Host)
	}
	cfg, err = LoadConfig(Options{ConfigPath: path, Host: "http://192.168.4.20/"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.GatewayURL() != "ws://192.168.4.20/ws" {
		t.Fatalf("GatewayURL = %q", cfg.GatewayURL())
	}
}

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestPollerRefreshesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &countingRefresher{}
	StartPoller(ctx, r, 10*time.Millisecond, zerolog.Nop())

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("poller made %d calls", r.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	time.Sleep(30 * time.Millisecond)
	stopped := r.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := r.calls.Load(); got != stopped {
		t.Fatalf("poller kept running after cancel: %d -> %d", stopped, got)
	}
}

func TestPollQuietWhileDisconnected(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	poll(context.Background(), &countingRefresher{err: gateway.ErrNotConnected}, time.Second, logger)
	poll(context.Background(), &countingRefresher{err: gateway.ErrRestarting}, time.Second, logger)
	if buf.Len() != 0 {
		t.Fatalf("expected no log output, got %s", buf.String())
	}

	poll(context.Background(), &countingRefresher{err: errors.New("write: broken pipe")}, time.Second, logger)
	if !strings.Contains(buf.String(), "values poll failed") {
		t.Fatalf("unexpected error not logged: %s", buf.String())
	}
}

func TestSnapshotAgainstSimulator(t *testing.T) {
	_, opts := newSimOptions(t, devicesim.Options{Batteries: 3})

	snap, err := Snapshot(context.Background(), opts, 5*time.Second)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Batteries) != 3 {
		t.Fatalf("batteries = %d, want 3", len(snap.Batteries))
	}
	export := snap.Export()
	if export.Fields["slider1"] != "10" || export.Fields["max_current"] != "1" {
		t.Fatalf("fields = %v", export.Fields)
	}
}

func TestSnapshotTimesOutWithoutController(t *testing.T) {
	opts := Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Host:       "127.0.0.1:1",
		LogWriter:  io.Discard,
	}
	_, err := Snapshot(context.Background(), opts, 200*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Snapshot err = %v, want deadline exceeded", err)
	}
}

func TestSetSendsConfAndWaitsForRestart(t *testing.T) {
	sim, opts := newSimOptions(t, devicesim.Options{RebootDelay: 50 * time.Millisecond})

	err := Set(context.Background(), opts, map[string]string{"slider1": "30", "max_current": "2"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	fields := sim.Fields()
	if fields["slider1"] != "30" || fields["max_current"] != "2" {
		t.Fatalf("simulator fields = %v", fields)
	}
}

func TestSetValidatesBeforeConnecting(t *testing.T) {
	opts := Options{ConfigPath: filepath.Join(t.TempDir(), "missing.toml"), LogWriter: io.Discard}

	err := Set(context.Background(), opts, map[string]string{"wifi_password": "x"}, time.Second)
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("Set unknown field err = %v", err)
	}
	err = Set(context.Background(), opts, map[string]string{"slider1": "600"}, time.Second)
	if err == nil || !strings.Contains(err.Error(), "slider1") {
		t.Fatalf("Set out of range err = %v", err)
	}
	if err := Set(context.Background(), opts, nil, time.Second); err == nil {
		t.Fatal("Set with no edits should fail")
	}
}

func TestSwitchAndDeviceLogAgainstSimulator(t *testing.T) {
	sim, opts := newSimOptions(t, devicesim.Options{Batteries: 2})
	ctx := context.Background()

	reply, err := Switch(ctx, opts, 1, false)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if reply != "Switched off battery 1" {
		t.Fatalf("reply = %q", reply)
	}
	if sim.Status().Batteries[1].On() {
		t.Fatal("battery 1 still on")
	}

	sim.Step(time.Second)
	records, err := DeviceLog(ctx, opts)
	if err != nil {
		t.Fatalf("DeviceLog: %v", err)
	}
	valid := 0
	for _, r := range records {
		if r.Valid {
			valid++
		}
	}
	// One row for the switch, one per battery for the step.
	if valid != 3 {
		t.Fatalf("valid log rows = %d, want 3", valid)
	}
}

func TestReporterLogsChanges(t *testing.T) {
	var buf bytes.Buffer
	rep := newReporter(zerolog.New(&buf))

	store := state.NewStore(config.DefaultFields())
	store.SetConnection(state.Open, nil)
	store.ApplyFields(map[string]string{"max_current": "1"})
	store.ApplyStatus(device.StatusSnapshot{Batteries: []device.BatteryStatus{{Index: 0, Voltage: 26, LedStatus: "green"}}})
	rep.observe(store.Snapshot())

	out := buf.String()
	for _, want := range []string{`"to":"open"`, `"field":"max_current"`, `"message":"battery status"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("first report missing %s: %s", want, out)
		}
	}

	// Nothing changed: nothing logged.
	buf.Reset()
	rep.observe(store.Snapshot())
	if buf.Len() != 0 {
		t.Fatalf("unchanged snapshot logged: %s", buf.String())
	}

	// A field-only sync reports the field without repeating the batteries.
	store.ApplyFields(map[string]string{"max_current": "2"})
	rep.observe(store.Snapshot())
	out = buf.String()
	if !strings.Contains(out, `"value":"2"`) {
		t.Fatalf("field change not logged: %s", out)
	}
	if strings.Contains(out, `"message":"battery status"`) {
		t.Fatalf("field sync re-logged the batteries: %s", out)
	}

	// A new status frame does.
	buf.Reset()
	store.ApplyStatus(device.StatusSnapshot{Batteries: []device.BatteryStatus{{Index: 0, Voltage: 25.9, LedStatus: "green"}}})
	rep.observe(store.Snapshot())
	if !strings.Contains(buf.String(), `"message":"battery status"`) {
		t.Fatalf("status frame not logged: %s", buf.String())
	}
	buf.Reset()

	store.ShowRestartNotice(gateway.RestartNotice)
	rep.observe(store.Snapshot())
	if !strings.Contains(buf.String(), gateway.RestartNotice) {
		t.Fatalf("restart notice not logged: %s", buf.String())
	}
}
