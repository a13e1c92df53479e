package devicesim_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/config"
	"github.com/five82/battdash/internal/device"
	"github.com/five82/battdash/internal/devicesim"
	"github.com/five82/battdash/internal/gateway"
	"github.com/five82/battdash/internal/state"
)

func newSim(t *testing.T, opts devicesim.Options) (*devicesim.Server, *httptest.Server) {
	t.Helper()
	opts.Logger = zerolog.Nop()
	sim := devicesim.New(opts)
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)
	return sim, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSimulatorAnswersPrimingCommands(t *testing.T) {
	_, srv := newSim(t, devicesim.Options{Batteries: 3, Seed: 1})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, cmd := range device.PrimingCommands() {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
			t.Fatalf("write %s: %v", cmd, err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	msg, err := device.Decode(string(first))
	if err != nil || msg.Kind != device.KindStatus {
		t.Fatalf("first reply kind = %v, err = %v", msg.Kind, err)
	}
	if len(msg.Status.Batteries) != 3 || len(msg.Status.Switches) != 3 {
		t.Fatalf("unexpected status %+v", msg.Status)
	}

	_, second, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read fields: %v", err)
	}
	msg, err = device.Decode(string(second))
	if err != nil || msg.Kind != device.KindFieldSync {
		t.Fatalf("second reply kind = %v, err = %v", msg.Kind, err)
	}
	if msg.Fields["slider1"] != "10" {
		t.Fatalf("slider1 = %q, want 10", msg.Fields["slider1"])
	}
}

func TestSimulatorSwitchEndpoints(t *testing.T) {
	sim, srv := newSim(t, devicesim.Options{Batteries: 2})

	client, err := device.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	ctx := context.Background()

	reply, err := client.SwitchOff(ctx, 1)
	if err != nil {
		t.Fatalf("SwitchOff() error = %v", err)
	}
	if reply != "Switched off battery 1" {
		t.Fatalf("reply = %q", reply)
	}
	if sim.Status().Batteries[1].On() {
		t.Fatal("battery 1 still on")
	}

	if _, err := client.SwitchOn(ctx, 1); err != nil {
		t.Fatalf("SwitchOn() error = %v", err)
	}
	if !sim.Status().Batteries[1].On() {
		t.Fatal("battery 1 still off")
	}

	// Battery 5 is addressable but not fitted on this controller.
	if _, err := client.SwitchOn(ctx, 5); err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("SwitchOn(5) error = %v, want status 400", err)
	}

	resp, err := http.Get(srv.URL + "/switch_on")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "Battery parameter missing") {
		t.Fatalf("missing parameter: status %d body %q", resp.StatusCode, body)
	}
}

func TestSimulatorLogPageParses(t *testing.T) {
	sim, srv := newSim(t, devicesim.Options{Batteries: 2, Seed: 7})
	sim.Step(time.Minute)

	client, err := device.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	records, err := client.FetchLog(context.Background())
	if err != nil {
		t.Fatalf("FetchLog() error = %v", err)
	}
	// Firmware header row plus one row per battery.
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0].Valid {
		t.Fatal("header row parsed as data")
	}
	for _, rec := range records[1:] {
		if !rec.Valid || !rec.SwitchOn {
			t.Fatalf("unexpected record %+v", rec)
		}
	}
	if records[2].Battery != 1 {
		t.Fatalf("battery = %d, want 1", records[2].Battery)
	}
}

func TestRootPageListsBatteries(t *testing.T) {
	_, srv := newSim(t, devicesim.Options{Batteries: 2})

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"Battery Monitor", "/switch_off?battery=1", "View Log"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("root page missing %q", want)
		}
	}
}

func TestGatewaySessionAgainstSimulator(t *testing.T) {
	sim, srv := newSim(t, devicesim.Options{Batteries: 2, RebootDelay: 20 * time.Millisecond})

	fields := config.DefaultFields()
	store := state.NewStore(fields)
	gw, err := gateway.New(gateway.Options{
		URL:            wsURL(srv),
		ReconnectDelay: 50 * time.Millisecond,
		ReloadDelay:    50 * time.Millisecond,
		Store:          store,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	eventually(t, "initial sync", func() bool {
		snap := store.Snapshot()
		return snap.HasStatus && len(snap.Batteries) == 2 && fieldText(snap, "slider1") == "10"
	})

	gw.UpdateConf("slider1", "30")
	if err := gw.SaveConf(ctx); err != nil {
		t.Fatalf("SaveConf() error = %v", err)
	}

	eventually(t, "reboot", func() bool { return sim.Reboots() == 1 })
	eventually(t, "resync after reload", func() bool {
		snap := store.Snapshot()
		return snap.Conn == state.Open && !snap.Restarting() && fieldText(snap, "slider1") == "30"
	})
	if sim.Fields()["slider1"] != "30" {
		t.Fatalf("simulator slider1 = %q", sim.Fields()["slider1"])
	}
}

func fieldText(snap state.Snapshot, id string) string {
	for _, f := range snap.Fields {
		if f.ID == id {
			return f.Value
		}
	}
	return ""
}
