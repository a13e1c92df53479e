package device

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseBaseURL_Normalizes(t *testing.T) {
	u, err := parseBaseURL("10.0.0.7")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" || u.Host != "10.0.0.7" {
		t.Fatalf("url = %q, want http://10.0.0.7", u.String())
	}

	u, err = parseBaseURL("http://example.com:1234/path?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}

	if _, err := parseBaseURL("  "); err == nil {
		t.Fatalf("parseBaseURL(empty) returned nil error")
	}
}

func TestClient_SwitchAndLogEndpoints(t *testing.T) {
	t.Parallel()

	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/switch_on":
			fmt.Fprintf(w, "Switched on battery %s", r.URL.Query().Get("battery"))
		case "/switch_off":
			fmt.Fprintf(w, "Switched off battery %s\n", r.URL.Query().Get("battery"))
		case "/log":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(firmwareLogPage))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	reply, err := c.SwitchOn(ctx, 3)
	if err != nil {
		t.Fatalf("SwitchOn returned error: %v", err)
	}
	if reply != "Switched on battery 3" {
		t.Fatalf("SwitchOn reply = %q", reply)
	}

	reply, err = c.SwitchOff(ctx, 15)
	if err != nil {
		t.Fatalf("SwitchOff returned error: %v", err)
	}
	if reply != "Switched off battery 15" {
		t.Fatalf("SwitchOff reply = %q", reply)
	}

	records, err := c.FetchLog(ctx)
	if err != nil {
		t.Fatalf("FetchLog returned error: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("FetchLog records = %d, want 4", len(records))
	}

	if !strings.HasPrefix(gotUserAgent, "battdash/") {
		t.Fatalf("User-Agent = %q, want battdash/*", gotUserAgent)
	}
}

func TestClient_RejectsOutOfRangeBattery(t *testing.T) {
	c, err := NewClient("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	for _, idx := range []int{-1, MaxBatteries} {
		if _, err := c.SwitchOn(context.Background(), idx); err == nil {
			t.Errorf("SwitchOn(%d) returned nil error", idx)
		}
	}
}

func TestClient_HTTPErrorIncludesReply(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Battery parameter missing", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.SwitchOff(context.Background(), 0)
	if err == nil || !strings.Contains(err.Error(), "returned status 400: Battery parameter missing") {
		t.Fatalf("SwitchOff error = %v, want status 400 with reply text", err)
	}
}
