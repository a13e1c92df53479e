package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MaxBatteries is the number of channels the controller can address.
const MaxBatteries = 16

// Controller defines the HTTP side channel of the battery controller.
// This interface is implemented by *Client and can be used for testing.
type Controller interface {
	SwitchOn(ctx context.Context, battery int) (string, error)
	SwitchOff(ctx context.Context, battery int) (string, error)
	FetchLog(ctx context.Context) ([]LogRecord, error)
}

// Ensure Client implements Controller at compile time.
var _ Controller = (*Client)(nil)

// Client talks to the controller's plain HTTP endpoints.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	defaultUserAgent = "battdash/0.1"
	requestTimeout   = 5 * time.Second
	maxReplyBytes    = 4 << 20
)

// NewClient builds a Client for the controller reachable at base, which may be
// a bare host[:port] or an http URL.
func NewClient(base string) (*Client, error) {
	u, err := parseBaseURL(base)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:   u,
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
	}, nil
}

// SwitchOn asks the controller to connect a battery. It returns the controller's reply text.
func (c *Client) SwitchOn(ctx context.Context, battery int) (string, error) {
	return c.switchBattery(ctx, "/switch_on", battery)
}

// SwitchOff asks the controller to disconnect a battery.
func (c *Client) SwitchOff(ctx context.Context, battery int) (string, error) {
	return c.switchBattery(ctx, "/switch_off", battery)
}

// FetchLog downloads the SD card log table and parses it into records.
func (c *Client) FetchLog(ctx context.Context) ([]LogRecord, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	body, err := c.get(ctx, &url.URL{Path: "/log"})
	if err != nil {
		return nil, err
	}
	records, err := ParseLogTable(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse log: %w", err)
	}
	return records, nil
}

func (c *Client) switchBattery(ctx context.Context, path string, battery int) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	if battery < 0 || battery >= MaxBatteries {
		return "", fmt.Errorf("battery %d out of range 0-%d", battery, MaxBatteries-1)
	}
	values := url.Values{}
	values.Set("battery", strconv.Itoa(battery))
	reply, err := c.get(ctx, &url.URL{Path: path, RawQuery: values.Encode()})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (c *Client) get(ctx context.Context, rel *url.URL) (string, error) {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			return "", fmt.Errorf("device %s returned status %d", rel.Path, resp.StatusCode)
		}
		return "", fmt.Errorf("device %s returned status %d: %s", rel.Path, resp.StatusCode, truncate(msg, 80))
	}
	return string(data), nil
}

func parseBaseURL(base string) (*url.URL, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse device address %q: %w", base, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
