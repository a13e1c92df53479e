package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/device"
	"github.com/five82/battdash/internal/state"
)

var (
	// ErrNotConnected is returned when a command is issued without an open connection.
	ErrNotConnected = errors.New("gateway not connected")
	// ErrRestarting is returned while the controller is rebooting after a reset notice.
	ErrRestarting = errors.New("controller is restarting")
	// ErrStopped is returned once Run has returned.
	ErrStopped = errors.New("gateway stopped")
)

// RestartNotice is published to the store while the controller reboots.
const RestartNotice = "Saving & Restarting ..."

const (
	defaultReconnectDelay = 5 * time.Second
	defaultReloadDelay    = time.Second
	dialTimeout           = 10 * time.Second
	eventBuffer           = 64
)

// Options configure a Client.
type Options struct {
	URL            string
	ReconnectDelay time.Duration // zero uses 5s
	ReloadDelay    time.Duration // zero uses 1s
	Dialer         Dialer        // nil uses WebSocketDialer
	Store          *state.Store  // nil creates an empty store
	Edits          *device.Edits // nil creates a fresh buffer
	Logger         zerolog.Logger
}

// Client is the dashboard's connection to the controller. It owns the single
// connection handle and the pending configuration edits; all connection state
// lives on the goroutine running Run.
type Client struct {
	url            string
	reconnectDelay time.Duration
	reloadDelay    time.Duration
	dialer         Dialer
	store          *state.Store
	edits          *device.Edits
	log            zerolog.Logger
	afterFunc      func(time.Duration, func()) stopper

	events  chan event
	done    chan struct{}
	running atomic.Bool

	// Owned by the Run loop.
	conn       Conn
	connID     string
	gen        uint64
	timer      stopper
	timerSeq   uint64
	restarting bool
}

type stopper interface {
	Stop() bool
}

type timerKind int

const (
	timerReconnect timerKind = iota
	timerReload
)

func (k timerKind) String() string {
	if k == timerReload {
		return "reload"
	}
	return "reconnect"
}

type event any

type dialedEvent struct {
	gen  uint64
	conn Conn
	err  error
}

type frameEvent struct {
	gen   uint64
	frame string
}

type closedEvent struct {
	gen uint64
	err error
}

type timerEvent struct {
	seq  uint64
	kind timerKind
}

type sendEvent struct {
	frames []string
	reply  chan error
}

// New builds a Client. Nothing is dialed until Run is called.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("gateway url is empty")
	}
	c := &Client{
		url:            opts.URL,
		reconnectDelay: opts.ReconnectDelay,
		reloadDelay:    opts.ReloadDelay,
		dialer:         opts.Dialer,
		store:          opts.Store,
		edits:          opts.Edits,
		log:            opts.Logger.With().Str("component", "gateway").Logger(),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = defaultReconnectDelay
	}
	if c.reloadDelay <= 0 {
		c.reloadDelay = defaultReloadDelay
	}
	if c.dialer == nil {
		c.dialer = WebSocketDialer{}
	}
	if c.store == nil {
		c.store = state.NewStore(nil)
	}
	if c.edits == nil {
		c.edits = &device.Edits{}
	}
	return c, nil
}

// Store returns the view store the client writes into.
func (c *Client) Store() *state.Store {
	return c.store
}

// Run connects to the controller and services the connection until ctx is
// cancelled. Closed connections are retried after the reconnect delay,
// forever. Run may only be called once.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("gateway already running")
	}
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// UpdateConf records a pending value for field. Nothing is sent until SaveConf.
func (c *Client) UpdateConf(field, value string) {
	c.edits.Set(field, value)
}

// PendingValue returns the value recorded for field since the last save.
func (c *Client) PendingValue(field string) (string, bool) {
	return c.edits.Get(field)
}

// PendingCount returns the number of fields waiting to be saved.
func (c *Client) PendingCount() int {
	return c.edits.Len()
}

// SaveConf sends the pending edits as one conf frame. The pending set is
// emptied whether or not the frame could be sent.
func (c *Client) SaveConf(ctx context.Context) error {
	frame, err := device.EncodeConf(c.edits.Flush())
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// Refresh re-sends the priming requests on the open connection.
func (c *Client) Refresh(ctx context.Context) error {
	return c.send(ctx, device.PrimingCommands()...)
}

func (c *Client) send(ctx context.Context, frames ...string) error {
	reply := make(chan error, 1)
	select {
	case c.events <- sendEvent{frames: frames, reply: reply}:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) post(ctx context.Context, ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case dialedEvent:
		c.handleDialed(ctx, ev)
	case frameEvent:
		if ev.gen == c.gen && c.conn != nil {
			c.onMessage(ctx, ev.frame)
		}
	case closedEvent:
		if ev.gen == c.gen && c.conn != nil {
			c.dropConn()
			c.onClosed(ctx, ev.err)
		}
	case timerEvent:
		c.handleTimer(ctx, ev)
	case sendEvent:
		ev.reply <- c.write(ev.frames...)
	}
}

func (c *Client) connect(ctx context.Context) {
	c.gen++
	gen := c.gen
	c.connID = uuid.NewString()
	c.store.SetConnection(state.Connecting, nil)
	c.log.Info().Str("url", c.url).Str("conn_id", c.connID).Msg("opening gateway connection")

	go func() {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		conn, err := c.dialer.Dial(dialCtx, c.url)
		if !c.post(ctx, dialedEvent{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (c *Client) handleDialed(ctx context.Context, ev dialedEvent) {
	if ev.gen != c.gen {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	if ev.err != nil {
		c.log.Warn().Err(ev.err).Str("conn_id", c.connID).Msg("gateway dial failed")
		c.onClosed(ctx, ev.err)
		return
	}

	c.conn = ev.conn
	c.store.SetConnection(state.Open, nil)
	c.log.Info().Str("conn_id", c.connID).Msg("gateway connection opened")
	go c.readLoop(ctx, ev.gen, ev.conn)

	if err := c.write(device.PrimingCommands()...); err != nil {
		c.log.Warn().Err(err).Msg("priming requests failed")
	}
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			c.post(ctx, closedEvent{gen: gen, err: err})
			return
		}
		if !c.post(ctx, frameEvent{gen: gen, frame: frame}) {
			return
		}
	}
}

func (c *Client) onMessage(ctx context.Context, frame string) {
	if c.restarting {
		c.log.Debug().Str("frame", truncate(frame, 120)).Msg("ignoring frame during restart")
		return
	}
	msg, err := device.Decode(frame)
	if err != nil {
		c.log.Warn().Err(err).Str("frame", truncate(frame, 120)).Msg("dropping frame")
		return
	}
	switch msg.Kind {
	case device.KindReset:
		c.beginRestart(ctx)
	case device.KindFieldSync:
		if len(msg.Rejected) > 0 {
			c.log.Debug().Strs("keys", msg.Rejected).Msg("skipping non-scalar field values")
		}
		if ignored := c.store.ApplyFields(msg.Fields); len(ignored) > 0 {
			c.log.Debug().Strs("keys", ignored).Msg("no field registered for keys")
		}
	case device.KindStatus:
		c.store.ApplyStatus(msg.Status)
		c.log.Debug().
			Int("batteries", len(msg.Status.Batteries)).
			Int("switches", len(msg.Status.Switches)).
			Msg("status received")
	}
}

func (c *Client) onClosed(ctx context.Context, err error) {
	if c.restarting {
		// The reload timer reconnects.
		c.log.Info().Str("conn_id", c.connID).Msg("gateway closed while controller restarts")
		return
	}
	if cleanClose(err) {
		err = nil
	}
	c.store.SetConnection(state.Disconnected, err)
	c.log.Info().
		AnErr("cause", err).
		Dur("retry_in", c.reconnectDelay).
		Str("conn_id", c.connID).
		Msg("gateway connection closed")
	c.schedule(ctx, timerReconnect, c.reconnectDelay)
}

func (c *Client) beginRestart(ctx context.Context) {
	if c.restarting {
		return
	}
	c.restarting = true
	c.store.ShowRestartNotice(RestartNotice)
	c.log.Info().Dur("reload_in", c.reloadDelay).Msg("controller announced reset")
	c.schedule(ctx, timerReload, c.reloadDelay)
}

func (c *Client) reload(ctx context.Context) {
	c.restarting = false
	c.dropConn()
	c.edits.Reset()
	c.store.Reset()
	c.log.Info().Msg("reloading session")
	c.connect(ctx)
}

func (c *Client) schedule(ctx context.Context, kind timerKind, delay time.Duration) {
	c.stopTimer()
	seq := c.timerSeq
	c.timer = c.afterFunc(delay, func() {
		c.post(ctx, timerEvent{seq: seq, kind: kind})
	})
}

// stopTimer cancels the pending timer and invalidates any event it already posted.
func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Client) handleTimer(ctx context.Context, ev timerEvent) {
	if ev.seq != c.timerSeq || c.timer == nil {
		return
	}
	c.timer = nil
	c.timerSeq++
	c.log.Debug().Stringer("timer", ev.kind).Msg("timer fired")
	switch ev.kind {
	case timerReconnect:
		c.connect(ctx)
	case timerReload:
		c.reload(ctx)
	}
}

func (c *Client) write(frames ...string) error {
	if c.restarting {
		return ErrRestarting
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	for _, frame := range frames {
		if err := c.conn.WriteFrame(frame); err != nil {
			// Closing unblocks the reader, whose close event schedules the reconnect.
			_ = c.conn.Close()
			return fmt.Errorf("write frame: %w", err)
		}
		c.log.Debug().Str("frame", truncate(frame, 120)).Msg("frame sent")
	}
	return nil
}

func (c *Client) dropConn() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) shutdown() {
	c.stopTimer()
	c.dropConn()
	c.gen++
	c.store.SetConnection(state.Disconnected, nil)
	c.log.Info().Msg("gateway stopped")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
