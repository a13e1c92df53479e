package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/state"
)

// ErrUnknownField is returned by Set for keys missing from the field registry.
var ErrUnknownField = errors.New("unknown field")

// Watch streams connection, configuration and battery updates to the console
// until the context is cancelled.
func Watch(ctx context.Context, opts Options) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := consoleLogger(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := startSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	interval := pollInterval(opts)
	StartPoller(ctx, sess.gateway, interval, logger)
	logger.Info().Str("url", cfg.GatewayURL()).Msg("watching controller")

	rep := newReporter(logger)
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return sess.wait()
		case <-ticker.C:
			rep.observe(sess.store.Snapshot())
		}
	}
}

// Snapshot connects, waits until the controller has reported both telemetry
// and configuration, and returns what it sent.
func Snapshot(ctx context.Context, opts Options, timeout time.Duration) (state.Snapshot, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return state.Snapshot{}, err
	}
	logger, err := consoleLogger(opts)
	if err != nil {
		return state.Snapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := startSession(ctx, cfg, logger)
	if err != nil {
		return state.Snapshot{}, err
	}
	snap, err := sess.waitFor(ctx, func(s state.Snapshot) bool {
		return s.HasStatus && anyFieldReported(s)
	})
	cancel()
	_ = sess.wait()
	if err != nil {
		return snap, fmt.Errorf("waiting for controller: %w", err)
	}
	return snap, nil
}

// Set validates edits against the field registry, sends them as one conf
// command and waits for the controller to announce its restart.
func Set(ctx context.Context, opts Options, edits map[string]string, timeout time.Duration) error {
	if len(edits) == 0 {
		return errors.New("no changes given")
	}
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	for _, id := range slices.Sorted(maps.Keys(edits)) {
		f, ok := cfg.Field(id)
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownField, id)
		}
		if err := f.Validate(edits[id]); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
	}
	logger, err := consoleLogger(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := startSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cancel()
		_ = sess.wait()
	}()

	if _, err := sess.waitFor(ctx, connected); err != nil {
		return fmt.Errorf("waiting for connection: %w", err)
	}
	for id, value := range edits {
		sess.gateway.UpdateConf(id, value)
	}
	if err := sess.gateway.SaveConf(ctx); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	if _, err := sess.waitFor(ctx, state.Snapshot.Restarting); err != nil {
		return fmt.Errorf("waiting for restart notice: %w", err)
	}
	logger.Info().Int("fields", len(edits)).Msg("configuration saved; controller restarting")
	return nil
}

func anyFieldReported(s state.Snapshot) bool {
	for _, f := range s.Fields {
		if f.HasValue {
			return true
		}
	}
	return false
}

// reporter turns successive snapshots into log events for watch mode.
type reporter struct {
	log        zerolog.Logger
	conn       state.ConnState
	restarting bool
	frames     int
	fields     map[string]string
}

func newReporter(logger zerolog.Logger) *reporter {
	return &reporter{
		log:    logger.With().Str("component", "watch").Logger(),
		conn:   state.Disconnected,
		fields: make(map[string]string),
	}
}

func (r *reporter) observe(s state.Snapshot) {
	if s.Conn != r.conn {
		ev := r.log.Info()
		if s.Conn == state.Disconnected && s.LastError != nil {
			ev = r.log.Warn().Err(s.LastError)
		}
		ev.Str("from", r.conn.String()).Str("to", s.Conn.String()).Msg("connection")
		r.conn = s.Conn
	}

	if s.Restarting() != r.restarting {
		r.restarting = s.Restarting()
		if r.restarting {
			r.log.Warn().Msg(s.RestartNotice)
			// The reload wipes the store; report every value again afterwards.
			clear(r.fields)
		}
	}

	for _, f := range s.Fields {
		if !f.HasValue || r.fields[f.ID] == f.Value {
			continue
		}
		r.fields[f.ID] = f.Value
		r.log.Info().Str("field", f.ID).Str("value", f.Value).Str("unit", f.Unit).Msg("setting")
	}

	if s.HasStatus && s.StatusFrames != r.frames {
		for _, b := range s.Batteries {
			batteryEvent(r.log, b)
		}
	}
	r.frames = s.StatusFrames
}
