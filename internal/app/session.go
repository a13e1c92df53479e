package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/config"
	"github.com/five82/battdash/internal/gateway"
	"github.com/five82/battdash/internal/state"
)

const waitPollInterval = 50 * time.Millisecond

// session is a running gateway client and the store it feeds.
type session struct {
	store   *state.Store
	gateway *gateway.Client
	errc    chan error
}

// startSession starts the gateway loop; it stops when ctx is cancelled.
func startSession(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*session, error) {
	store := state.NewStore(cfg.Fields)
	gw, err := gateway.New(gateway.Options{
		URL:            cfg.GatewayURL(),
		ReconnectDelay: cfg.ReconnectDelay,
		ReloadDelay:    cfg.ReloadDelay,
		Store:          store,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init gateway: %w", err)
	}
	s := &session{store: store, gateway: gw, errc: make(chan error, 1)}
	go func() { s.errc <- gw.Run(ctx) }()
	return s, nil
}

// wait blocks until the gateway loop has returned.
func (s *session) wait() error {
	return <-s.errc
}

// waitFor polls the store until cond holds or ctx is done.
func (s *session) waitFor(ctx context.Context, cond func(state.Snapshot) bool) (state.Snapshot, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		snap := s.store.Snapshot()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}
