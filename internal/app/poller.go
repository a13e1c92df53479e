package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/gateway"
)

const defaultPollInterval = 2 * time.Second

// Refresher asks the controller to resend its values.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// StartPoller launches a background goroutine that requests fresh values at a
// fixed cadence. The controller only answers getValues, so without it the
// battery table would freeze after the priming exchange. It returns immediately.
func StartPoller(ctx context.Context, r Refresher, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger = logger.With().Str("component", "poller").Logger()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			poll(ctx, r, interval, logger)
		}
	}()
}

func poll(ctx context.Context, r Refresher, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := r.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrNotConnected), errors.Is(err, gateway.ErrRestarting):
		// The gateway reconnects on its own; nothing to ask for until then.
	case errors.Is(err, context.Canceled), errors.Is(err, gateway.ErrStopped):
	default:
		logger.Warn().Err(err).Msg("values poll failed")
	}
}
