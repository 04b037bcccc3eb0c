package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/zoobzio/clockz"
)

// ExpirySweeper expires pending sessions whose expiry has passed, so that the
// expired event goes out even if nobody reads the session again.
type ExpirySweeper struct {
	sessions *SessionService
	store    store.SessionStore
	clock    clockz.Clock
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// Start runs the sweep loop until ctx is done.
func (e *ExpirySweeper) Start(ctx context.Context) {
	e.logger.Info("expiry sweeper started", "interval", e.interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("expiry sweeper stopped")
			return
		case <-e.clock.After(e.interval):
			if _, err := e.Sweep(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep expires every due session and returns how many it moved.
func (e *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	expired := 0
	for {
		ids, err := e.store.DuePendingSessions(ctx, e.clock.Now(), e.batch)
		if err != nil {
			return expired, err
		}

		moved := 0
		for _, id := range ids {
			_, err := e.sessions.Expire(ctx, id)
			switch {
			case err == nil:
				moved++
			case errors.Is(err, errs.ErrStateConflict), errors.Is(err, errs.ErrNotFound):
				// claimed or expired by someone else in the meantime
			default:
				return expired + moved, err
			}
		}
		expired += moved

		if len(ids) < e.batch || moved == 0 {
			break
		}
	}

	if expired > 0 {
		e.logger.Info("expired sessions", "count", expired)
	}
	return expired, nil
}
