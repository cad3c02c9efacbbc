// Package liquidator runs a background scanner that sweeps open positions
// and liquidates the ones that have fallen below maintenance margin.
package liquidator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"synapse/internal/domain"
	"synapse/internal/market"
	"synapse/internal/store"
	"synapse/internal/util"
)

// engine is the slice of the lifecycle controller the scanner needs.
type engine interface {
	Liquidate(ctx context.Context, id uint64) (*market.LiquidationResult, error)
}

// Scanner periodically lists open positions and attempts to liquidate each
// one. Healthy positions are skipped; anyone may trigger a liquidation, so
// the scanner needs no special credentials.
type Scanner struct {
	positions store.PositionStore
	engine    engine
	limiter   *util.RateLimiter
	interval  time.Duration
	log       *slog.Logger
}

// New creates a Scanner that sweeps every interval and spaces liquidation
// attempts at ratePerMinute.
func New(positions store.PositionStore, eng engine, interval time.Duration, ratePerMinute int, log *slog.Logger) *Scanner {
	return &Scanner{
		positions: positions,
		engine:    eng,
		limiter:   util.NewRateLimiter(ratePerMinute),
		interval:  interval,
		log:       log,
	}
}

// Run sweeps until ctx is cancelled. It always returns ctx.Err().
func (s *Scanner) Run(ctx context.Context) error {
	s.log.Info("liquidation scanner started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("liquidation scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					s.log.Info("liquidation scanner stopped")
					return ctx.Err()
				}
				s.log.Warn("sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass over the open positions. Per-position failures are
// logged and do not stop the pass; only listing failures and cancellation
// are returned.
func (s *Scanner) Sweep(ctx context.Context) error {
	open, err := s.positions.ListOpen(ctx)
	if err != nil {
		return err
	}

	var liquidated int
	for _, pos := range open {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		res, err := s.engine.Liquidate(ctx, pos.ID)
		switch {
		case err == nil:
			liquidated++
			s.log.Info("position liquidated",
				"position_id", res.PositionID,
				"account", res.Account,
				"forfeited", res.Forfeited,
				"mark_price", res.MarkPrice)
		case errors.Is(err, domain.ErrMaintenanceMarginNotMet):
			// Healthy position.
		case errors.Is(err, domain.ErrPositionNotFound):
			// Closed between the listing and the attempt.
		default:
			s.log.Warn("liquidation attempt failed", "position_id", pos.ID, "error", err)
		}
	}

	if liquidated > 0 {
		s.log.Info("sweep complete", "scanned", len(open), "liquidated", liquidated)
	}
	return nil
}
