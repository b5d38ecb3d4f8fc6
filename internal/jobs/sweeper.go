// Package jobs holds background maintenance loops that run alongside the
// HTTP server.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/vellum/internal/telemetry"
)

// SweeperStores is the storage surface the sweeper reclaims rows from.
type SweeperStores interface {
	DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChallengeSweeper removes verification challenges that expired before the
// given cutoff.
type ChallengeSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically reclaims abandoned pending orders and expired
// verification challenges. Customers who never return from the payment
// gateway leave pending_payment rows behind; these carry no money and no
// contact data, so deleting them after MaxAge is safe.
type Sweeper struct {
	orders     SweeperStores
	challenges ChallengeSweeper
	interval   time.Duration
	maxAge     time.Duration
	logger     *slog.Logger
}

// SweeperConfig configures the sweep cadence.
type SweeperConfig struct {
	// Interval is how often a sweep runs.
	Interval time.Duration

	// MaxAge is how long a pending order may sit before it is considered
	// abandoned.
	MaxAge time.Duration
}

func NewSweeper(orders SweeperStores, challenges ChallengeSweeper, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		orders:     orders,
		challenges: challenges,
		interval:   cfg.Interval,
		maxAge:     cfg.MaxAge,
		logger:     logger,
	}
}

// Start runs sweeps until the context is cancelled. It sweeps once
// immediately so a restart does not delay reclamation by a full interval.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("sweeper starting", "interval", s.interval, "max_age", s.maxAge)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxAge)

	swept, err := s.orders.DeleteStalePending(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to sweep stale pending orders", "error", err)
	} else if swept > 0 {
		s.logger.Info("swept stale pending orders", "count", swept, "cutoff", cutoff)
		if telemetry.Business != nil {
			telemetry.Business.OrdersSwept.WithLabelValues().Add(float64(swept))
		}
	}

	if s.challenges != nil {
		expired, err := s.challenges.DeleteExpired(ctx, time.Now())
		if err != nil {
			s.logger.Error("failed to sweep expired challenges", "error", err)
		} else if expired > 0 {
			s.logger.Info("swept expired challenges", "count", expired)
		}
	}
}
