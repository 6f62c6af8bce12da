// Package worker runs periodic maintenance over push tokens.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/metrics"
)

type Repository interface {
	DisableStaleTokens(ctx context.Context, seenBefore time.Time) (int64, error)
}

// Sweeper disables push tokens that have not been registered again for a
// long time. Devices refresh their token on every app start, so a token
// that went quiet belongs to an uninstalled app or a retired device.
type Sweeper struct {
	repo   Repository
	config Config
	logger *zap.Logger
	now    func() time.Time
}

type Config struct {
	Interval time.Duration
	MaxAge   time.Duration
}

func New(repo Repository, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.Interval == 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 270 * 24 * time.Hour
	}

	return &Sweeper{
		repo:   repo,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("token sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep disables every token last seen before now minus MaxAge and returns
// how many were disabled.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.config.MaxAge)

	n, err := s.repo.DisableStaleTokens(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to disable stale push tokens", zap.Error(err))
		return 0
	}

	if n > 0 {
		metrics.RecordTokenDisabled("stale", int(n))
		s.logger.Info("disabled stale push tokens",
			zap.Int64("count", n),
			zap.Time("last_seen_before", cutoff),
		)
	}
	return n
}
