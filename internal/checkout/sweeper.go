// AngelaMos | 2026
// sweeper.go

package checkout

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically cancels attempts that were abandoned in created.
type Sweeper struct {
	service    *Service
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewSweeper(
	service *Service,
	interval, staleAfter time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		service:    service,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("checkout sweeper started",
		"interval", s.interval,
		"stale_after", s.staleAfter,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("checkout sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.service.ExpireStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("checkout sweep failed", "error", err)
		return 0
	}
	return n
}
