package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
	"github.com/ayushichauhan770/civicseva-api/pkg/config"
)

type sweepTarget interface {
	ListOverdue(ctx context.Context, limit int) ([]models.Application, error)
	ForceAutoApprove(ctx context.Context, applicationID string) (bool, error)
}

type sweeperMetrics interface {
	ObserveSweep(forced int, duration time.Duration)
}

// SweeperService periodically forces overdue applications into their
// auto-approved status. Each candidate is handled in isolation: one
// failure is logged and skipped, the rest of the batch proceeds. The
// terminal re-check inside ForceAutoApprove makes overlapping sweeps
// harmless.
type SweeperService struct {
	target    sweepTarget
	metrics   sweeperMetrics
	logger    *zap.Logger
	interval  time.Duration
	batchSize int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeperService constructs the sweeper.
func NewSweeperService(target sweepTarget, logger *zap.Logger, cfg config.SweeperConfig, metrics sweeperMetrics) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SweeperService{
		target:    target,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start launches the sweep loop. Safe to call once; Stop cancels it.
func (s *SweeperService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(loopCtx)
	s.logger.Info("deadline sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize))
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (s *SweeperService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("deadline sweeper stopped")
}

func (s *SweeperService) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the overdue candidates and returns the number
// of applications it forced. Exposed for operational triggering.
func (s *SweeperService) Sweep(ctx context.Context) int {
	started := time.Now()
	candidates, err := s.target.ListOverdue(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list overdue applications", zap.Error(err))
		return 0
	}

	forced := 0
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.target.ForceAutoApprove(ctx, candidate.ID)
		if err != nil {
			s.logger.Error("failed to auto-approve overdue application",
				zap.String("application_id", candidate.ID),
				zap.Error(err))
			continue
		}
		if ok {
			forced++
		}
	}

	duration := time.Since(started)
	if s.metrics != nil {
		s.metrics.ObserveSweep(forced, duration)
	}
	if len(candidates) > 0 {
		s.logger.Info("sweep pass completed",
			zap.Int("candidates", len(candidates)),
			zap.Int("forced", forced),
			zap.Duration("duration", duration))
	}
	return forced
}
