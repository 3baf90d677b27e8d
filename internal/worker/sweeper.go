package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweepable is the part of the session manager the sweeper drives.
type Sweepable interface {
	Sweep(ctx context.Context) int
}

// Sweeper periodically clears sessions that outlived the local window, so
// expiry is noticed without waiting for the next API call.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a sweeper; it does nothing until Start.
func NewSweeper(target Sweepable, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{target: target, interval: interval, logger: logger.Named("sweeper")}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.logger.Info("session sweeper started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("session sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := s.target.Sweep(ctx); swept > 0 {
				s.logger.Info("sweep forced logout", zap.Int("audiences", swept))
			}
		}
	}
}
