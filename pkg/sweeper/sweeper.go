// Package sweeper runs the periodic expiration sweep over whitelists.
package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/treasury-api/pkg/whitelist/service"
)

// sweepTimeout bounds a single sweep.
const sweepTimeout = 2 * time.Minute

// Sweeper periodically expires whitelists whose expiration instant has
// passed. Expiration is also evaluated lazily on every command, so the sweep
// only bounds how long an untouched whitelist can linger past its instant.
type Sweeper struct {
	service  service.Service
	interval time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a new Sweeper
func New(svc service.Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		service:  svc,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// SweepOnce runs a single expiration sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	start := time.Now()
	expired, err := s.service.SweepExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if expired > 0 {
		s.logger.Info("Expiration sweep completed",
			zap.Int("expired", expired),
			zap.Duration("duration", time.Since(start)))
	}
	return nil
}

// Start launches the background sweep goroutine
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Started expiration sweeper", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				if err := s.SweepOnce(ctx); err != nil {
					s.logger.Error("Expiration sweep failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("Stopping expiration sweeper")
				return
			}
		}
	}()
}

// Stop stops the background sweep and waits for it to exit
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
