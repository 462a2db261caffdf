package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sweeper is a component that evicts expired state on an interval.
type Sweeper interface {
	Run(ctx context.Context, interval time.Duration)
}

// ServiceOptions wires the periodic tasks. Nil tasks are not started.
type ServiceOptions struct {
	Poller             *Poller
	Reconciler         *DeliveryStatusReconciler
	Deduplicator       *Deduplicator
	DedupSweepInterval time.Duration
	RateLimiter        Sweeper
	RateLimitSweep     time.Duration
}

// Service owns every periodic task of the bridge. It is built once per run.
type Service struct {
	opts   ServiceOptions
	logger *slog.Logger
}

func NewService(opts ServiceOptions, logger *slog.Logger) *Service {
	return &Service{opts: opts, logger: logger.With("component", "bridge_service")}
}

// Run blocks until ctx is cancelled and every task has returned.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.opts.Poller != nil {
		g.Go(func() error {
			s.opts.Poller.Run(gctx)
			return nil
		})
	} else {
		s.logger.InfoContext(ctx, "Polling disabled by intake mode")
	}
	if s.opts.Reconciler != nil {
		g.Go(func() error {
			s.opts.Reconciler.Run(gctx)
			return nil
		})
	}
	if s.opts.Deduplicator != nil && s.opts.DedupSweepInterval > 0 {
		g.Go(func() error {
			s.opts.Deduplicator.Run(gctx, s.opts.DedupSweepInterval)
			return nil
		})
	}
	if s.opts.RateLimiter != nil && s.opts.RateLimitSweep > 0 {
		g.Go(func() error {
			s.opts.RateLimiter.Run(gctx, s.opts.RateLimitSweep)
			return nil
		})
	}

	err := g.Wait()
	s.logger.Info("All periodic tasks stopped")
	return err
}
