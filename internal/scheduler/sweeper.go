package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/metrics"
	"github.com/robfig/cron/v3"
)

type expiredClearer interface {
	ClearExpired(ctx context.Context) (int, error)
}

// Sweeper purges expired tokens on a cron schedule. A failed run is logged
// and retried on the next tick.
type Sweeper struct {
	tokens   expiredClearer
	logger   *slog.Logger
	schedule cron.Schedule
	spec     string
	timeout  time.Duration
}

// NewSweeper parses spec in standard cron syntax, including descriptors such
// as "@every 1m" or "@daily".
func NewSweeper(tokens expiredClearer, logger *slog.Logger, spec string) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cleanup schedule %q: %w", spec, err)
	}
	return &Sweeper{
		tokens:   tokens,
		logger:   logger.With("component", "sweeper"),
		schedule: schedule,
		spec:     spec,
		timeout:  30 * time.Second,
	}, nil
}

// Start blocks until ctx is cancelled. Runs never overlap.
func (s *Sweeper) Start(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.Sweep(ctx) }))
	c.Start()

	s.logger.Info("sweeper started", "schedule", s.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper shut down")
}

// Sweep runs one cleanup pass and returns the number of tokens removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.tokens.ClearExpired(runCtx)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SweepErrorsTotal.Inc()
		s.logger.Error("clear expired tokens", "error", err)
		return 0
	}

	metrics.SweepDeletedTotal.Add(float64(n))
	if n > 0 {
		s.logger.Info("expired tokens removed", "count", n)
	}
	return n
}
