package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/seismic-alert-service/internal/observability"
	"github.com/robfig/cron/v3"
)

// CycleRunner runs one poll cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler triggers cycles on a cron schedule. Cycles may overlap when one
// runs longer than the interval; tenant locks keep them apart.
type Scheduler struct {
	runner   CycleRunner
	schedule string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewScheduler(runner CycleRunner, schedule string, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run fires one cycle immediately, then one per schedule tick until ctx is
// cancelled. It waits for in-flight cycles before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger: s.logger}),
	)
	if _, err := c.AddFunc(s.schedule, func() { s.runCycle(ctx) }); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", s.schedule, err)
	}

	s.logger.Info("scheduler started", "schedule", s.schedule)
	s.metrics.SchedulerUp.Set(1)
	defer s.metrics.SchedulerUp.Set(0)

	c.Start()

	var initial sync.WaitGroup
	initial.Add(1)
	go func() {
		defer initial.Done()
		s.runCycle(ctx)
	}()

	<-ctx.Done()
	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	<-c.Stop().Done()
	initial.Wait()
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.runner.RunCycle(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("poll cycle failed", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
