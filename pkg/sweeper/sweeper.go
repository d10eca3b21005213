// Package sweeper fails steps whose completion event never arrived.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/actiontrack/pkg/metrics"
	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/dukex/actiontrack/pkg/services"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule   = "@every 1m"
	DefaultStaleAfter = time.Hour
	DefaultBatchSize  = 100
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("sweeper already started")

type Options struct {
	StaleAfter time.Duration
	BatchSize  int
}

// Sweeper periodically marks stale non-terminal steps as Failed.
type Sweeper struct {
	store      persistence.ActionStore
	actions    *services.Action
	logger     *slog.Logger
	metrics    *metrics.Metrics
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func New(store persistence.ActionStore, actions *services.Action, logger *slog.Logger, m *metrics.Metrics, opts Options) *Sweeper {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	return &Sweeper{
		store:      store,
		actions:    actions,
		logger:     logger.With("module", "sweeper"),
		metrics:    m,
		staleAfter: opts.StaleAfter,
		batchSize:  opts.BatchSize,
		now:        time.Now,
	}
}

// ParseSchedule accepts five-field cron expressions and descriptors such as
// "@every 5m" or "@hourly".
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	return schedule, nil
}

// Start runs Sweep on the given schedule until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}

		swept, err := s.Sweep(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed", "error", err)

			return
		}

		if swept > 0 {
			s.logger.InfoContext(ctx, "Sweep finished", "swept", swept)
		}
	}))
	s.cron.Start()

	s.logger.InfoContext(ctx, "Sweeper started", "schedule", spec, "stale_after", s.staleAfter)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
}

// Sweep fails every non-terminal step created before the stale threshold and
// returns how many steps it moved. Steps resolved concurrently are skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	threshold := s.now().Add(-s.staleAfter)

	stale, err := s.store.ListStaleActions(ctx, threshold, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale actions: %w", err)
	}

	swept := 0

	for _, action := range stale {
		steps, err := s.store.ActionSteps(ctx, action.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to load action steps", "user_action_id", action.ID, "error", err)

			continue
		}

		for _, step := range steps {
			if step.Status.IsTerminal() || !step.CreatedAt.Before(threshold) {
				continue
			}

			if s.failStep(ctx, action, step) {
				swept++
			}
		}
	}

	return swept, nil
}

func (s *Sweeper) failStep(ctx context.Context, action *models.Action, step *models.ActionStep) bool {
	logger := s.logger.With("action_id", action.ActionID, "step_id", step.ID, "step_name", step.Name)

	err := s.actions.AppendLog(ctx, step.ID, models.LogLevelWarning,
		fmt.Sprintf("Action exceeded %s without completing", s.staleAfter))
	if err != nil {
		logger.WarnContext(ctx, "Failed to log stale step", "error", err)
	}

	err = s.actions.Complete(ctx, step, models.StepStatusFailed)
	if err != nil {
		if services.IsInvalidTransition(err) {
			logger.DebugContext(ctx, "Step resolved before sweep", "status", step.Status)

			return false
		}

		logger.ErrorContext(ctx, "Failed to fail stale step", "error", err)

		return false
	}

	s.metrics.IncStaleSwept()
	logger.InfoContext(ctx, "Stale step failed")

	return true
}
