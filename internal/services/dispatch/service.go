package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tgcast/internal/broker"
	"tgcast/internal/storage"
	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

// New builds the engine. queue may be nil; every submission then uses the
// in-process fallback path.
func New(cfg Config, store storage.Store, deliver Deliverer, metrics MetricsSource, queue broker.Queue, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg.withDefaults(),
		store:      store,
		deliver:    deliver,
		metrics:    metrics,
		queue:      queue,
		timers:     broker.NewTimers(log),
		log:        log,
		interval:   task.IntervalFor,
		messageGap: task.MessageGap,
		deleteGap:  cfg.withDefaults().DeleteGap,
	}
}

// Start gives the engine its run context (owning fallback timers and the
// queue poller). Deferred invocations outlive the submitting request, so
// they must not hang off request contexts.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
	if s.queue != nil {
		go s.queue.Run(ctx, s.Process)
	}
	s.log.Info("dispatch engine started", logx.Bool("durable_queue", s.queue != nil))
}

// Stop cancels pending fallback timers. In-flight workers stop with the run
// context.
func (s *Service) Stop() {
	s.timers.Stop()
	s.log.Info("dispatch engine stopped")
}

func (s *Service) background() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// Submit validates t, persists it as pending, and defers a dispatch per its
// delivery strategy. The returned id identifies the task from then on.
func (s *Service) Submit(ctx context.Context, t *task.Task) (string, error) {
	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = task.StatusPending
	t.CreatedAt = now
	t.CompletedAt = nil
	t.Results = task.Results{}

	if err := t.Validate(now); err != nil {
		return "", err
	}
	plan, err := task.Resolve(t.Schedule, now)
	if err != nil {
		return "", err
	}

	if err := s.store.CreateTask(ctx, t); err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}

	s.handoff(ctx, t.ID, plan.StartDelay)
	s.log.Info("task submitted",
		logx.String("task", t.ID),
		logx.String("mode", string(t.Schedule.Mode)),
		logx.Int("targets", len(t.Targets)),
		logx.Duration("start_delay", plan.StartDelay))
	return t.ID, nil
}

// handoff hands the dispatch to the durable queue, falling back to an
// in-process timer when the queue is absent, errors, or exceeds the probe
// deadline.
func (s *Service) handoff(ctx context.Context, taskID string, delay time.Duration) {
	if s.queue != nil {
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.EnqueueTimeout)
		err := s.queue.Enqueue(probeCtx, taskID, delay)
		cancel()
		if err == nil {
			return
		}
		s.log.Warn("durable enqueue failed", logx.String("task", taskID), logx.Err(err))
	}
	s.timers.Schedule(s.background(), taskID, delay, s.Process)
}

// Get returns the task's current record for reporting.
func (s *Service) Get(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return t, err
}

// List returns recent tasks, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*task.Task, error) {
	return s.store.ListTasks(ctx, limit)
}

// ClearHistory removes all task records.
func (s *Service) ClearHistory(ctx context.Context) (int64, error) {
	return s.store.DeleteAll(ctx)
}

// PendingTimers reports armed fallback timers (observability).
func (s *Service) PendingTimers() int { return s.timers.Pending() }
