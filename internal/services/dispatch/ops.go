package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tgcast/internal/storage"
	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

// Retry re-enters the submission path for a failed task. Only failed tasks
// are retryable: once a run reached completed or partially_completed its
// receipts are live deliveries, and rerunning it would duplicate them.
func (s *Service) Retry(ctx context.Context, id string) error {
	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusFailed {
		return fmt.Errorf("%w: retry requires status %s, have %s", ErrInvalidState, task.StatusFailed, t.Status)
	}

	t.Status = task.StatusPending
	t.Results = task.Results{}
	t.Receipts = nil
	t.CompletedAt = nil
	t.CreatedAt = time.Now() // surfaces the retry as recent in history

	if err := s.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	s.handoff(ctx, t.ID, 0)
	s.log.Info("task retried", logx.String("task", t.ID))
	return nil
}

// Undo reverses a finished broadcast: refresh metrics one last time so the
// engagement snapshot survives, then ask the provider to delete every
// recorded message. Deletion failures are reported in the summary but never
// stop the reversal; the task always ends undone.
func (s *Service) Undo(ctx context.Context, id string) (UndoSummary, error) {
	return s.reverse(ctx, id, task.StatusUndone, true)
}

// Expire is the sweeper's entry point: the same reversal flow, terminal
// status expired. A task without receipts is still marked expired.
func (s *Service) Expire(ctx context.Context, id string) (UndoSummary, error) {
	return s.reverse(ctx, id, task.StatusExpired, false)
}

func (s *Service) reverse(ctx context.Context, id string, to task.Status, requireReceipts bool) (UndoSummary, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return UndoSummary{}, err
	}
	if !t.Status.Undoable() {
		return UndoSummary{}, fmt.Errorf("%w: cannot reverse a %s task", ErrInvalidState, t.Status)
	}
	if requireReceipts && len(t.Receipts) == 0 {
		return UndoSummary{}, ErrNothingToUndo
	}

	// Capture the final engagement snapshot before the messages disappear.
	// Best-effort: an unreachable analytics service must not block reversal.
	if _, err := s.refreshInto(ctx, t); err != nil {
		s.log.Warn("final metrics sync failed before reversal", logx.String("task", id), logx.Err(err))
	}

	var sum UndoSummary
	for i, r := range t.Receipts {
		if err := s.deliver.Delete(ctx, r.Recipient, r.MessageID); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", r.Recipient, err))
		} else {
			sum.Deleted++
		}
		if i < len(t.Receipts)-1 {
			if !sleep(ctx, s.deleteGap) {
				break
			}
		}
	}

	now := time.Now()
	t.Status = to
	t.CompletedAt = &now
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return sum, err
	}
	s.log.Info("task reversed",
		logx.String("task", id),
		logx.String("status", string(to)),
		logx.Int("deleted", sum.Deleted),
		logx.Int("failed", sum.Failed))
	return sum, nil
}

// RefreshMetrics pulls current engagement counters for every receipt and
// overwrites the stored snapshots. All-or-nothing: when the analytics
// service is unreachable no receipt is altered. Message ids missing from the
// response keep their last-known metrics.
func (s *Service) RefreshMetrics(ctx context.Context, id string) (int, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	updated, err := s.refreshInto(ctx, t)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		if err := s.store.UpdateTask(ctx, t); err != nil {
			return 0, err
		}
	}
	return updated, nil
}

func (s *Service) refreshInto(ctx context.Context, t *task.Task) (int, error) {
	if len(t.Receipts) == 0 {
		return 0, nil
	}
	if s.metrics == nil {
		return 0, ErrMetricsUnavailable
	}
	counters, err := s.metrics.BatchMetrics(ctx, t.Receipts)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}
	now := time.Now()
	updated := 0
	for i := range t.Receipts {
		m, ok := counters[t.Receipts[i].MessageID]
		if !ok {
			continue
		}
		m.UpdatedAt = now
		t.Receipts[i].Metrics = m
		updated++
	}
	return updated, nil
}

func (s *Service) load(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return t, err
}
