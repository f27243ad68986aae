package broker

import (
	"context"
	"sync"
	"time"

	"tgcast/pkg/logx"
)

// Timers is the best-effort in-process fallback: one time.AfterFunc per task
// id. Scheduling the same id again replaces the pending timer, so a
// broker-then-fallback double submission cannot fire twice from here (the
// dispatch worker's status check covers the rest).
type Timers struct {
	log logx.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimers(log logx.Logger) *Timers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Timers{log: log, timers: map[string]*time.Timer{}}
}

// Schedule fires h for taskID after delay. It never fails; durability is
// explicitly not promised here.
func (t *Timers) Schedule(ctx context.Context, taskID string, delay time.Duration, h Handler) {
	if delay < 0 {
		delay = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[taskID]; ok {
		old.Stop()
	}
	t.log.Info("falling back to in-process timer", logx.String("task", taskID), logx.Duration("delay", delay))
	t.timers[taskID] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, taskID)
		t.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		h(ctx, taskID)
	})
}

// Stop cancels all pending timers.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
}

// Pending reports how many timers are armed. Used by status endpoints and
// tests.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
