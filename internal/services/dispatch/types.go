package dispatch

import (
	"context"
	"sync"
	"time"

	"tgcast/internal/broker"
	"tgcast/internal/storage"
	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

// Deliverer is the outbound message-delivery contract. The telegram adapter
// implements it; tests substitute a fake.
type Deliverer interface {
	SendText(ctx context.Context, recipient, text string) (int64, error)
	SendMedia(ctx context.Context, recipient string, att task.Attachment, caption string) (int64, error)
	SendAlbum(ctx context.Context, recipient string, atts []task.Attachment, caption string) (int64, error)
	SendPoll(ctx context.Context, recipient string, p task.Poll) (int64, error)
	Delete(ctx context.Context, recipient string, messageID int64) error
}

// MetricsSource is the remote analytics contract.
type MetricsSource interface {
	BatchMetrics(ctx context.Context, receipts []task.Receipt) (map[int64]task.Metrics, error)
}

type Config struct {
	// EnqueueTimeout bounds the durable-queue probe; past it the submission
	// falls back to an in-process timer. Default 500ms.
	EnqueueTimeout time.Duration

	// DeleteGap paces per-receipt deletions during undo. Default 200ms.
	DeleteGap time.Duration
}

func (c Config) withDefaults() Config {
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 500 * time.Millisecond
	}
	if c.DeleteGap <= 0 {
		c.DeleteGap = 200 * time.Millisecond
	}
	return c
}

// UndoSummary aggregates per-receipt deletion outcomes. It is returned to
// the caller, not folded into the task's historical counters.
type UndoSummary struct {
	Deleted int      `json:"deleted"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type Service struct {
	cfg     Config
	store   storage.Store
	deliver Deliverer
	metrics MetricsSource
	queue   broker.Queue // nil when no durable broker is configured
	timers  *broker.Timers
	log     logx.Logger

	mu     sync.Mutex
	runCtx context.Context

	// pacing hooks, overridden in tests to keep them fast
	interval   func(task.ScheduleConfig) time.Duration
	messageGap time.Duration
	deleteGap  time.Duration
}
