package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

// Store is the persistence API used by the dispatch service and the HTTP
// layer. Every mutation is a single task-keyed read-modify-write; there are
// no multi-task transactions.
type Store interface {
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)

	// UpdateTask overwrites the stored record for t.ID.
	UpdateTask(ctx context.Context, t *task.Task) error

	// SetStatus transitions id from -> to and reports whether the stored
	// status actually was `from`. This is the check-and-set the dispatch
	// worker relies on for idempotency; a false return means another
	// invocation won.
	SetStatus(ctx context.Context, id string, from, to task.Status) (bool, error)

	// ListTasks returns up to limit tasks, newest first.
	ListTasks(ctx context.Context, limit int) ([]*task.Task, error)

	// ListExpirable returns completed tasks whose expiry TTL elapsed at or
	// before now.
	ListExpirable(ctx context.Context, now time.Time) ([]*task.Task, error)

	// DeleteAll clears task history and returns the number of rows removed.
	DeleteAll(ctx context.Context) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
