package dispatch

import "errors"

var (
	ErrNotFound           = errors.New("task not found")
	ErrInvalidState       = errors.New("task is not in a valid state for this operation")
	ErrNothingToUndo      = errors.New("task has no recorded messages to undo")
	ErrMetricsUnavailable = errors.New("analytics service unavailable")
)
