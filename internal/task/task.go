package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTextLen is the longest message text accepted, in runes. Matches the
// Telegram Bot API limit for a plain message body.
const MaxTextLen = 4096

// Status is the task lifecycle state.
//
// pending -> processing -> completed | partially_completed | failed
// completed/partially_completed -> undone | expired
// failed -> pending (explicit retry only)
type Status string

const (
	StatusPending            Status = "pending"
	StatusProcessing         Status = "processing"
	StatusCompleted          Status = "completed"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusFailed             Status = "failed"
	StatusUndone             Status = "undone"
	StatusExpired            Status = "expired"
)

// Terminal reports whether the status accepts no further dispatch.
// failed is terminal for dispatch but still accepts an explicit retry.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartiallyCompleted, StatusFailed, StatusUndone, StatusExpired:
		return true
	}
	return false
}

// Undoable reports whether an undo (or expiry reversal) is allowed from s.
func (s Status) Undoable() bool {
	return s == StatusCompleted || s == StatusPartiallyCompleted
}

// MediaKind tags an attachment with its transfer type.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Attachment is a resolved, readable media file. Upload storage is someone
// else's problem; by the time a task reaches this package the path must be
// openable by the delivery client.
type Attachment struct {
	Kind MediaKind `json:"kind"`
	Path string    `json:"path"`
	Size int64     `json:"size,omitempty"`
}

// Poll describes a quiz-style poll message.
type Poll struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Message is one step of a task's content sequence.
// At least one of Text, Attachments, Poll must be set.
type Message struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Poll        *Poll        `json:"poll,omitempty"`
}

// Metrics is the last-known engagement snapshot for one delivered message.
type Metrics struct {
	Views     int       `json:"views"`
	Forwards  int       `json:"forwards"`
	Replies   int       `json:"replies"`
	Reactions int       `json:"reactions"`
	Voters    int       `json:"voters"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Receipt records one successful delivery: which recipient, which
// provider-assigned message id, and its engagement metrics. Receipts are
// append-only during dispatch and survive undo so reporting keeps working
// after a reversal.
type Receipt struct {
	Recipient string  `json:"recipient"`
	MessageID int64   `json:"message_id"`
	Metrics   Metrics `json:"metrics"`
}

// Results accumulates per-recipient outcomes for a single dispatch run.
type Results struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Mode selects the delivery strategy.
type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModeDelay     Mode = "delay"
	ModeSchedule  Mode = "schedule"
)

// ScheduleConfig is the user-facing scheduling configuration.
type ScheduleConfig struct {
	Mode         Mode      `json:"mode"`
	DelayMinutes int       `json:"delay_minutes,omitempty"`
	ScheduledAt  time.Time `json:"scheduled_at,omitempty"`
}

// Task is one broadcast campaign.
type Task struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	CreatedBy string         `json:"created_by,omitempty"`
	Content   []Message      `json:"content"`
	Targets   []string       `json:"targets"`
	Schedule  ScheduleConfig `json:"schedule"`

	// Expiry, when non-zero, is a time-to-live after completion; once it
	// elapses the sweeper reverses the broadcast and marks the task expired.
	Expiry time.Duration `json:"expiry,omitempty"`

	Status   Status    `json:"status"`
	Receipts []Receipt `json:"receipts,omitempty"`
	Results  Results   `json:"results"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

var (
	ErrNoTargets  = errors.New("task has no targets")
	ErrNoContent  = errors.New("task has no content")
	ErrBadContent = errors.New("invalid message content")
	ErrEmptyName  = errors.New("task name is required")
)

// Validate rejects malformed tasks before anything is persisted.
func (t *Task) Validate(now time.Time) error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Targets) == 0 {
		return ErrNoTargets
	}
	if len(t.Content) == 0 {
		return ErrNoContent
	}
	for i, m := range t.Content {
		if err := m.validate(); err != nil {
			return fmt.Errorf("%w: message %d: %v", ErrBadContent, i, err)
		}
	}
	if _, err := Resolve(t.Schedule, now); err != nil {
		return err
	}
	return nil
}

func (m Message) validate() error {
	if m.Poll != nil {
		if strings.TrimSpace(m.Poll.Question) == "" {
			return errors.New("poll question is empty")
		}
		if len(m.Poll.Options) < 2 {
			return errors.New("poll needs at least two options")
		}
		if m.Poll.CorrectOption < 0 || m.Poll.CorrectOption >= len(m.Poll.Options) {
			return errors.New("poll correct option out of range")
		}
		return nil
	}
	if utf8.RuneCountInString(m.Text) > MaxTextLen {
		return fmt.Errorf("text exceeds %d characters", MaxTextLen)
	}
	if strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0 {
		return errors.New("message has neither text nor attachments")
	}
	for _, a := range m.Attachments {
		switch a.Kind {
		case MediaPhoto, MediaVideo, MediaDocument:
		default:
			return fmt.Errorf("unknown media kind %q", a.Kind)
		}
		if strings.TrimSpace(a.Path) == "" {
			return errors.New("attachment path is empty")
		}
	}
	return nil
}

// Outcome derives the terminal status for a finished dispatch run.
func (r Results) Outcome() Status {
	switch {
	case r.Failed == 0 && r.Success > 0:
		return StatusCompleted
	case r.Success == 0:
		return StatusFailed
	default:
		return StatusPartiallyCompleted
	}
}

// RecordError appends an error line, bounded so a huge target list cannot
// bloat the persisted row.
func (r *Results) RecordError(msg string) {
	r.Failed++
	if len(r.Errors) < 200 {
		r.Errors = append(r.Errors, msg)
	}
}

// ExpiresAt returns the moment the task becomes a candidate for automatic
// reversal, and false when it never expires.
func (t *Task) ExpiresAt() (time.Time, bool) {
	if t.Expiry <= 0 || t.CompletedAt == nil || !t.Status.Undoable() {
		return time.Time{}, false
	}
	return t.CompletedAt.Add(t.Expiry), true
}
