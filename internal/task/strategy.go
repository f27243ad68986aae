package task

import (
	"errors"
	"fmt"
	"time"
)

// PacingFloor is the fixed inter-recipient gap used when the user did not
// configure delay pacing. It exists to stay under provider rate limits and is
// deliberately not user-configurable.
const PacingFloor = 2 * time.Second

// MessageGap separates messages of one recipient's sequence.
const MessageGap = 500 * time.Millisecond

// maxInlinePhoto is the largest file still sent as a photo; bigger images are
// demoted to document, which the provider accepts at a higher size cap.
const maxInlinePhoto = 10 << 20

var ErrInvalidSchedule = errors.New("invalid schedule")

// Plan is a resolved delivery strategy: when to start, and how long to wait
// between recipients. Target order is taken verbatim from the task.
type Plan struct {
	StartDelay time.Duration
	Interval   time.Duration
}

// Resolve turns a scheduling configuration into a concrete plan. Pure; no
// side effects.
//
// immediate: start now, floor pacing.
// delay:     start now, delay_minutes between recipients (targets are
//            already in priority order, supplied by the caller).
// schedule:  start at scheduled_at, floor pacing. Scheduling a start time
//            does not imply spacing between recipients.
func Resolve(cfg ScheduleConfig, now time.Time) (Plan, error) {
	switch cfg.Mode {
	case ModeImmediate, "":
		return Plan{StartDelay: 0, Interval: PacingFloor}, nil
	case ModeDelay:
		if cfg.DelayMinutes < 0 {
			return Plan{}, fmt.Errorf("%w: negative delay", ErrInvalidSchedule)
		}
		iv := time.Duration(cfg.DelayMinutes) * time.Minute
		if iv < PacingFloor {
			iv = PacingFloor
		}
		return Plan{StartDelay: 0, Interval: iv}, nil
	case ModeSchedule:
		if cfg.ScheduledAt.IsZero() {
			return Plan{}, fmt.Errorf("%w: schedule mode without a date", ErrInvalidSchedule)
		}
		d := cfg.ScheduledAt.Sub(now)
		if d <= 0 {
			return Plan{}, fmt.Errorf("%w: scheduled time %s is not in the future", ErrInvalidSchedule, cfg.ScheduledAt.Format(time.RFC3339))
		}
		return Plan{StartDelay: d, Interval: PacingFloor}, nil
	default:
		return Plan{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidSchedule, cfg.Mode)
	}
}

// IntervalFor returns the inter-recipient pacing for cfg without validating
// the start time. The dispatch worker runs after the start delay has already
// elapsed, so a schedule-mode date in the past is expected there.
func IntervalFor(cfg ScheduleConfig) time.Duration {
	if cfg.Mode == ModeDelay && cfg.DelayMinutes > 0 {
		iv := time.Duration(cfg.DelayMinutes) * time.Minute
		if iv > PacingFloor {
			return iv
		}
	}
	return PacingFloor
}

// NormalizeAttachment applies provider size rules once, before any network
// call: an oversized photo is re-tagged as a document rather than rejected.
func NormalizeAttachment(a Attachment) Attachment {
	if a.Kind == MediaPhoto && a.Size > maxInlinePhoto {
		a.Kind = MediaDocument
	}
	return a
}
