package dispatch

import (
	"context"
	"fmt"
	"time"

	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

// Process is the dispatch worker. It is safe to invoke any number of times
// for the same task id: only the invocation that wins the pending->processing
// compare-and-set does any work.
func (s *Service) Process(ctx context.Context, taskID string) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		s.log.Warn("dispatch skipped: cannot load task", logx.String("task", taskID), logx.Err(err))
		return
	}
	if t.Status != task.StatusPending {
		s.log.Debug("dispatch skipped: not pending", logx.String("task", taskID), logx.String("status", string(t.Status)))
		return
	}
	claimed, err := s.store.SetStatus(ctx, taskID, task.StatusPending, task.StatusProcessing)
	if err != nil {
		s.log.Error("dispatch claim failed", logx.String("task", taskID), logx.Err(err))
		return
	}
	if !claimed {
		s.log.Debug("dispatch skipped: another worker claimed the task", logx.String("task", taskID))
		return
	}
	t.Status = task.StatusProcessing

	start := time.Now()
	interval := s.interval(t.Schedule)
	s.log.Info("dispatch started",
		logx.String("task", taskID),
		logx.Int("targets", len(t.Targets)),
		logx.Int("messages", len(t.Content)),
		logx.Duration("interval", interval))

	for i, recipient := range t.Targets {
		if ctx.Err() != nil {
			t.Results.RecordError("dispatch interrupted: " + ctx.Err().Error())
			break
		}
		s.sendSequence(ctx, t, recipient)

		// Persist after every recipient so partial progress survives a
		// crash mid-run.
		if err := s.store.UpdateTask(ctx, t); err != nil {
			s.log.Error("progress persist failed", logx.String("task", taskID), logx.Err(err))
		}

		if i < len(t.Targets)-1 {
			if !sleep(ctx, interval) {
				continue
			}
		}
	}

	now := time.Now()
	t.CompletedAt = &now
	t.Status = t.Results.Outcome()
	if err := s.store.UpdateTask(ctx, t); err != nil {
		s.log.Error("final persist failed", logx.String("task", taskID), logx.Err(err))
		return
	}

	fields := []logx.Field{
		logx.String("task", taskID),
		logx.String("status", string(t.Status)),
		logx.Int("success", t.Results.Success),
		logx.Int("failed", t.Results.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if t.Results.Failed > 0 {
		s.log.Warn("dispatch finished with failures", fields...)
	} else {
		s.log.Info("dispatch finished", fields...)
	}
}

// sendSequence delivers the full content sequence to one recipient. The
// first failed call aborts the rest of this recipient's sequence: partially
// delivered sequences are worse than absent ones, and the task moves on to
// the next recipient either way.
func (s *Service) sendSequence(ctx context.Context, t *task.Task, recipient string) {
	for i, msg := range t.Content {
		msgID, err := s.sendMessage(ctx, recipient, msg)
		if err != nil {
			s.log.Warn("send failed",
				logx.String("task", t.ID),
				logx.String("recipient", recipient),
				logx.Int("message", i),
				logx.Err(err))
			t.Results.RecordError(fmt.Sprintf("failed to send to %s: %v", recipient, err))
			return
		}
		t.Receipts = append(t.Receipts, task.Receipt{Recipient: recipient, MessageID: msgID})
		t.Results.Success++

		if i < len(t.Content)-1 {
			if !sleep(ctx, s.messageGap) {
				return
			}
		}
	}
}

// sendMessage resolves the message's payload shape once and performs exactly
// one delivery call: poll, grouped album, single media, or plain text.
func (s *Service) sendMessage(ctx context.Context, recipient string, msg task.Message) (int64, error) {
	switch {
	case msg.Poll != nil:
		return s.deliver.SendPoll(ctx, recipient, *msg.Poll)
	case len(msg.Attachments) > 1:
		atts := make([]task.Attachment, len(msg.Attachments))
		for i, a := range msg.Attachments {
			atts[i] = task.NormalizeAttachment(a)
		}
		return s.deliver.SendAlbum(ctx, recipient, atts, msg.Text)
	case len(msg.Attachments) == 1:
		return s.deliver.SendMedia(ctx, recipient, task.NormalizeAttachment(msg.Attachments[0]), msg.Text)
	default:
		return s.deliver.SendText(ctx, recipient, msg.Text)
	}
}

// sleep waits cooperatively and reports whether the full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-tmr.C:
		return true
	}
}
