package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

type attachmentPayload struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
}

type pollPayload struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Explanation   string   `json:"explanation,omitempty"`
}

type messagePayload struct {
	Text        string              `json:"text,omitempty"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
	Poll        *pollPayload        `json:"poll,omitempty"`
}

type schedulingPayload struct {
	Mode         string `json:"mode"`
	DelayMinutes int    `json:"delay_minutes,omitempty"`
	ScheduledAt  string `json:"scheduled_at,omitempty"` // RFC 3339
}

type createTaskRequest struct {
	Name      string `json:"name"`
	CreatedBy string `json:"created_by,omitempty"`
	Content   struct {
		Messages []messagePayload `json:"messages"`
	} `json:"content"`
	Targets     []string          `json:"targets"`
	Scheduling  schedulingPayload `json:"scheduling"`
	ExpiryHours int               `json:"expiry_hours,omitempty"`
}

type createTaskResponse struct {
	ID     string      `json:"id"`
	Status task.Status `json:"status"`
}

func (req *createTaskRequest) toTask() (*task.Task, error) {
	t := &task.Task{
		Name:      req.Name,
		CreatedBy: req.CreatedBy,
		Targets:   req.Targets,
		Expiry:    time.Duration(req.ExpiryHours) * time.Hour,
	}
	for _, m := range req.Content.Messages {
		msg := task.Message{Text: m.Text}
		for _, a := range m.Attachments {
			msg.Attachments = append(msg.Attachments, task.Attachment{
				Kind: task.MediaKind(a.Kind),
				Path: a.Path,
				Size: a.Size,
			})
		}
		if m.Poll != nil {
			msg.Poll = &task.Poll{
				Question:      m.Poll.Question,
				Options:       m.Poll.Options,
				CorrectOption: m.Poll.CorrectOption,
				Explanation:   m.Poll.Explanation,
			}
		}
		t.Content = append(t.Content, msg)
	}

	mode := req.Scheduling.Mode
	if mode == "" {
		mode = string(task.ModeImmediate)
	}
	t.Schedule = task.ScheduleConfig{
		Mode:         task.Mode(mode),
		DelayMinutes: req.Scheduling.DelayMinutes,
	}
	if req.Scheduling.ScheduledAt != "" {
		at, err := time.Parse(time.RFC3339, req.Scheduling.ScheduledAt)
		if err != nil {
			return nil, err
		}
		t.Schedule.ScheduledAt = at
	}
	return t, nil
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !a.readJSON(w, r, &req) {
		return
	}
	t, err := req.toTask()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "scheduling.scheduled_at: "+err.Error())
		return
	}

	id, err := a.engine.Submit(r.Context(), t)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.log.Info("task accepted",
		logx.String("task", id),
		logx.String("mode", string(t.Schedule.Mode)),
		logx.Int("targets", len(t.Targets)))
	a.writeJSON(w, http.StatusAccepted, createTaskResponse{ID: id, Status: task.StatusPending})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.engine.List(r.Context(), a.listLimit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := a.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, t)
}

func (a *API) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.engine.Retry(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, createTaskResponse{ID: id, Status: task.StatusPending})
}

func (a *API) handleUndo(w http.ResponseWriter, r *http.Request) {
	summary, err := a.engine.Undo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleRefreshMetrics(w http.ResponseWriter, r *http.Request) {
	updated, err := a.engine.RefreshMetrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (a *API) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.engine.ClearHistory(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
