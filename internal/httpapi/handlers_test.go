package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tgcast/internal/services/dispatch"
	"tgcast/internal/storage"
	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

type stubDeliverer struct{}

func (stubDeliverer) SendText(context.Context, string, string) (int64, error) { return 1, nil }
func (stubDeliverer) SendMedia(context.Context, string, task.Attachment, string) (int64, error) {
	return 1, nil
}
func (stubDeliverer) SendAlbum(context.Context, string, []task.Attachment, string) (int64, error) {
	return 1, nil
}
func (stubDeliverer) SendPoll(context.Context, string, task.Poll) (int64, error) { return 1, nil }
func (stubDeliverer) Delete(context.Context, string, int64) error               { return nil }

type stubMetrics struct{ err error }

func (m stubMetrics) BatchMetrics(context.Context, []task.Receipt) (map[int64]task.Metrics, error) {
	if m.err != nil {
		return nil, m.err
	}
	return map[int64]task.Metrics{11: {Views: 3}}, nil
}

func newTestAPI(t *testing.T, metrics dispatch.MetricsSource) (http.Handler, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	engine := dispatch.New(dispatch.Config{}, store, stubDeliverer{}, metrics, nil, logx.Nop())
	api := New(Config{}, engine, logx.Nop())
	return api.Router(), store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedCompleted(t *testing.T, store storage.Store, id string, receipts ...task.Receipt) {
	t.Helper()
	done := time.Now().Add(-time.Minute)
	tk := &task.Task{
		ID:          id,
		Name:        id,
		Targets:     []string{"a"},
		Content:     []task.Message{{Text: "hi"}},
		Schedule:    task.ScheduleConfig{Mode: task.ModeImmediate},
		Status:      task.StatusCompleted,
		Receipts:    receipts,
		Results:     task.Results{Success: len(receipts)},
		CreatedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
	}
	if err := store.CreateTask(context.Background(), tk); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestCreateTask(t *testing.T) {
	t.Parallel()
	h, store := newTestAPI(t, nil)

	body := `{
		"name": "promo",
		"created_by": "ops",
		"content": {"messages": [{"text": "hello"}]},
		"targets": ["@chan"],
		"scheduling": {"mode": "immediate"},
		"expiry_hours": 24
	}`
	rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp createTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" || resp.Status != task.StatusPending {
		t.Fatalf("resp = %+v", resp)
	}

	got, err := store.GetTask(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Expiry != 24*time.Hour {
		t.Fatalf("expiry = %v, want 24h", got.Expiry)
	}
}

func TestCreateTaskRejections(t *testing.T) {
	t.Parallel()
	h, _ := newTestAPI(t, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{
			"no targets",
			`{"name":"x","content":{"messages":[{"text":"hi"}]},"targets":[]}`,
			http.StatusBadRequest,
		},
		{
			"no content",
			`{"name":"x","content":{"messages":[]},"targets":["a"]}`,
			http.StatusBadRequest,
		},
		{
			"unknown field",
			`{"name":"x","bogus":1}`,
			http.StatusBadRequest,
		},
		{
			"malformed json",
			`{"name":`,
			http.StatusBadRequest,
		},
		{
			"bad scheduled_at",
			`{"name":"x","content":{"messages":[{"text":"hi"}]},"targets":["a"],"scheduling":{"mode":"schedule","scheduled_at":"tomorrow"}}`,
			http.StatusBadRequest,
		},
		{
			"scheduled_at in the past",
			`{"name":"x","content":{"messages":[{"text":"hi"}]},"targets":["a"],"scheduling":{"mode":"schedule","scheduled_at":"2000-01-01T00:00:00Z"}}`,
			http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks", tc.body)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tc.code, rec.Body)
			}
		})
	}
}

func TestGetAndListTasks(t *testing.T) {
	t.Parallel()
	h, store := newTestAPI(t, nil)
	seedCompleted(t, store, "t1", task.Receipt{Recipient: "a", MessageID: 11})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/tasks/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "t1" || got.Status != task.StatusCompleted {
		t.Fatalf("task = %+v", got)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/tasks/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing task status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 {
		t.Fatalf("count = %d, want 1", list.Count)
	}
}

func TestRetryEndpoint(t *testing.T) {
	t.Parallel()
	h, store := newTestAPI(t, nil)
	seedCompleted(t, store, "done", task.Receipt{Recipient: "a", MessageID: 11})

	// Completed tasks are not retryable.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks/done/retry", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("retry completed = %d, want 409", rec.Code)
	}

	failed := &task.Task{
		ID:       "failed",
		Name:     "failed",
		Targets:  []string{"a"},
		Content:  []task.Message{{Text: "hi"}},
		Schedule: task.ScheduleConfig{Mode: task.ModeImmediate},
		Status:   task.StatusFailed,
	}
	if err := store.CreateTask(context.Background(), failed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/tasks/failed/retry", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("retry failed task = %d, body %s", rec.Code, rec.Body)
	}
}

func TestUndoEndpoint(t *testing.T) {
	t.Parallel()
	h, store := newTestAPI(t, nil)
	seedCompleted(t, store, "t1",
		task.Receipt{Recipient: "a", MessageID: 11},
		task.Receipt{Recipient: "b", MessageID: 12},
	)
	seedCompleted(t, store, "empty")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks/t1/undo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("undo = %d, body %s", rec.Code, rec.Body)
	}
	var sum dispatch.UndoSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Deleted != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/tasks/empty/undo", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("undo without receipts = %d, want 409", rec.Code)
	}
}

func TestRefreshMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h, store := newTestAPI(t, stubMetrics{})
	seedCompleted(t, store, "t1", task.Receipt{Recipient: "a", MessageID: 11})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks/t1/metrics/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body %s", rec.Code, rec.Body)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["updated"] != 1 {
		t.Fatalf("resp = %v", resp)
	}

	hErr, storeErr := newTestAPI(t, stubMetrics{err: context.DeadlineExceeded})
	seedCompleted(t, storeErr, "t2", task.Receipt{Recipient: "a", MessageID: 11})
	rec = doJSON(t, hErr, http.MethodPost, "/api/v1/tasks/t2/metrics/refresh", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("refresh with analytics down = %d, want 502", rec.Code)
	}
}

func TestClearHistoryEndpoint(t *testing.T) {
	t.Parallel()
	h, store := newTestAPI(t, nil)
	seedCompleted(t, store, "t1")
	seedCompleted(t, store, "t2")

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/tasks/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear = %d", rec.Code)
	}
	var resp map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["deleted"] != 2 {
		t.Fatalf("resp = %v", resp)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h, _ := newTestAPI(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}
