package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tgcast/internal/services/dispatch"
	"tgcast/internal/storage"
	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

const defaultBodyLimit = 1 << 20 // 1 MiB

type errorResponse struct {
	Error string `json:"error"`
}

// readJSON decodes a JSON request body with a size limit. A false return
// means the error response has already been written.
func (a *API) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := a.bodyLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return false
	}
	return true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.Warn("write response", logx.Err(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps dispatch and validation errors onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		a.writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, dispatch.ErrInvalidState),
		errors.Is(err, dispatch.ErrNothingToUndo):
		a.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrMetricsUnavailable):
		a.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, storage.ErrExists):
		a.writeError(w, http.StatusConflict, "task already exists")
	case isValidationError(err):
		a.writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.log.Error("request failed", logx.Err(err))
		a.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		task.ErrEmptyName,
		task.ErrNoTargets,
		task.ErrNoContent,
		task.ErrBadContent,
		task.ErrInvalidSchedule,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
