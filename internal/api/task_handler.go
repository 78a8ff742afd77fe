package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/nuevabiblioteca/biblioteca/internal/api/shared"
	"github.com/nuevabiblioteca/biblioteca/internal/taskqueue"
)

// EnqueueTaskRequest represents the request body for submitting a task.
type EnqueueTaskRequest struct {
	Type              string          `json:"type" validate:"required,min=1"`
	Params            json.RawMessage `json:"params,omitempty"`
	MaxRetries        *int            `json:"max_retries,omitempty"        validate:"omitempty,gte=0"`
	RetryDelaySeconds *int            `json:"retry_delay_seconds,omitempty" validate:"omitempty,gte=0"`
}

// TaskResponse represents a task snapshot returned to the frontend.
type TaskResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Retries     int             `json:"retries"`
	MaxRetries  int             `json:"max_retries"`
}

func taskToResponse(rec *taskqueue.Record) TaskResponse {
	return TaskResponse{
		ID:          rec.ID,
		Type:        rec.Type,
		Status:      string(rec.Status),
		CreatedAt:   rec.CreatedAt,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		Error:       rec.Error,
		Result:      rec.Result,
		Retries:     rec.Retries,
		MaxRetries:  rec.MaxRetries,
	}
}

// TaskHandler handles task-related HTTP requests from the frontend.
type TaskHandler struct {
	queue     *taskqueue.Queue
	validator *validator.Validate
}

// NewTaskHandler creates a new TaskHandler over the given queue.
func NewTaskHandler(queue *taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:     queue,
		validator: validator.New(),
	}
}

// EnqueueTask handles POST /api/tasks requests. Processing is
// asynchronous, so a successful submission returns 202 Accepted with the
// task id; callers poll GetTask to observe the outcome.
func (h *TaskHandler) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	var req EnqueueTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	var opts []taskqueue.EnqueueOption
	if req.MaxRetries != nil {
		opts = append(opts, taskqueue.WithMaxRetries(*req.MaxRetries))
	}
	if req.RetryDelaySeconds != nil {
		opts = append(opts, taskqueue.WithRetryDelay(time.Duration(*req.RetryDelaySeconds)*time.Second))
	}

	id, err := h.queue.Enqueue(r.Context(), req.Type, req.Params, opts...)
	if err != nil {
		if errors.Is(err, taskqueue.ErrHandlerNotRegistered) {
			shared.RespondWithError(w, r, http.StatusUnprocessableEntity, "Unknown task type: "+req.Type)
			return
		}
		slog.Error("failed to enqueue task", "task_type", req.Type, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to enqueue task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, map[string]string{"id": id})
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.queue.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		slog.Error("failed to get task", "task_id", id, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to get task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(rec))
}

// CancelTask handles DELETE /api/tasks/{id} requests. Cancellation is
// cooperative: a running handler is asked to stop, but the row is already
// terminal when this returns.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cancelled, err := h.queue.Cancel(r.Context(), id)
	if err != nil {
		slog.Error("failed to cancel task", "task_id", id, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to cancel task")
		return
	}
	if !cancelled {
		if _, err := h.queue.GetTask(r.Context(), id); errors.Is(err, taskqueue.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		shared.RespondWithError(w, r, http.StatusConflict, "Task already finished")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]bool{"cancelled": true})
}
