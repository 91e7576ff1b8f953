package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"truemarket-api/internal/model"
	"truemarket-api/internal/service"
	"truemarket-api/pkg/apierror"
	"truemarket-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// TaskHandler handles the worker-facing task queue endpoints.
type TaskHandler struct {
	tasks *service.TaskService
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{
		tasks: tasks,
	}
}

// ListPending handles GET /api/v1/tasks
//
// Tasks come back oldest first so workers drain the queue in arrival order.
func (h *TaskHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListPending(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, tasks)
}

// Complete handles POST /api/v1/tasks/{taskID}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		response.Error(w, apierror.BadRequest("taskID is required"))
		return
	}

	var report service.PriceReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	if report.AveragePrice <= 0 {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "average_price", Message: "average_price must be positive"}))
		return
	}

	history, err := h.tasks.Complete(r.Context(), taskID, report)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTaskNotFound):
			response.Error(w, apierror.NotFound("no waiting task with that id"))
		case errors.Is(err, model.ErrTaskMismatch):
			response.Error(w, apierror.Conflict(err.Error()))
		case errors.Is(err, model.ErrUnknownWearLabel), errors.Is(err, model.ErrNoWearLabel):
			response.Error(w, apierror.BadRequest(err.Error()))
		case errors.Is(err, model.ErrRateUnavailable):
			response.Error(w, apierror.ServiceUnavailable("exchange rate unavailable, task left waiting"))
		default:
			response.Error(w, err)
		}
		return
	}

	response.OK(w, history)
}
