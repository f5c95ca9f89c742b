package tasks

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/task-manager/internal/events"
	"github.com/ayush/task-manager/internal/models"
	"github.com/ayush/task-manager/internal/respond"
	"github.com/ayush/task-manager/internal/store"
	"github.com/ayush/task-manager/internal/validation"
)

// Sessions hands out request-scoped store sessions.
type Sessions interface {
	WithSession(ctx context.Context, fn func(store.Session) error) error
}

// Handler holds task HTTP handlers.
type Handler struct {
	store    Sessions
	validate *validation.Validator
	events   events.Publisher
}

func NewHandler(st Sessions, v *validation.Validator, pub events.Publisher) *Handler {
	return &Handler{store: st, validate: v, events: pub}
}

// Create inserts a task for the user named in the body. A user_id that does
// not exist is rejected by the foreign key and reported as a 422.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.TaskCreate
	if err := h.validate.Decode(r.Body, &req); err != nil {
		respond.Invalid(w, r, err)
		return
	}

	ctx := r.Context()
	var task *models.Task
	err := h.store.WithSession(ctx, func(s store.Session) error {
		t, err := s.CreateTask(ctx, req)
		task = t
		return err
	})
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		respond.Invalid(w, r, &validation.Error{Fields: []validation.FieldError{
			{Field: "user_id", Message: "user does not exist"},
		}})
		return
	case err != nil:
		respond.Internal(w, r, err)
		return
	}

	events.Emit(ctx, h.events, events.New(events.TaskCreated, task.ID, task.UserID, task))
	respond.JSON(w, http.StatusCreated, task)
}

// List returns every task ordered by id, windowed by ?skip= and ?limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, err := validation.ParseQueryInt("skip", q.Get("skip"), 0)
	if err != nil {
		respond.Invalid(w, r, err)
		return
	}
	limit, err := validation.ParseQueryInt("limit", q.Get("limit"), store.DefaultListLimit)
	if err != nil {
		respond.Invalid(w, r, err)
		return
	}

	ctx := r.Context()
	var tasks []models.Task
	err = h.store.WithSession(ctx, func(s store.Session) error {
		tasks, err = s.ListTasks(ctx, skip, limit)
		return err
	})
	if err != nil {
		respond.Internal(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, tasks)
}

// ListByUser returns the tasks owned by a user. An unknown user yields an
// empty list, not a 404.
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := validation.ParseID("user_id", chi.URLParam(r, "id"))
	if err != nil {
		respond.Invalid(w, r, err)
		return
	}

	ctx := r.Context()
	var tasks []models.Task
	err = h.store.WithSession(ctx, func(s store.Session) error {
		tasks, err = s.GetTasks(ctx, userID)
		return err
	})
	if err != nil {
		respond.Internal(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, tasks)
}

// Update merges the fields present in the body into the stored task.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID("task_id", chi.URLParam(r, "id"))
	if err != nil {
		respond.Invalid(w, r, err)
		return
	}
	var req models.TaskUpdate
	if err := h.validate.Decode(r.Body, &req); err != nil {
		respond.Invalid(w, r, err)
		return
	}

	ctx := r.Context()
	var task *models.Task
	err = h.store.WithSession(ctx, func(s store.Session) error {
		task, err = s.UpdateTask(ctx, id, req)
		return err
	})
	if writeFailure(w, r, err) {
		return
	}
	events.Emit(ctx, h.events, events.New(events.TaskUpdated, task.ID, task.UserID, task))
	respond.JSON(w, http.StatusOK, task)
}

// Delete removes a task and returns it as it was.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID("task_id", chi.URLParam(r, "id"))
	if err != nil {
		respond.Invalid(w, r, err)
		return
	}

	ctx := r.Context()
	var task *models.Task
	err = h.store.WithSession(ctx, func(s store.Session) error {
		task, err = s.DeleteTask(ctx, id)
		return err
	})
	if writeFailure(w, r, err) {
		return
	}
	events.Emit(ctx, h.events, events.New(events.TaskDeleted, task.ID, task.UserID, task))
	respond.JSON(w, http.StatusOK, task)
}

// writeFailure writes the response for a failed single-task write and
// reports whether it did.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respond.Detail(w, http.StatusNotFound, "Task not found")
		return true
	case err != nil:
		respond.Internal(w, r, err)
		return true
	}
	return false
}
