package users

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

// Handler holds user HTTP handlers.
type Handler struct {
	store    Sessions
	validate *validation.Validator
	events   events.Publisher
}

func NewHandler(st Sessions, v *validation.Validator, pub events.Publisher) *Handler {
	return &Handler{store: st, validate: v, events: pub}
}

// Create registers a new user after checking email and username are free.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.UserCreate
	if err := h.validate.Decode(r.Body, &req); err != nil {
		respond.Invalid(w, r, err)
		return
	}

	ctx := r.Context()
	var user *models.User
	err := h.store.WithSession(ctx, func(s store.Session) error {
		// The unique constraints stay authoritative; these give the clearer message early.
		switch _, err := s.GetUserByEmail(ctx, req.Email); {
		case err == nil:
			return store.ErrDuplicateEmail
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		switch _, err := s.GetUserByUsername(ctx, *req.Username); {
		case err == nil:
			return store.ErrDuplicateUsername
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		u, err := s.CreateUser(ctx, req)
		if err != nil {
			return err
		}
		u.Tasks = []models.Task{}
		user = u
		return nil
	})
	switch {
	case errors.Is(err, store.ErrDuplicateEmail):
		respond.Detail(w, http.StatusBadRequest, "Email already registered")
		return
	case errors.Is(err, store.ErrDuplicateUsername):
		respond.Detail(w, http.StatusBadRequest, "Username already registered")
		return
	case err != nil:
		respond.Internal(w, r, err)
		return
	}

	events.Emit(ctx, h.events, events.New(events.UserCreated, user.ID, user.ID, user))
	respond.JSON(w, http.StatusCreated, user)
}

// Get returns one user with the tasks it owns.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID("user_id", chi.URLParam(r, "id"))
	if err != nil {
		respond.Invalid(w, r, err)
		return
	}

	ctx := r.Context()
	var user *models.User
	err = h.store.WithSession(ctx, func(s store.Session) error {
		u, err := loadWithTasks(ctx, s, id)
		user = u
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		respond.Detail(w, http.StatusNotFound, "User not found")
	case err != nil:
		respond.Internal(w, r, err)
	default:
		respond.JSON(w, http.StatusOK, user)
	}
}

// Delete removes a user; the store cascades the delete to its tasks. The
// response is the user as it was, tasks included.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID("user_id", chi.URLParam(r, "id"))
	if err != nil {
		respond.Invalid(w, r, err)
		return
	}

	ctx := r.Context()
	var user *models.User
	err = h.store.WithSession(ctx, func(s store.Session) error {
		u, err := loadWithTasks(ctx, s, id)
		if err != nil {
			return err
		}
		if _, err := s.DeleteUser(ctx, id); err != nil {
			return err
		}
		user = u
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		respond.Detail(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		respond.Internal(w, r, err)
		return
	}

	events.Emit(ctx, h.events, events.New(events.UserDeleted, user.ID, user.ID, user))
	respond.JSON(w, http.StatusOK, user)
}

func loadWithTasks(ctx context.Context, s store.Session, id int64) (*models.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.GetTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Tasks = tasks
	return u, nil
}
