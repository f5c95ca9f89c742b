// Package store owns the relational schema, the scoped sessions handed to
// request handlers, and the data-access operations run inside them.
package store

import (
	"context"
	"errors"

	"github.com/ayush/task-manager/internal/models"
)

var (
	// ErrNotFound is returned when a point lookup by id or key misses.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound is returned when a task references a user that does not exist.
	ErrUserNotFound = errors.New("user does not exist")
	// ErrDuplicateEmail and ErrDuplicateUsername are translated from the
	// storage uniqueness constraints on users.
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already registered")
)

// DefaultListLimit bounds ListTasks when the caller passes no limit.
const DefaultListLimit = 100

// Session is a transactional handle valid for one request. Every method runs
// against the same transaction.
type Session interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, in models.UserCreate) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) (*models.User, error)

	GetTasks(ctx context.Context, userID int64) ([]models.Task, error)
	ListTasks(ctx context.Context, skip, limit int) ([]models.Task, error)
	CreateTask(ctx context.Context, in models.TaskCreate) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, in models.TaskUpdate) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) (*models.Task, error)
}

// Store hands out sessions. WithSession commits when fn returns nil and rolls
// back on an error or panic; the session must not escape fn.
type Store interface {
	Migrate(ctx context.Context) error
	WithSession(ctx context.Context, fn func(Session) error) error
	Ping(ctx context.Context) error
	Close()
}

// clampLimit caps limit at DefaultListLimit. Zero stays zero; SQLite would
// read a negative LIMIT as unbounded, so those become zero too.
func clampLimit(limit int) int {
	switch {
	case limit < 0:
		return 0
	case limit > DefaultListLimit:
		return DefaultListLimit
	}
	return limit
}

func dueDateArg(d *models.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
