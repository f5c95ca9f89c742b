package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ayush/task-manager/internal/models"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email    TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT    NOT NULL,
		description TEXT    NOT NULL,
		due_date    TEXT    NOT NULL,
		user_id     INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_user_id_idx ON tasks (user_id)`,
	`CREATE INDEX IF NOT EXISTS tasks_title_idx ON tasks (title)`,
}

// SQLiteStore serves sessions from a single-file SQLite database. Foreign
// keys are enforced on every connection.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database file at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) WithSession(ctx context.Context, fn func(Session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqliteSession{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translateSQLite(err))
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() { _ = s.db.Close() }

type sqliteSession struct {
	tx *sql.Tx
}

func (q *sqliteSession) getUserWhere(ctx context.Context, cond string, arg any) (*models.User, error) {
	var u models.User
	err := q.tx.QueryRowContext(ctx,
		`SELECT id, username, email FROM users WHERE `+cond+` = ?`, arg,
	).Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		return nil, translateSQLite(err)
	}
	return &u, nil
}

func (q *sqliteSession) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return q.getUserWhere(ctx, "id", id)
}

func (q *sqliteSession) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return q.getUserWhere(ctx, "email", email)
}

func (q *sqliteSession) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return q.getUserWhere(ctx, "username", username)
}

func (q *sqliteSession) CreateUser(ctx context.Context, in models.UserCreate) (*models.User, error) {
	var u models.User
	err := q.tx.QueryRowContext(ctx,
		`INSERT INTO users (username, email) VALUES (?, ?) RETURNING id, username, email`,
		in.Username, in.Email,
	).Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", translateSQLite(err))
	}
	return &u, nil
}

func (q *sqliteSession) DeleteUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := q.tx.QueryRowContext(ctx,
		`DELETE FROM users WHERE id = ? RETURNING id, username, email`, id,
	).Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("delete user: %w", translateSQLite(err))
	}
	return &u, nil
}

const sqliteTaskColumns = `id, title, description, due_date, user_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row scanner) (models.Task, error) {
	var t models.Task
	var due string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &due, &t.UserID); err != nil {
		return models.Task{}, err
	}
	d, err := models.ParseDate(due)
	if err != nil {
		return models.Task{}, fmt.Errorf("task %d: %w", t.ID, err)
	}
	t.DueDate = d
	return t, nil
}

func (q *sqliteSession) collectTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := q.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (q *sqliteSession) GetTasks(ctx context.Context, userID int64) ([]models.Task, error) {
	tasks, err := q.collectTasks(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	return tasks, nil
}

func (q *sqliteSession) ListTasks(ctx context.Context, skip, limit int) ([]models.Task, error) {
	tasks, err := q.collectTasks(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks ORDER BY id LIMIT ? OFFSET ?`,
		clampLimit(limit), skip)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (q *sqliteSession) CreateTask(ctx context.Context, in models.TaskCreate) (*models.Task, error) {
	t, err := scanSQLiteTask(q.tx.QueryRowContext(ctx,
		`INSERT INTO tasks (title, description, due_date, user_id)
		 VALUES (?, ?, ?, ?)
		 RETURNING `+sqliteTaskColumns,
		in.Title, in.Description, in.DueDate.String(), in.UserID,
	))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", translateSQLite(err))
	}
	return &t, nil
}

func (q *sqliteSession) UpdateTask(ctx context.Context, id int64, in models.TaskUpdate) (*models.Task, error) {
	t, err := scanSQLiteTask(q.tx.QueryRowContext(ctx,
		`UPDATE tasks SET
			title       = COALESCE(?, title),
			description = COALESCE(?, description),
			due_date    = COALESCE(?, due_date)
		 WHERE id = ?
		 RETURNING `+sqliteTaskColumns,
		in.Title, in.Description, dueDateArg(in.DueDate), id,
	))
	if err != nil {
		return nil, fmt.Errorf("update task: %w", translateSQLite(err))
	}
	return &t, nil
}

func (q *sqliteSession) DeleteTask(ctx context.Context, id int64) (*models.Task, error) {
	t, err := scanSQLiteTask(q.tx.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = ? RETURNING `+sqliteTaskColumns, id))
	if err != nil {
		return nil, fmt.Errorf("delete task: %w", translateSQLite(err))
	}
	return &t, nil
}

func translateSQLite(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sErr *sqlite.Error
	if !errors.As(err, &sErr) {
		return err
	}
	// Primary code in the low byte; the message names the violated constraint.
	if sErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	msg := sErr.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: users.email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "UNIQUE constraint failed: users.username"):
		return ErrDuplicateUsername
	case sErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ErrUserNotFound
	}
	return err
}
