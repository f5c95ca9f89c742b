package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayush/task-manager/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id       BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		email    TEXT NOT NULL,
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_email_key    UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id          BIGSERIAL PRIMARY KEY,
		title       TEXT   NOT NULL,
		description TEXT   NOT NULL,
		due_date    DATE   NOT NULL,
		user_id     BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_user_id_idx ON tasks (user_id)`,
	`CREATE INDEX IF NOT EXISTS tasks_title_idx ON tasks (title)`,
}

// PostgresStore serves sessions from a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the users and tasks tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) WithSession(ctx context.Context, fn func(Session) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(&pgSession{tx: tx}); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translatePG(err))
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() { s.pool.Close() }

type pgSession struct {
	tx pgx.Tx
}

func (p *pgSession) getUserWhere(ctx context.Context, cond string, arg any) (*models.User, error) {
	var u models.User
	err := p.tx.QueryRow(ctx,
		`SELECT id, username, email FROM users WHERE `+cond+` = $1`, arg,
	).Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		return nil, translatePG(err)
	}
	return &u, nil
}

func (p *pgSession) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return p.getUserWhere(ctx, "id", id)
}

func (p *pgSession) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.getUserWhere(ctx, "email", email)
}

func (p *pgSession) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return p.getUserWhere(ctx, "username", username)
}

func (p *pgSession) CreateUser(ctx context.Context, in models.UserCreate) (*models.User, error) {
	var u models.User
	err := p.tx.QueryRow(ctx,
		`INSERT INTO users (username, email)
		 VALUES ($1, $2)
		 RETURNING id, username, email`,
		in.Username, in.Email,
	).Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", translatePG(err))
	}
	return &u, nil
}

func (p *pgSession) DeleteUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := p.tx.QueryRow(ctx,
		`DELETE FROM users WHERE id = $1 RETURNING id, username, email`, id,
	).Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("delete user: %w", translatePG(err))
	}
	return &u, nil
}

const pgTaskColumns = `id, title, description, due_date, user_id`

func scanPGTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	var due time.Time
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &due, &t.UserID); err != nil {
		return models.Task{}, err
	}
	t.DueDate = models.DateOf(due)
	return t, nil
}

func (p *pgSession) collectTasks(ctx context.Context, sql string, args ...any) ([]models.Task, error) {
	rows, err := p.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Task, error) {
		return scanPGTask(row)
	})
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (p *pgSession) GetTasks(ctx context.Context, userID int64) ([]models.Task, error) {
	tasks, err := p.collectTasks(ctx,
		`SELECT `+pgTaskColumns+` FROM tasks WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	return tasks, nil
}

func (p *pgSession) ListTasks(ctx context.Context, skip, limit int) ([]models.Task, error) {
	tasks, err := p.collectTasks(ctx,
		`SELECT `+pgTaskColumns+` FROM tasks ORDER BY id OFFSET $1 LIMIT $2`,
		skip, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (p *pgSession) CreateTask(ctx context.Context, in models.TaskCreate) (*models.Task, error) {
	t, err := scanPGTask(p.tx.QueryRow(ctx,
		`INSERT INTO tasks (title, description, due_date, user_id)
		 VALUES ($1, $2, $3::date, $4)
		 RETURNING `+pgTaskColumns,
		in.Title, in.Description, in.DueDate.String(), in.UserID,
	))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", translatePG(err))
	}
	return &t, nil
}

func (p *pgSession) UpdateTask(ctx context.Context, id int64, in models.TaskUpdate) (*models.Task, error) {
	t, err := scanPGTask(p.tx.QueryRow(ctx,
		`UPDATE tasks SET
			title       = COALESCE($2::text, title),
			description = COALESCE($3::text, description),
			due_date    = COALESCE($4::date, due_date)
		 WHERE id = $1
		 RETURNING `+pgTaskColumns,
		id, in.Title, in.Description, dueDateArg(in.DueDate),
	))
	if err != nil {
		return nil, fmt.Errorf("update task: %w", translatePG(err))
	}
	return &t, nil
}

func (p *pgSession) DeleteTask(ctx context.Context, id int64) (*models.Task, error) {
	t, err := scanPGTask(p.tx.QueryRow(ctx,
		`DELETE FROM tasks WHERE id = $1 RETURNING `+pgTaskColumns, id))
	if err != nil {
		return nil, fmt.Errorf("delete task: %w", translatePG(err))
	}
	return &t, nil
}

// translatePG maps driver errors onto the package sentinels.
func translatePG(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "users_email_key":
			return ErrDuplicateEmail
		case "users_username_key":
			return ErrDuplicateUsername
		}
	case pgForeignKeyViolation:
		return ErrUserNotFound
	}
	return err
}
