package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"

	"github.com/ytakahashi/todo-api/internal/models"
	_ "modernc.org/sqlite"
)

// AUTOINCREMENT keeps sqlite from handing out the id of a deleted row again.
const sqliteSchema = `CREATE TABLE IF NOT EXISTS todos (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT    NOT NULL,
	done  INTEGER NOT NULL DEFAULT 0
)`

type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open sqlite store: create parent dir: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite store: create schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// sqliteDSN applies the pragmas on every pooled connection, not just the
// first one.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

func (s *SQLiteStore) List(ctx context.Context) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, done FROM todos ORDER BY id`)
	if err != nil {
		return nil, models.Internal(fmt.Errorf("list todos: %w", err))
	}
	defer rows.Close()

	todos := []Todo{}
	for rows.Next() {
		var todo Todo
		if err := rows.Scan(&todo.ID, &todo.Title, &todo.Done); err != nil {
			return nil, models.Internal(fmt.Errorf("scan todo: %w", err))
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Internal(fmt.Errorf("iterate todos: %w", err))
	}
	return todos, nil
}

func (s *SQLiteStore) Create(ctx context.Context, in models.CreateInput) (Todo, error) {
	if err := in.Validate(); err != nil {
		return Todo{}, err
	}

	todo := Todo{Title: in.Title}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO todos (title, done) VALUES (?, 0) RETURNING id`, in.Title,
	).Scan(&todo.ID)
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("create todo: %w", err))
	}
	return todo, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uint64) (Todo, error) {
	if id > math.MaxInt64 {
		return Todo{}, models.ErrNotFound
	}
	var todo Todo
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, done FROM todos WHERE id = ?`, id,
	).Scan(&todo.ID, &todo.Title, &todo.Done)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, models.ErrNotFound
	}
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("get todo %d: %w", id, err))
	}
	return todo, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id uint64, in models.UpdateInput) (Todo, error) {
	if err := in.Validate(); err != nil {
		return Todo{}, err
	}
	if id > math.MaxInt64 {
		return Todo{}, models.ErrNotFound
	}

	var title, done any
	if in.Title != nil {
		title = *in.Title
	}
	if in.Done != nil {
		done = *in.Done
	}

	var todo Todo
	err := s.db.QueryRowContext(ctx,
		`UPDATE todos SET title = COALESCE(?, title), done = COALESCE(?, done)
		 WHERE id = ? RETURNING id, title, done`,
		title, done, id,
	).Scan(&todo.ID, &todo.Title, &todo.Done)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, models.ErrNotFound
	}
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("update todo %d: %w", id, err))
	}
	return todo, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id uint64) error {
	// sqlite rowids are signed; larger ids cannot exist.
	if id > math.MaxInt64 {
		return models.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return models.Internal(fmt.Errorf("delete todo %d: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Internal(fmt.Errorf("delete todo %d: %w", id, err))
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
