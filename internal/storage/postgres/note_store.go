// Package postgres provides the Postgres-backed note store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/personal-site-api/internal/notes"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NoteStoreConfig controls the Postgres connection pool used for notes.
type NoteStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// NoteStore reads and writes sticky notes in Postgres.
type NoteStore struct {
	pool  pool
	table string
}

var _ notes.Store = (*NoteStore)(nil)

// NewNoteStore creates a pooled Postgres note store using the provided config.
func NewNoteStore(ctx context.Context, cfg NoteStoreConfig) (*NoteStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &NoteStore{pool: p, table: table}, nil
}

// NewNoteStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewNoteStoreWithPool(p pool, table string) (*NoteStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &NoteStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "notes"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *NoteStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the notes table when it does not exist yet.
func (s *NoteStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	x BIGINT NOT NULL,
	y BIGINT NOT NULL,
	deleted BOOLEAN NOT NULL DEFAULT FALSE
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// List returns notes whose deleted flag matches, ordered by id.
func (s *NoteStore) List(ctx context.Context, deleted bool) ([]notes.Note, error) {
	query := fmt.Sprintf(`
SELECT id, content, created_at, x, y
FROM %s
WHERE deleted = $1
ORDER BY id`, s.table)
	rows, err := s.pool.Query(ctx, query, deleted)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	out := []notes.Note{}
	for rows.Next() {
		var n notes.Note
		if err := rows.Scan(&n.ID, &n.Content, &n.CreatedAt, &n.X, &n.Y); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return out, nil
}

// Get loads one note by id regardless of its deleted flag.
func (s *NoteStore) Get(ctx context.Context, id int64) (notes.Note, error) {
	query := fmt.Sprintf(`
SELECT id, content, created_at, x, y
FROM %s
WHERE id = $1`, s.table)
	var n notes.Note
	err := s.pool.QueryRow(ctx, query, id).Scan(&n.ID, &n.Content, &n.CreatedAt, &n.X, &n.Y)
	if errors.Is(err, pgx.ErrNoRows) {
		return notes.Note{}, notes.ErrNotFound
	}
	if err != nil {
		return notes.Note{}, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// Create inserts a note and returns the stored row.
func (s *NoteStore) Create(ctx context.Context, in notes.NewNote) (notes.Note, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (content, created_at, x, y)
VALUES ($1, $2, $3, $4)
RETURNING id, content, created_at, x, y`, s.table)
	var n notes.Note
	err := s.pool.QueryRow(ctx, query, in.Content, in.CreatedAt, in.X, in.Y).
		Scan(&n.ID, &n.Content, &n.CreatedAt, &n.X, &n.Y)
	if err != nil {
		return notes.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return n, nil
}

// Update rewrites content and position.
func (s *NoteStore) Update(ctx context.Context, id int64, params notes.Params) error {
	query := fmt.Sprintf(`UPDATE %s SET content = $1, x = $2, y = $3 WHERE id = $4`, s.table)
	tag, err := s.pool.Exec(ctx, query, params.Content, params.X, params.Y, id)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notes.ErrNotFound
	}
	return nil
}

// SoftDelete flags a note as deleted.
func (s *NoteStore) SoftDelete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted = TRUE WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notes.ErrNotFound
	}
	return nil
}

// Ping checks connectivity.
func (s *NoteStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
