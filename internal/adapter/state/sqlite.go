package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"canvaschat/internal/domain"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS pending_prompts (
			project_id TEXT PRIMARY KEY,
			payload    TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get %q: %v", domain.ErrStateStore, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: set %q: %v", domain.ErrStateStore, key, err)
	}
	return nil
}

func (s *SQLiteStore) LastProjectID(ctx context.Context) (string, error) {
	return s.get(ctx, "last_project_id")
}

func (s *SQLiteStore) SetLastProjectID(ctx context.Context, id string) error {
	return s.set(ctx, "last_project_id", id)
}

func (s *SQLiteStore) Theme(ctx context.Context) (string, error) {
	return s.get(ctx, "theme")
}

func (s *SQLiteStore) SetTheme(ctx context.Context, theme string) error {
	return s.set(ctx, "theme", theme)
}

func (s *SQLiteStore) StagePrompt(ctx context.Context, projectID string, p domain.PendingPrompt) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending prompt: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO pending_prompts (project_id, payload) VALUES (?, ?) ON CONFLICT(project_id) DO UPDATE SET payload = excluded.payload",
		projectID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("%w: stage prompt: %v", domain.ErrStateStore, err)
	}
	return nil
}

// TakePrompt returns the staged prompt for projectID and deletes it in the
// same transaction, so a prompt is consumed at most once.
func (s *SQLiteStore) TakePrompt(ctx context.Context, projectID string) (*domain.PendingPrompt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin take: %v", domain.ErrStateStore, err)
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx,
		"SELECT payload FROM pending_prompts WHERE project_id = ?", projectID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read prompt: %v", domain.ErrStateStore, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM pending_prompts WHERE project_id = ?", projectID,
	); err != nil {
		return nil, fmt.Errorf("%w: clear prompt: %v", domain.ErrStateStore, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit take: %v", domain.ErrStateStore, err)
	}

	var p domain.PendingPrompt
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending prompt: %w", err)
	}
	return &p, nil
}
