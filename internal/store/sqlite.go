// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite.
// ABOUTME: Provides completion persistence with automatic schema creation and JSON metadata merge.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each pooled connection to :memory: would get its own empty database,
	// so pin in-memory stores to a single connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS completions (
			id            TEXT PRIMARY KEY,
			created       INTEGER NOT NULL,
			model         TEXT NOT NULL,
			messages_json TEXT NOT NULL,
			response      TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_completions_created
			ON completions(created DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Create inserts a completion record.
func (s *SQLiteStore) Create(ctx context.Context, c *Completion) error {
	messagesJSON, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completions (id, created, model, messages_json, response, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Created.Unix(), c.Model, string(messagesJSON), c.Response, string(metadataJSON),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting completion: %w", err)
	}
	return nil
}

// Get returns the completion for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Completion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created, model, messages_json, response, metadata_json
		FROM completions WHERE id = ?`, id)
	return scanCompletion(row)
}

// Messages returns the stored input messages plus the synthesized assistant
// message, each with a positional id.
func (s *SQLiteStore) Messages(ctx context.Context, id string) ([]Message, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(c.Messages)+1)
	for i, m := range c.Messages {
		m.ID = fmt.Sprintf("%s-msg-%d", c.ID, i)
		out = append(out, m)
	}
	out = append(out, Message{
		ID:      fmt.Sprintf("%s-msg-%d", c.ID, len(c.Messages)),
		Role:    "assistant",
		Content: c.Response,
	})
	return out, nil
}

// UpdateMetadata merges patch into the stored metadata and returns the
// updated record. The read-merge-write runs in a transaction so concurrent
// merges don't lose keys.
func (s *SQLiteStore) UpdateMetadata(ctx context.Context, id string, patch map[string]any) (*Completion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var metadataJSON string
	err = tx.QueryRowContext(ctx, `SELECT metadata_json FROM completions WHERE id = ?`, id).Scan(&metadataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	metadata := map[string]any{}
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	for k, v := range patch {
		metadata[k] = v
	}

	merged, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE completions SET metadata_json = ? WHERE id = ?`, string(merged), id); err != nil {
		return nil, fmt.Errorf("updating metadata: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing metadata update: %w", err)
	}

	return s.Get(ctx, id)
}

// List returns completions ordered newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Completion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created, model, messages_json, response, metadata_json
		FROM completions ORDER BY created DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	defer rows.Close()

	var completions []*Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

// Delete removes the completion for id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM completions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes all completions.
func (s *SQLiteStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM completions`)
	if err != nil {
		return 0, fmt.Errorf("clearing completions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompletion(row rowScanner) (*Completion, error) {
	var c Completion
	var created int64
	var messagesJSON, metadataJSON string
	err := row.Scan(&c.ID, &created, &c.Model, &messagesJSON, &c.Response, &metadataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning completion: %w", err)
	}
	c.Created = time.Unix(created, 0).UTC()
	if err := json.Unmarshal([]byte(messagesJSON), &c.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return &c, nil
}
