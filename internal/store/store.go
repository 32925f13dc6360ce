// ABOUTME: Store interface and data types for persisted completions.
// ABOUTME: Defines the Completion record and the Store contract for retrieval and metadata merge.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested completion does not exist.
var ErrNotFound = errors.New("completion not found")

// ErrDuplicateID is returned when creating a completion whose id already exists.
var ErrDuplicateID = errors.New("completion already exists")

// Message is one turn of a stored exchange. ID is assigned positionally when
// messages are read back, not at write time.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is one persisted exchange. Messages and Response are immutable
// after creation; Metadata is the only mutable field and changes by merge.
type Completion struct {
	ID       string
	Created  time.Time
	Model    string
	Messages []Message
	Response string
	Metadata map[string]any
}

// Store persists completions. Ids are globally unique and never reused.
type Store interface {
	// Create inserts a completion. Fails with ErrDuplicateID if the id exists.
	Create(ctx context.Context, c *Completion) error

	// Get returns the completion for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Completion, error)

	// Messages returns the input messages followed by one synthesized
	// assistant message built from the stored response. Each entry carries a
	// positionally-derived id.
	Messages(ctx context.Context, id string) ([]Message, error)

	// UpdateMetadata merges patch into the completion's metadata: supplied
	// keys overwrite, untouched keys survive. Returns the updated record.
	UpdateMetadata(ctx context.Context, id string, patch map[string]any) (*Completion, error)

	// List returns completions ordered by creation time descending.
	List(ctx context.Context, limit int) ([]*Completion, error)

	// Delete removes the completion for id, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Clear removes every completion and returns the count removed.
	Clear(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
