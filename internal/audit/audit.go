// Package audit keeps the append-only history of state-changing
// inventory actions. Entries are immutable once written; reversible
// entries carry enough payload to build a compensating operation.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates no entry exists for an operation id.
var ErrNotFound = errors.New("audit entry not found")

// Actions recorded by the function execution layer.
const (
	ActionBulkAdd  = "bulk_add"
	ActionRemove   = "remove"
	ActionMove     = "move"
	ActionRollback = "rollback"
)

// Entry is one audit record.
type Entry struct {
	OperationID uuid.UUID      `json:"operation_id"`
	CreatedAt   time.Time      `json:"created_at"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Reversible  bool           `json:"reversible"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Log records and retrieves audit entries.
type Log interface {
	// Record appends an entry and returns its operation id.
	Record(ctx context.Context, action, description string, reversible bool, payload map[string]any) (uuid.UUID, error)
	// Get returns the entry for an operation id, or ErrNotFound.
	Get(ctx context.Context, operationID uuid.UUID) (*Entry, error)
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
