// Package functions implements the inventory operations the dispatcher
// can invoke: add, remove, move, search and list, plus rollback of a
// recorded bulk add. Every operation returns the uniform result
// envelope; errors from collaborators become failed results, never
// panics or lost turns.
package functions

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/binventory/binventory/internal/conversation"
	"github.com/binventory/binventory/internal/inventory"
)

// Inventory is the vector-store surface the handler needs.
type Inventory interface {
	BulkInsert(ctx context.Context, items []inventory.Item) ([]uuid.UUID, error)
	Delete(ctx context.Context, ids []uuid.UUID) (int64, error)
	Get(ctx context.Context, id uuid.UUID) (*inventory.Item, error)
	Search(ctx context.Context, vec pgvector.Vector, bin string, minRelevance float64, limit int) ([]inventory.Match, error)
	UpdateBin(ctx context.Context, ids []uuid.UUID, bin string) (int64, error)
	ListBin(ctx context.Context, bin string) ([]inventory.Item, error)
}

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Visions exposes the stored vision-analysis records of a session.
type Visions interface {
	Vision(sessionID uuid.UUID, imageRef string) ([]conversation.Observation, bool)
}

// BinContext updates a session's current-bin pointer.
type BinContext interface {
	SetCurrentBin(id uuid.UUID, bin string) error
}

// Result is the uniform outcome envelope of every operation.
type Result struct {
	Success        bool                   `json:"success"`
	Message        string                 `json:"message"`
	Data           map[string]any         `json:"data,omitempty"`
	Disambiguation *DisambiguationRequest `json:"disambiguation,omitempty"`
}

// DisambiguationRequest asks the caller to narrow an ambiguous
// reference. It is ephemeral and never persisted.
type DisambiguationRequest struct {
	QueryID    uuid.UUID   `json:"query_id"`
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one item the ambiguous query could mean.
type Candidate struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Bin         string    `json:"bin"`
	Confidence  float64   `json:"confidence"`
	ImageRef    string    `json:"image_ref,omitempty"`
}

// Typed argument payloads, one per operation.

// AddArgs adds named items to a bin, optionally enriched by an earlier
// vision analysis of the referenced image.
type AddArgs struct {
	Bin      string   `json:"bin"`
	Items    []string `json:"items"`
	ImageRef string   `json:"image_ref,omitempty"`
}

// RemoveArgs removes items matched by free-text query or selected by id.
type RemoveArgs struct {
	Query      string      `json:"query"`
	Bin        string      `json:"bin,omitempty"`
	ItemIDs    []uuid.UUID `json:"item_ids,omitempty"`
	ConfirmAll bool        `json:"confirm_all,omitempty"`
}

// MoveArgs moves matched items into a target bin.
type MoveArgs struct {
	Query      string      `json:"query"`
	FromBin    string      `json:"from_bin,omitempty"`
	ToBin      string      `json:"to_bin"`
	ItemIDs    []uuid.UUID `json:"item_ids,omitempty"`
	ConfirmAll bool        `json:"confirm_all,omitempty"`
}

// SearchArgs is a read-only similarity search.
type SearchArgs struct {
	Query string `json:"query"`
	Bin   string `json:"bin,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// ListBinArgs lists a bin's contents.
type ListBinArgs struct {
	Bin string `json:"bin"`
}

// RollbackArgs undoes one previously recorded reversible operation.
type RollbackArgs struct {
	OperationID uuid.UUID `json:"operation_id"`
}

func failure(msg string) Result {
	return Result{Success: false, Message: msg}
}

func roundScore(v float64) float64 {
	return math.Round(v*1000) / 1000
}
