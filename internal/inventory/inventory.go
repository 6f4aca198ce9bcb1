// Package inventory persists bin-organized items in PostgreSQL with
// pgvector embeddings for semantic search.
package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// VectorDimension is the embedding size stored per item. It must match
// the vector(N) column in the items migration and the dimensionality
// requested from the embedding model.
const VectorDimension = 768

// ErrNotFound indicates a lookup by id matched no item.
var ErrNotFound = errors.New("item not found")

// Item is one inventory record.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BinID       string          `json:"bin_id"`
	ImageRef    string          `json:"image_ref,omitempty"`
	Embedding   pgvector.Vector `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Match is a search hit with its cosine relevance in [0, 1].
type Match struct {
	Item
	Relevance float64 `json:"relevance"`
}

// Stats summarizes the store for operational tooling.
type Stats struct {
	Items int `json:"items"`
	Bins  int `json:"bins"`
}
