package functions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/binventory/binventory/internal/inventory"
)

// resolution is the outcome of narrowing a free-text reference.
// Exactly one of items or disambiguation is populated; both empty
// means nothing matched.
type resolution struct {
	items          []inventory.Match
	disambiguation *DisambiguationRequest
}

// resolve maps a reference to concrete items. Explicit ids win over
// the query. A query matching several items without confirmAll
// produces a disambiguation request instead of guessing.
func (h *Handler) resolve(ctx context.Context, query, bin string, explicitIDs []uuid.UUID, confirmAll bool) (resolution, error) {
	if len(explicitIDs) > 0 {
		return h.resolveByID(ctx, explicitIDs)
	}
	if query == "" {
		return resolution{}, fmt.Errorf("query is required")
	}

	vec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return resolution{}, fmt.Errorf("embedding query failed: %w", err)
	}

	matches, err := h.inventory.Search(ctx, pgvector.NewVector(vec), bin, h.minRelevance, h.resolveLimit)
	if err != nil {
		return resolution{}, fmt.Errorf("search failed: %w", err)
	}

	switch {
	case len(matches) == 0:
		return resolution{}, nil
	case len(matches) == 1 || confirmAll:
		return resolution{items: matches}, nil
	default:
		return resolution{disambiguation: disambiguationFor(matches)}, nil
	}
}

// resolveByID treats explicit ids as the caller's selection.
func (h *Handler) resolveByID(ctx context.Context, ids []uuid.UUID) (resolution, error) {
	items := make([]inventory.Match, 0, len(ids))
	for _, id := range ids {
		item, err := h.inventory.Get(ctx, id)
		if errors.Is(err, inventory.ErrNotFound) {
			return resolution{}, fmt.Errorf("item %s not found", id)
		}
		if err != nil {
			return resolution{}, fmt.Errorf("looking up item %s: %w", id, err)
		}
		items = append(items, inventory.Match{Item: *item, Relevance: 1})
	}
	return resolution{items: items}, nil
}

func disambiguationFor(matches []inventory.Match) *DisambiguationRequest {
	req := &DisambiguationRequest{
		QueryID:    uuid.New(),
		Candidates: make([]Candidate, len(matches)),
	}
	for i, m := range matches {
		req.Candidates[i] = Candidate{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Bin:         m.BinID,
			Confidence:  roundScore(m.Relevance),
			ImageRef:    m.ImageRef,
		}
	}
	return req
}
