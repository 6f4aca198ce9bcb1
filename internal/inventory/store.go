package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// QueryTimeout bounds every store round trip.
const QueryTimeout = 10 * time.Second

// itemCols is the standard SELECT column list for scanItems.
const itemCols = `id, name, description, bin_id, image_ref, embedding, created_at, updated_at`

// Store manages inventory items backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines. The store
// takes precomputed embeddings; callers own embedding generation and
// its failure handling.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates an inventory Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// BulkInsert inserts all items in a single transaction and returns the
// generated ids in input order. If any insert fails, the transaction
// is rolled back and no item is stored.
func (s *Store) BulkInsert(ctx context.Context, items []Item) ([]uuid.UUID, error) {
	if len(items) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		var id uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO items (name, description, bin_id, image_ref, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			item.Name, item.Description, item.BinID, item.ImageRef, item.Embedding,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("inserting item %q: %w", item.Name, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing bulk insert: %w", err)
	}

	s.logger.Debug("bulk inserted items", "count", len(ids), "bin", items[0].BinID)
	return ids, nil
}

// Delete removes the given items and returns how many rows existed.
// Missing ids are skipped, so repeating a delete is harmless.
func (s *Store) Delete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("deleting items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Get returns one item by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+itemCols+` FROM items WHERE id = $1`, id)

	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// Search returns items similar to the query vector ordered by cosine
// relevance descending. An empty bin searches every bin. Results below
// minRelevance are excluded.
func (s *Store) Search(ctx context.Context, vec pgvector.Vector, bin string, minRelevance float64, limit int) ([]Match, error) {
	if limit <= 0 {
		return []Match{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+itemCols+`, 1 - (embedding <=> $1) AS relevance
		 FROM items
		 WHERE ($2 = '' OR bin_id = $2)
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, bin, minRelevance, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching items: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := scanInto(rows, &m.Item, &m.Relevance); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return matches, nil
}

// UpdateBin moves the given items to a new bin and returns how many
// rows were updated.
func (s *Store) UpdateBin(ctx context.Context, ids []uuid.UUID, bin string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE items SET bin_id = $1, updated_at = now() WHERE id = ANY($2)`,
		bin, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("updating item bins: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListBin returns every item in a bin, newest first.
func (s *Store) ListBin(ctx context.Context, bin string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+itemCols+` FROM items WHERE bin_id = $1 ORDER BY created_at DESC, id`,
		bin,
	)
	if err != nil {
		return nil, fmt.Errorf("listing bin: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// Stats returns item and bin counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(DISTINCT bin_id) FROM items`,
	).Scan(&st.Items, &st.Bins)
	if err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	return st, nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.BinID,
		&item.ImageRef, &item.Embedding, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanInto(rows pgx.Rows, item *Item, extra ...any) error {
	dest := []any{&item.ID, &item.Name, &item.Description, &item.BinID,
		&item.ImageRef, &item.Embedding, &item.CreatedAt, &item.UpdatedAt}
	dest = append(dest, extra...)
	return rows.Scan(dest...)
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var item Item
		if err := scanInto(rows, &item); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	return items, nil
}
