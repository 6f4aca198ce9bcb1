//go:build integration
// +build integration

package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/binventory/binventory/internal/testutil"
)

// axisVector returns a unit vector along one axis. Cosine similarity
// between two axis vectors is 1 when the axes match and 0 otherwise,
// which makes relevance assertions exact.
func axisVector(axis int) pgvector.Vector {
	v := make([]float32, VectorDimension)
	v[axis] = 1
	return pgvector.NewVector(v)
}

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t)

	store, err := NewStore(db.Pool, testutil.DiscardLogger())
	if err != nil {
		cleanup()
		t.Fatalf("NewStore() error = %v", err)
	}
	return store, cleanup
}

func TestBulkInsertAndGet(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	ctx := context.Background()

	items := []Item{
		{Name: "hammer", Description: "hammer in bin garage-1", BinID: "garage-1", Embedding: axisVector(0)},
		{Name: "pliers", Description: "pliers in bin garage-1", BinID: "garage-1", Embedding: axisVector(1)},
	}

	ids, err := store.BulkInsert(ctx, items)
	if err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("BulkInsert() returned %d ids, want 2", len(ids))
	}

	got, err := store.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "hammer" || got.BinID != "garage-1" {
		t.Errorf("Get() = %+v, want hammer in garage-1", got)
	}
}

func TestBulkInsertAtomicity(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	ctx := context.Background()

	// The second item carries a vector of the wrong dimension, which
	// the database rejects. Nothing from the batch may survive.
	bad := []Item{
		{Name: "good", Description: "d", BinID: "b1", Embedding: axisVector(0)},
		{Name: "bad", Description: "d", BinID: "b1", Embedding: pgvector.NewVector([]float32{1, 2, 3})},
	}

	if _, err := store.BulkInsert(ctx, bad); err == nil {
		t.Fatal("BulkInsert() with bad vector succeeded, want error")
	}

	left, err := store.ListBin(ctx, "b1")
	if err != nil {
		t.Fatalf("ListBin() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("ListBin() after failed batch = %d items, want 0", len(left))
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	ctx := context.Background()

	ids, err := store.BulkInsert(ctx, []Item{
		{Name: "hammer", Description: "d", BinID: "b1", Embedding: axisVector(0)},
	})
	if err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}

	n, err := store.Delete(ctx, ids)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Delete() removed %d rows, want 1", n)
	}

	// Repeating the delete is a no-op, not an error.
	n, err = store.Delete(ctx, ids)
	if err != nil {
		t.Fatalf("Delete() second call error = %v", err)
	}
	if n != 0 {
		t.Errorf("Delete() second call removed %d rows, want 0", n)
	}

	if _, err := store.Get(ctx, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSearchScopeAndThreshold(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_, err := store.BulkInsert(ctx, []Item{
		{Name: "hammer", Description: "d", BinID: "garage", Embedding: axisVector(0)},
		{Name: "saw", Description: "d", BinID: "attic", Embedding: axisVector(0)},
		{Name: "teapot", Description: "d", BinID: "garage", Embedding: axisVector(1)},
	})
	if err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}

	// Scoped to one bin: only the matching garage item qualifies.
	matches, err := store.Search(ctx, axisVector(0), "garage", 0.6, 50)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "hammer" {
		t.Errorf("scoped Search() = %+v, want just hammer", matches)
	}
	if matches[0].Relevance < 0.99 {
		t.Errorf("Relevance = %f, want ~1", matches[0].Relevance)
	}

	// Empty bin searches everywhere.
	matches, err = store.Search(ctx, axisVector(0), "", 0.6, 50)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("global Search() = %d matches, want 2", len(matches))
	}

	// The orthogonal teapot never clears the threshold.
	for _, m := range matches {
		if m.Name == "teapot" {
			t.Error("Search() returned item below relevance threshold")
		}
	}
}

func TestUpdateBinAndListBin(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	ctx := context.Background()

	ids, err := store.BulkInsert(ctx, []Item{
		{Name: "hammer", Description: "d", BinID: "garage", Embedding: axisVector(0)},
		{Name: "pliers", Description: "d", BinID: "garage", Embedding: axisVector(1)},
	})
	if err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}

	n, err := store.UpdateBin(ctx, ids[:1], "workshop")
	if err != nil {
		t.Fatalf("UpdateBin() error = %v", err)
	}
	if n != 1 {
		t.Errorf("UpdateBin() updated %d rows, want 1", n)
	}

	workshop, err := store.ListBin(ctx, "workshop")
	if err != nil {
		t.Fatalf("ListBin() error = %v", err)
	}
	if len(workshop) != 1 || workshop[0].Name != "hammer" {
		t.Errorf("ListBin(workshop) = %+v, want just hammer", workshop)
	}

	garage, err := store.ListBin(ctx, "garage")
	if err != nil {
		t.Fatalf("ListBin() error = %v", err)
	}
	if len(garage) != 1 || garage[0].Name != "pliers" {
		t.Errorf("ListBin(garage) = %+v, want just pliers", garage)
	}
}

func TestStats(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := store.BulkInsert(ctx, []Item{
		{Name: "a", Description: "d", BinID: "b1", Embedding: axisVector(0)},
		{Name: "b", Description: "d", BinID: "b1", Embedding: axisVector(1)},
		{Name: "c", Description: "d", BinID: "b2", Embedding: axisVector(2)},
	}); err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Items != 3 || st.Bins != 2 {
		t.Errorf("Stats() = %+v, want 3 items in 2 bins", st)
	}
}

func TestGetUnknown(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
