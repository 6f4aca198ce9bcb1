package functions

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/binventory/binventory/internal/audit"
	"github.com/binventory/binventory/internal/conversation"
	"github.com/binventory/binventory/internal/inventory"
	"github.com/binventory/binventory/internal/testutil"
)

// mockInventory is an in-memory stand-in for the vector store.
type mockInventory struct {
	items map[uuid.UUID]inventory.Item

	searchResults []inventory.Match
	searchCalls   int
	lastSearchBin string

	bulkInsertErr error
	deleteErr     error
	updateBinErr  error
	deleteCalls   [][]uuid.UUID
}

func newMockInventory() *mockInventory {
	return &mockInventory{items: make(map[uuid.UUID]inventory.Item)}
}

func (m *mockInventory) BulkInsert(_ context.Context, items []inventory.Item) ([]uuid.UUID, error) {
	if m.bulkInsertErr != nil {
		return nil, m.bulkInsertErr
	}
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		item.ID = uuid.New()
		m.items[item.ID] = item
		ids[i] = item.ID
	}
	return ids, nil
}

func (m *mockInventory) Delete(_ context.Context, ids []uuid.UUID) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleteCalls = append(m.deleteCalls, ids)
	var n int64
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *mockInventory) Get(_ context.Context, id uuid.UUID) (*inventory.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return &item, nil
}

func (m *mockInventory) Search(_ context.Context, _ pgvector.Vector, bin string, _ float64, _ int) ([]inventory.Match, error) {
	m.searchCalls++
	m.lastSearchBin = bin
	return m.searchResults, nil
}

func (m *mockInventory) UpdateBin(_ context.Context, ids []uuid.UUID, bin string) (int64, error) {
	if m.updateBinErr != nil {
		return 0, m.updateBinErr
	}
	var n int64
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			item.BinID = bin
			m.items[id] = item
			n++
		}
	}
	return n, nil
}

func (m *mockInventory) ListBin(_ context.Context, bin string) ([]inventory.Item, error) {
	var out []inventory.Item
	for _, item := range m.items {
		if item.BinID == bin {
			out = append(out, item)
		}
	}
	return out, nil
}

// mockEmbedder returns deterministic vectors and can be told to fail
// for specific texts.
type mockEmbedder struct {
	failFor map[string]bool
	calls   []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls = append(m.calls, text)
	for pattern := range m.failFor {
		if strings.Contains(text, pattern) {
			return nil, fmt.Errorf("embedding service unavailable")
		}
	}
	return make([]float32, inventory.VectorDimension), nil
}

// mockVisions serves canned vision records.
type mockVisions struct {
	records map[string][]conversation.Observation
}

func (m *mockVisions) Vision(_ uuid.UUID, imageRef string) ([]conversation.Observation, bool) {
	obs, ok := m.records[imageRef]
	return obs, ok
}

// mockBins tracks current-bin updates.
type mockBins struct {
	bins map[uuid.UUID]string
}

func (m *mockBins) SetCurrentBin(id uuid.UUID, bin string) error {
	if m.bins == nil {
		m.bins = make(map[uuid.UUID]string)
	}
	m.bins[id] = bin
	return nil
}

type fixture struct {
	handler  *Handler
	inv      *mockInventory
	embedder *mockEmbedder
	visions  *mockVisions
	bins     *mockBins
	audit    *audit.MemoryLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		inv:      newMockInventory(),
		embedder: &mockEmbedder{},
		visions:  &mockVisions{records: make(map[string][]conversation.Observation)},
		bins:     &mockBins{},
		audit:    audit.NewMemoryLog(),
	}

	handler, err := NewHandler(f.inv, f.embedder, f.visions, f.bins, f.audit,
		0.6, 50, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	f.handler = handler
	return f
}

func TestAddItemsSingle(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()

	res := f.handler.AddItems(context.Background(), sessionID, AddArgs{
		Bin: "3", Items: []string{"screwdriver"},
	})

	if !res.Success {
		t.Fatalf("AddItems() failed: %s", res.Message)
	}
	if got := res.Data["items_added"]; got != 1 {
		t.Errorf("items_added = %v, want 1", got)
	}
	if len(f.inv.items) != 1 {
		t.Errorf("store has %d items, want 1", len(f.inv.items))
	}
	for _, item := range f.inv.items {
		if item.Description != "screwdriver in bin 3" {
			t.Errorf("Description = %q, want fallback", item.Description)
		}
	}
	if f.bins.bins[sessionID] != "3" {
		t.Errorf("current bin = %q, want 3", f.bins.bins[sessionID])
	}

	entries, _ := f.audit.Recent(context.Background(), 10)
	if len(entries) != 1 {
		t.Fatalf("audit has %d entries, want 1", len(entries))
	}
	if entries[0].Action != audit.ActionBulkAdd || !entries[0].Reversible {
		t.Errorf("audit entry = %+v, want reversible bulk_add", entries[0])
	}
}

func TestAddItemsVisionSubstitution(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()

	f.visions.records["img-7"] = []conversation.Observation{
		{Name: "hammer", Description: "claw hammer with a worn wooden handle", Confidence: 0.95},
	}

	res := f.handler.AddItems(context.Background(), sessionID, AddArgs{
		Bin: "garage", Items: []string{"hammer", "pliers"}, ImageRef: "img-7",
	})
	if !res.Success {
		t.Fatalf("AddItems() failed: %s", res.Message)
	}

	var gotHammer, gotPliers string
	for _, item := range f.inv.items {
		switch item.Name {
		case "hammer":
			gotHammer = item.Description
		case "pliers":
			gotPliers = item.Description
		}
	}
	if gotHammer != "claw hammer with a worn wooden handle" {
		t.Errorf("hammer description = %q, want vision description", gotHammer)
	}
	if gotPliers != "pliers in bin garage" {
		t.Errorf("pliers description = %q, want fallback", gotPliers)
	}
}

func TestAddItemsPartialEmbedFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.failFor = map[string]bool{"b in bin": true}

	res := f.handler.AddItems(context.Background(), uuid.New(), AddArgs{
		Bin: "3", Items: []string{"a", "b"},
	})

	if !res.Success {
		t.Fatalf("AddItems() failed outright: %s", res.Message)
	}
	if got := res.Data["items_added"]; got != 1 {
		t.Errorf("items_added = %v, want 1", got)
	}
	if got := res.Data["items_failed"]; got != 1 {
		t.Errorf("items_failed = %v, want 1", got)
	}
	if len(f.inv.items) != 1 {
		t.Errorf("store has %d items, want only the embeddable one", len(f.inv.items))
	}
	for _, item := range f.inv.items {
		if item.Name != "a" {
			t.Errorf("persisted item = %q, want a", item.Name)
		}
	}
}

func TestAddItemsAllEmbedsFail(t *testing.T) {
	f := newFixture(t)
	f.embedder.failFor = map[string]bool{"in bin": true}

	res := f.handler.AddItems(context.Background(), uuid.New(), AddArgs{
		Bin: "3", Items: []string{"a", "b"},
	})

	if res.Success {
		t.Error("AddItems() succeeded with zero persisted items")
	}
	if len(f.inv.items) != 0 {
		t.Errorf("store has %d items, want 0", len(f.inv.items))
	}
	if entries, _ := f.audit.Recent(context.Background(), 10); len(entries) != 0 {
		t.Errorf("audit has %d entries for failed add, want 0", len(entries))
	}
}

func TestAddItemsBulkInsertFailure(t *testing.T) {
	f := newFixture(t)
	f.inv.bulkInsertErr = fmt.Errorf("connection refused")

	res := f.handler.AddItems(context.Background(), uuid.New(), AddArgs{
		Bin: "3", Items: []string{"a", "b"},
	})

	if res.Success {
		t.Error("AddItems() succeeded despite store failure")
	}
	if got := res.Data["items_failed"]; got != 2 {
		t.Errorf("items_failed = %v, want 2", got)
	}
}

func TestAddItemsValidation(t *testing.T) {
	f := newFixture(t)

	if res := f.handler.AddItems(context.Background(), uuid.New(), AddArgs{Items: []string{"a"}}); res.Success {
		t.Error("AddItems() without bin succeeded")
	}
	if res := f.handler.AddItems(context.Background(), uuid.New(), AddArgs{Bin: "3"}); res.Success {
		t.Error("AddItems() without items succeeded")
	}
}

func TestRemoveItemsDisambiguation(t *testing.T) {
	f := newFixture(t)

	id1, id2 := uuid.New(), uuid.New()
	f.inv.items[id1] = inventory.Item{ID: id1, Name: "wood screw", BinID: "3"}
	f.inv.items[id2] = inventory.Item{ID: id2, Name: "machine screw", BinID: "3"}
	f.inv.searchResults = []inventory.Match{
		{Item: f.inv.items[id1], Relevance: 0.91},
		{Item: f.inv.items[id2], Relevance: 0.84},
	}

	res := f.handler.RemoveItems(context.Background(), uuid.New(), RemoveArgs{
		Query: "screw", Bin: "3",
	})

	if res.Disambiguation == nil {
		t.Fatalf("RemoveItems() = %+v, want disambiguation", res)
	}
	if len(res.Disambiguation.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2", len(res.Disambiguation.Candidates))
	}
	if res.Disambiguation.QueryID == uuid.Nil {
		t.Error("QueryID is nil")
	}
	if res.Disambiguation.Candidates[0].Confidence != 0.91 {
		t.Errorf("Confidence = %v, want 0.91", res.Disambiguation.Candidates[0].Confidence)
	}
	if len(f.inv.items) != 2 {
		t.Error("inventory mutated during disambiguation")
	}
	if entries, _ := f.audit.Recent(context.Background(), 10); len(entries) != 0 {
		t.Error("audit entry written during disambiguation")
	}
}

func TestRemoveItemsSingleMatch(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()
	f.inv.items[id] = inventory.Item{ID: id, Name: "screwdriver", BinID: "3"}
	f.inv.searchResults = []inventory.Match{{Item: f.inv.items[id], Relevance: 0.88}}

	res := f.handler.RemoveItems(context.Background(), uuid.New(), RemoveArgs{Query: "screwdriver"})

	if !res.Success || res.Disambiguation != nil {
		t.Fatalf("RemoveItems() = %+v, want direct removal", res)
	}
	if len(f.inv.items) != 0 {
		t.Error("item still present after removal")
	}

	entries, _ := f.audit.Recent(context.Background(), 10)
	if len(entries) != 1 || entries[0].Action != audit.ActionRemove || entries[0].Reversible {
		t.Errorf("audit = %+v, want one non-reversible remove entry", entries)
	}
}

func TestRemoveItemsConfirmAll(t *testing.T) {
	f := newFixture(t)

	id1, id2 := uuid.New(), uuid.New()
	f.inv.items[id1] = inventory.Item{ID: id1, Name: "wood screw", BinID: "3"}
	f.inv.items[id2] = inventory.Item{ID: id2, Name: "machine screw", BinID: "3"}
	f.inv.searchResults = []inventory.Match{
		{Item: f.inv.items[id1], Relevance: 0.91},
		{Item: f.inv.items[id2], Relevance: 0.84},
	}

	res := f.handler.RemoveItems(context.Background(), uuid.New(), RemoveArgs{
		Query: "screw", ConfirmAll: true,
	})

	if !res.Success || res.Disambiguation != nil {
		t.Fatalf("RemoveItems() = %+v, want bulk removal", res)
	}
	if len(f.inv.items) != 0 {
		t.Errorf("inventory has %d items, want 0", len(f.inv.items))
	}
}

func TestRemoveItemsByExplicitID(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()
	f.inv.items[id] = inventory.Item{ID: id, Name: "screwdriver", BinID: "3"}

	res := f.handler.RemoveItems(context.Background(), uuid.New(), RemoveArgs{
		ItemIDs: []uuid.UUID{id},
	})

	if !res.Success {
		t.Fatalf("RemoveItems() failed: %s", res.Message)
	}
	if f.inv.searchCalls != 0 {
		t.Error("explicit ids still triggered a search")
	}
	if len(f.inv.items) != 0 {
		t.Error("item still present after removal")
	}
}

func TestRemoveItemsNotFound(t *testing.T) {
	f := newFixture(t)

	res := f.handler.RemoveItems(context.Background(), uuid.New(), RemoveArgs{Query: "ghost"})
	if res.Success {
		t.Error("RemoveItems() with no matches succeeded")
	}

	res = f.handler.RemoveItems(context.Background(), uuid.New(), RemoveArgs{
		ItemIDs: []uuid.UUID{uuid.New()},
	})
	if res.Success {
		t.Error("RemoveItems() with unknown id succeeded")
	}
}

func TestMoveItemsAlreadyInTarget(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()

	id1, id2 := uuid.New(), uuid.New()
	f.inv.items[id1] = inventory.Item{ID: id1, Name: "hammer", BinID: "3"}
	f.inv.items[id2] = inventory.Item{ID: id2, Name: "mallet", BinID: "5"}
	f.inv.searchResults = []inventory.Match{
		{Item: f.inv.items[id1], Relevance: 0.9},
		{Item: f.inv.items[id2], Relevance: 0.85},
	}

	res := f.handler.MoveItems(context.Background(), sessionID, MoveArgs{
		Query: "hammer", ToBin: "5", ConfirmAll: true,
	})

	if !res.Success {
		t.Fatalf("MoveItems() failed: %s", res.Message)
	}
	if got := res.Data["items_moved"]; got != 1 {
		t.Errorf("items_moved = %v, want 1", got)
	}
	if got := res.Data["items_failed"]; got != 1 {
		t.Errorf("items_failed = %v, want 1", got)
	}
	if f.inv.items[id1].BinID != "5" {
		t.Errorf("hammer bin = %q, want 5", f.inv.items[id1].BinID)
	}
	if f.bins.bins[sessionID] != "5" {
		t.Errorf("current bin = %q, want 5", f.bins.bins[sessionID])
	}
}

func TestMoveItemsAllInTarget(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()
	f.inv.items[id] = inventory.Item{ID: id, Name: "hammer", BinID: "5"}
	f.inv.searchResults = []inventory.Match{{Item: f.inv.items[id], Relevance: 0.9}}

	res := f.handler.MoveItems(context.Background(), uuid.New(), MoveArgs{
		Query: "hammer", ToBin: "5",
	})

	if res.Success {
		t.Error("MoveItems() succeeded with nothing to move")
	}
	if entries, _ := f.audit.Recent(context.Background(), 10); len(entries) != 0 {
		t.Error("audit entry written for no-op move")
	}
}

func TestSearchItems(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()
	f.inv.searchResults = []inventory.Match{
		{Item: inventory.Item{ID: id, Name: "hammer", BinID: "3"}, Relevance: 0.8764},
	}

	res := f.handler.SearchItems(context.Background(), SearchArgs{Query: "hammer", Bin: "3"})

	if !res.Success {
		t.Fatalf("SearchItems() failed: %s", res.Message)
	}
	matches := res.Data["matches"].([]map[string]any)
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0]["relevance"] != 0.876 {
		t.Errorf("relevance = %v, want rounded 0.876", matches[0]["relevance"])
	}
	if f.inv.lastSearchBin != "3" {
		t.Errorf("search bin = %q, want 3", f.inv.lastSearchBin)
	}
	if entries, _ := f.audit.Recent(context.Background(), 10); len(entries) != 0 {
		t.Error("read-only search wrote an audit entry")
	}
}

func TestListBin(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()

	id := uuid.New()
	f.inv.items[id] = inventory.Item{ID: id, Name: "hammer", BinID: "3"}

	res := f.handler.ListBin(context.Background(), sessionID, ListBinArgs{Bin: "3"})

	if !res.Success {
		t.Fatalf("ListBin() failed: %s", res.Message)
	}
	if items := res.Data["items"].([]map[string]any); len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}
	if f.bins.bins[sessionID] != "3" {
		t.Errorf("current bin = %q, want 3", f.bins.bins[sessionID])
	}
}

func TestRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed through the real add path so the audit payload is genuine.
	addRes := f.handler.AddItems(ctx, uuid.New(), AddArgs{Bin: "3", Items: []string{"a", "b"}})
	if !addRes.Success {
		t.Fatalf("AddItems() failed: %s", addRes.Message)
	}
	opID := uuid.MustParse(addRes.Data["operation_id"].(string))

	res := f.handler.Rollback(ctx, RollbackArgs{OperationID: opID})
	if !res.Success {
		t.Fatalf("Rollback() failed: %s", res.Message)
	}
	if got := res.Data["items_removed"]; got != int64(2) {
		t.Errorf("items_removed = %v, want 2", got)
	}
	if len(f.inv.items) != 0 {
		t.Errorf("inventory has %d items after rollback, want 0", len(f.inv.items))
	}

	// Rolling back again is not an error, it just removes nothing.
	res = f.handler.Rollback(ctx, RollbackArgs{OperationID: opID})
	if !res.Success {
		t.Fatalf("second Rollback() failed: %s", res.Message)
	}
	if got := res.Data["items_removed"]; got != int64(0) {
		t.Errorf("second rollback removed %v items, want 0", got)
	}
}

func TestRollbackRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Unknown operation id.
	res := f.handler.Rollback(ctx, RollbackArgs{OperationID: uuid.New()})
	if res.Success {
		t.Error("Rollback() of unknown operation succeeded")
	}

	// Non-reversible entry.
	opID, err := f.audit.Record(ctx, audit.ActionRemove, "removed things", false, map[string]any{
		"item_ids": []string{uuid.NewString()},
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	res = f.handler.Rollback(ctx, RollbackArgs{OperationID: opID})
	if res.Success {
		t.Error("Rollback() of non-reversible operation succeeded")
	}
	if !strings.Contains(res.Message, "not reversible") {
		t.Errorf("Message = %q, want refusal reason", res.Message)
	}
}

func TestIdsFromPayloadJSONShape(t *testing.T) {
	// JSONB round trips turn []string into []any.
	want := uuid.New()
	ids, err := idsFromPayload(map[string]any{"item_ids": []any{want.String()}})
	if err != nil {
		t.Fatalf("idsFromPayload() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != want {
		t.Errorf("ids = %v, want [%v]", ids, want)
	}

	if _, err := idsFromPayload(map[string]any{}); err == nil {
		t.Error("idsFromPayload() accepted payload without ids")
	}
	if _, err := idsFromPayload(map[string]any{"item_ids": []any{42}}); err == nil {
		t.Error("idsFromPayload() accepted non-string id")
	}
}
