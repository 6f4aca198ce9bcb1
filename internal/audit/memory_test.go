package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryLogRecordAndGet(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	payload := map[string]any{"item_ids": []string{"a", "b"}, "bin_id": "garage"}

	id, err := log.Record(ctx, ActionBulkAdd, "added 2 items to garage", true, payload)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	e, err := log.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Action != ActionBulkAdd || !e.Reversible {
		t.Errorf("entry = %+v, want reversible bulk_add", e)
	}
	if e.Payload["bin_id"] != "garage" {
		t.Errorf("Payload[bin_id] = %v, want garage", e.Payload["bin_id"])
	}
}

func TestMemoryLogGetUnknown(t *testing.T) {
	log := NewMemoryLog()

	_, err := log.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryLogRecent(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	if _, err := log.Record(ctx, ActionBulkAdd, "first", true, nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := log.Record(ctx, ActionRemove, "second", false, nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := log.Record(ctx, ActionMove, "third", false, nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := log.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent(2) returned %d entries, want 2", len(entries))
	}
	if entries[0].Description != "third" || entries[1].Description != "second" {
		t.Errorf("Recent() order = [%s, %s], want newest first", entries[0].Description, entries[1].Description)
	}
}

func TestMemoryLogEntriesImmutable(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	id, err := log.Record(ctx, ActionBulkAdd, "original", true, nil)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	e, _ := log.Get(ctx, id)
	e.Description = "mutated"

	again, _ := log.Get(ctx, id)
	if again.Description != "original" {
		t.Error("mutating a returned entry changed the stored record")
	}
}
