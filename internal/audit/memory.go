package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-memory audit log for tests and single-process use.
//
// MemoryLog is safe for concurrent use by multiple goroutines.
type MemoryLog struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	order   []uuid.UUID
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog creates an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: make(map[uuid.UUID]*Entry)}
}

// Record appends an entry and returns its operation id.
func (l *MemoryLog) Record(_ context.Context, action, description string, reversible bool, payload map[string]any) (uuid.UUID, error) {
	e := &Entry{
		OperationID: uuid.New(),
		CreatedAt:   time.Now(),
		Action:      action,
		Description: description,
		Reversible:  reversible,
		Payload:     payload,
	}

	l.mu.Lock()
	l.entries[e.OperationID] = e
	l.order = append(l.order, e.OperationID)
	l.mu.Unlock()

	return e.OperationID, nil
}

// Get returns the entry for an operation id.
func (l *MemoryLog) Get(_ context.Context, operationID uuid.UUID) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[operationID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *e
	return &copied, nil
}

// Recent returns up to limit entries, newest first.
func (l *MemoryLog) Recent(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, limit)
	for i := len(l.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *l.entries[l.order[i]])
	}
	return out, nil
}
