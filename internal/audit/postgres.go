package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryTimeout bounds every audit round trip.
const QueryTimeout = 10 * time.Second

// PostgresLog persists audit entries in the audit_log table.
//
// PostgresLog is safe for concurrent use by multiple goroutines.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Log = (*PostgresLog)(nil)

// NewPostgresLog creates an audit log backed by PostgreSQL.
func NewPostgresLog(pool *pgxpool.Pool, logger *slog.Logger) (*PostgresLog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLog{pool: pool, logger: logger}, nil
}

// Record appends an entry and returns its operation id.
func (l *PostgresLog) Record(ctx context.Context, action, description string, reversible bool, payload map[string]any) (uuid.UUID, error) {
	if action == "" {
		return uuid.Nil, fmt.Errorf("action is required")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	var id uuid.UUID
	err := l.pool.QueryRow(ctx,
		`INSERT INTO audit_log (action, description, reversible, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING operation_id`,
		action, description, reversible, payload,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("recording audit entry: %w", err)
	}

	l.logger.Debug("recorded audit entry",
		"operation_id", id, "action", action, "reversible", reversible)
	return id, nil
}

// Get returns the entry for an operation id.
func (l *PostgresLog) Get(ctx context.Context, operationID uuid.UUID) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	row := l.pool.QueryRow(ctx,
		`SELECT operation_id, created_at, action, description, reversible, payload
		 FROM audit_log WHERE operation_id = $1`,
		operationID,
	)

	var e Entry
	err := row.Scan(&e.OperationID, &e.CreatedAt, &e.Action, &e.Description, &e.Reversible, &e.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting audit entry: %w", err)
	}
	return &e, nil
}

// Recent returns up to limit entries, newest first.
func (l *PostgresLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT operation_id, created_at, action, description, reversible, payload
		 FROM audit_log ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.OperationID, &e.CreatedAt, &e.Action, &e.Description, &e.Reversible, &e.Payload); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit entries: %w", err)
	}
	return entries, nil
}
