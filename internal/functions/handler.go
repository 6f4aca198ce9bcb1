package functions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/binventory/binventory/internal/audit"
	"github.com/binventory/binventory/internal/inventory"
)

// Handler executes inventory operations against the injected
// collaborators.
//
// Handler is stateless; all per-session context arrives as arguments.
// It is safe for concurrent use by multiple goroutines.
type Handler struct {
	inventory Inventory
	embedder  Embedder
	visions   Visions
	bins      BinContext
	audit     audit.Log

	minRelevance float64
	resolveLimit int
	logger       *slog.Logger
}

// NewHandler creates a function handler. minRelevance filters
// disambiguation candidates; resolveLimit caps how many an ambiguous
// query may touch.
func NewHandler(inv Inventory, embedder Embedder, visions Visions, bins BinContext,
	auditLog audit.Log, minRelevance float64, resolveLimit int, logger *slog.Logger) (*Handler, error) {
	if inv == nil || embedder == nil || visions == nil || bins == nil || auditLog == nil {
		return nil, fmt.Errorf("all collaborators are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		inventory:    inv,
		embedder:     embedder,
		visions:      visions,
		bins:         bins,
		audit:        auditLog,
		minRelevance: minRelevance,
		resolveLimit: resolveLimit,
		logger:       logger,
	}, nil
}

// AddItems adds the named items to a bin. Descriptions come from the
// session's vision record when the image reference carries an exact
// name match, otherwise a generic fallback. Items whose embedding
// fails are reported failed and excluded; the rest commit in one
// atomic batch recorded as a reversible audit entry.
func (h *Handler) AddItems(ctx context.Context, sessionID uuid.UUID, args AddArgs) Result {
	if args.Bin == "" {
		return failure("bin is required")
	}
	if len(args.Items) == 0 {
		return failure("items list is empty")
	}

	var observations map[string]string
	if args.ImageRef != "" {
		if recorded, ok := h.visions.Vision(sessionID, args.ImageRef); ok {
			observations = make(map[string]string, len(recorded))
			for _, obs := range recorded {
				observations[obs.Name] = obs.Description
			}
		}
	}

	prepared := make([]inventory.Item, 0, len(args.Items))
	var failed []map[string]any
	for _, name := range args.Items {
		name = strings.TrimSpace(name)
		if name == "" {
			failed = append(failed, map[string]any{"name": name, "reason": "empty item name"})
			continue
		}

		description, ok := observations[name]
		if !ok {
			description = fmt.Sprintf("%s in bin %s", name, args.Bin)
		}

		vec, err := h.embedder.Embed(ctx, description)
		if err != nil {
			h.logger.Warn("embedding failed", "item", name, "error", err)
			failed = append(failed, map[string]any{"name": name, "reason": fmt.Sprintf("embedding failed: %v", err)})
			continue
		}

		prepared = append(prepared, inventory.Item{
			Name:        name,
			Description: description,
			BinID:       args.Bin,
			ImageRef:    args.ImageRef,
			Embedding:   pgvector.NewVector(vec),
		})
	}

	data := map[string]any{
		"bin_id":       args.Bin,
		"items_added":  0,
		"items_failed": len(failed),
	}
	if len(failed) > 0 {
		data["failed_items"] = failed
	}

	if len(prepared) == 0 {
		return Result{Success: false, Message: "no items could be added", Data: data}
	}

	ids, err := h.inventory.BulkInsert(ctx, prepared)
	if err != nil {
		for _, item := range prepared {
			failed = append(failed, map[string]any{"name": item.Name, "reason": fmt.Sprintf("store failed: %v", err)})
		}
		data["items_failed"] = len(failed)
		data["failed_items"] = failed
		return Result{Success: false, Message: "adding items failed", Data: data}
	}

	data["items_added"] = len(ids)
	data["item_ids"] = idStrings(ids)

	description := fmt.Sprintf("added %d item(s) to bin %s", len(ids), args.Bin)
	opID, err := h.audit.Record(ctx, audit.ActionBulkAdd, description, true, map[string]any{
		"item_ids": idStrings(ids),
		"bin_id":   args.Bin,
	})
	if err != nil {
		// The insert committed; surface the audit failure without
		// pretending the add failed.
		h.logger.Error("audit record failed after bulk add", "error", err)
	} else {
		data["operation_id"] = opID.String()
	}

	if err := h.bins.SetCurrentBin(sessionID, args.Bin); err != nil {
		h.logger.Debug("setting current bin", "session_id", sessionID, "error", err)
	}

	return Result{Success: true, Message: description, Data: data}
}

// RemoveItems deletes items matched by query or selected by explicit
// ids. Ambiguous matches come back as a disambiguation request with
// nothing deleted.
func (h *Handler) RemoveItems(ctx context.Context, sessionID uuid.UUID, args RemoveArgs) Result {
	res, err := h.resolve(ctx, args.Query, args.Bin, args.ItemIDs, args.ConfirmAll)
	if err != nil {
		return failure(err.Error())
	}
	if res.disambiguation != nil {
		return Result{
			Success:        true,
			Message:        fmt.Sprintf("found %d items matching %q, please choose", len(res.disambiguation.Candidates), args.Query),
			Disambiguation: res.disambiguation,
		}
	}
	if len(res.items) == 0 {
		return failure(fmt.Sprintf("no items found matching %q", args.Query))
	}

	ids := make([]uuid.UUID, len(res.items))
	names := make([]string, len(res.items))
	for i, item := range res.items {
		ids[i] = item.ID
		names[i] = item.Name
	}

	if _, err := h.inventory.Delete(ctx, ids); err != nil {
		return failure(fmt.Sprintf("removing items failed: %v", err))
	}

	description := fmt.Sprintf("removed %d item(s): %s", len(ids), strings.Join(names, ", "))
	opID, err := h.audit.Record(ctx, audit.ActionRemove, description, false, map[string]any{
		"item_ids": idStrings(ids),
	})
	if err != nil {
		h.logger.Error("audit record failed after remove", "error", err)
	}

	data := map[string]any{
		"items_removed": len(ids),
		"item_ids":      idStrings(ids),
	}
	if err == nil {
		data["operation_id"] = opID.String()
	}
	return Result{Success: true, Message: description, Data: data}
}

// MoveItems moves matched items into the target bin. An item already
// in the target bin is reported failed while the rest still move.
func (h *Handler) MoveItems(ctx context.Context, sessionID uuid.UUID, args MoveArgs) Result {
	if args.ToBin == "" {
		return failure("target bin is required")
	}

	res, err := h.resolve(ctx, args.Query, args.FromBin, args.ItemIDs, args.ConfirmAll)
	if err != nil {
		return failure(err.Error())
	}
	if res.disambiguation != nil {
		return Result{
			Success:        true,
			Message:        fmt.Sprintf("found %d items matching %q, please choose", len(res.disambiguation.Candidates), args.Query),
			Disambiguation: res.disambiguation,
		}
	}
	if len(res.items) == 0 {
		return failure(fmt.Sprintf("no items found matching %q", args.Query))
	}

	var moveIDs []uuid.UUID
	var moveNames []string
	var failed []map[string]any
	fromBins := make(map[string]string)
	for _, item := range res.items {
		if item.BinID == args.ToBin {
			failed = append(failed, map[string]any{"name": item.Name, "reason": "already in target bin"})
			continue
		}
		moveIDs = append(moveIDs, item.ID)
		moveNames = append(moveNames, item.Name)
		fromBins[item.ID.String()] = item.BinID
	}

	data := map[string]any{
		"to_bin":       args.ToBin,
		"items_moved":  0,
		"items_failed": len(failed),
	}
	if len(failed) > 0 {
		data["failed_items"] = failed
	}

	if len(moveIDs) == 0 {
		return Result{Success: false, Message: "no items needed moving", Data: data}
	}

	if _, err := h.inventory.UpdateBin(ctx, moveIDs, args.ToBin); err != nil {
		return failure(fmt.Sprintf("moving items failed: %v", err))
	}

	data["items_moved"] = len(moveIDs)
	data["item_ids"] = idStrings(moveIDs)

	description := fmt.Sprintf("moved %d item(s) to bin %s: %s", len(moveIDs), args.ToBin, strings.Join(moveNames, ", "))
	opID, err := h.audit.Record(ctx, audit.ActionMove, description, false, map[string]any{
		"item_ids":  idStrings(moveIDs),
		"to_bin":    args.ToBin,
		"from_bins": fromBins,
	})
	if err != nil {
		h.logger.Error("audit record failed after move", "error", err)
	} else {
		data["operation_id"] = opID.String()
	}

	if err := h.bins.SetCurrentBin(sessionID, args.ToBin); err != nil {
		h.logger.Debug("setting current bin", "session_id", sessionID, "error", err)
	}

	return Result{Success: true, Message: description, Data: data}
}

// SearchItems is a read-only similarity search. No audit entry.
func (h *Handler) SearchItems(ctx context.Context, args SearchArgs) Result {
	if args.Query == "" {
		return failure("query is required")
	}
	limit := args.Limit
	if limit <= 0 || limit > h.resolveLimit {
		limit = h.resolveLimit
	}

	vec, err := h.embedder.Embed(ctx, args.Query)
	if err != nil {
		return failure(fmt.Sprintf("embedding query failed: %v", err))
	}

	matches, err := h.inventory.Search(ctx, pgvector.NewVector(vec), args.Bin, h.minRelevance, limit)
	if err != nil {
		return failure(fmt.Sprintf("search failed: %v", err))
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("found %d item(s) matching %q", len(matches), args.Query),
		Data:    map[string]any{"matches": compactMatches(matches)},
	}
}

// ListBin lists a bin's contents and makes it the session's current
// bin. No audit entry.
func (h *Handler) ListBin(ctx context.Context, sessionID uuid.UUID, args ListBinArgs) Result {
	if args.Bin == "" {
		return failure("bin is required")
	}

	items, err := h.inventory.ListBin(ctx, args.Bin)
	if err != nil {
		return failure(fmt.Sprintf("listing bin failed: %v", err))
	}

	if err := h.bins.SetCurrentBin(sessionID, args.Bin); err != nil {
		h.logger.Debug("setting current bin", "session_id", sessionID, "error", err)
	}

	compact := make([]map[string]any, len(items))
	for i, item := range items {
		compact[i] = map[string]any{
			"id":          item.ID.String(),
			"name":        item.Name,
			"description": item.Description,
		}
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("bin %s contains %d item(s)", args.Bin, len(items)),
		Data:    map[string]any{"bin_id": args.Bin, "items": compact},
	}
}

// Rollback undoes a previously recorded reversible operation by
// deleting the ids it inserted. It refuses when the entry is missing
// or not reversible; repeating a rollback is harmless.
func (h *Handler) Rollback(ctx context.Context, args RollbackArgs) Result {
	entry, err := h.audit.Get(ctx, args.OperationID)
	if err != nil {
		return failure(fmt.Sprintf("rollback refused: no audit entry for operation %s", args.OperationID))
	}
	if !entry.Reversible {
		return failure(fmt.Sprintf("rollback refused: operation %s (%s) is not reversible", args.OperationID, entry.Action))
	}

	ids, err := idsFromPayload(entry.Payload)
	if err != nil {
		return failure(fmt.Sprintf("rollback refused: %v", err))
	}

	removed, err := h.inventory.Delete(ctx, ids)
	if err != nil {
		return failure(fmt.Sprintf("rollback failed: %v", err))
	}

	description := fmt.Sprintf("rolled back operation %s, removed %d of %d item(s)", args.OperationID, removed, len(ids))
	if _, err := h.audit.Record(ctx, audit.ActionRollback, description, false, map[string]any{
		"rolled_back_operation": args.OperationID.String(),
		"item_ids":              idStrings(ids),
	}); err != nil {
		h.logger.Error("audit record failed after rollback", "error", err)
	}

	return Result{Success: true, Message: description, Data: map[string]any{
		"items_removed": removed,
		"item_ids":      idStrings(ids),
	}}
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// idsFromPayload extracts the item_ids list from an audit payload,
// tolerating the []any shape JSONB round-trips produce.
func idsFromPayload(payload map[string]any) ([]uuid.UUID, error) {
	raw, ok := payload["item_ids"]
	if !ok {
		return nil, fmt.Errorf("audit payload has no item ids")
	}

	var ids []uuid.UUID
	appendID := func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("audit payload id %v is not a string", v)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("parsing audit payload id %q: %w", s, err)
		}
		ids = append(ids, id)
		return nil
	}

	switch list := raw.(type) {
	case []string:
		for _, s := range list {
			if err := appendID(s); err != nil {
				return nil, err
			}
		}
	case []any:
		for _, v := range list {
			if err := appendID(v); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("audit payload item ids have unexpected type %T", raw)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("audit payload item id list is empty")
	}
	return ids, nil
}

func compactMatches(matches []inventory.Match) []map[string]any {
	out := make([]map[string]any, len(matches))
	for i, m := range matches {
		out[i] = map[string]any{
			"id":          m.ID.String(),
			"name":        m.Name,
			"description": m.Description,
			"bin_id":      m.BinID,
			"relevance":   roundScore(m.Relevance),
		}
	}
	return out
}
