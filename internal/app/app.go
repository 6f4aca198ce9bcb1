// Package app wires the orchestrator together: configuration, Gemini
// client, database pool, stores, function handler and dispatcher, plus
// the background session sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/binventory/binventory/internal/audit"
	"github.com/binventory/binventory/internal/config"
	"github.com/binventory/binventory/internal/conversation"
	"github.com/binventory/binventory/internal/database"
	"github.com/binventory/binventory/internal/dispatch"
	"github.com/binventory/binventory/internal/functions"
	"github.com/binventory/binventory/internal/inventory"
	"github.com/binventory/binventory/internal/llm"
	"github.com/binventory/binventory/internal/session"
)

// App is the application container.
type App struct {
	Config *config.Config

	Pool       *pgxpool.Pool
	LLM        *llm.Client
	Sessions   *session.Store
	Conv       *conversation.Manager
	Inventory  *inventory.Store
	Audit      audit.Log
	Handler    *functions.Handler
	Dispatcher *dispatch.Dispatcher

	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// TurnResult is what one conversational turn returns to the caller.
type TurnResult struct {
	SessionID uuid.UUID        `json:"session_id"`
	Result    functions.Result `json:"result"`
}

// New builds the application from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	client, err := llm.NewClient(ctx, llm.Config{
		APIKey:        cfg.GeminiAPIKey,
		ChatModel:     cfg.ChatModel,
		EmbedderModel: cfg.EmbedderModel,
		VisionModel:   cfg.VisionModel,
		Temperature:   cfg.Temperature,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	sessions := session.NewStore(cfg.SessionTTL, logger)
	conv := conversation.NewManager(cfg.MaxMessages, cfg.MaxMessageAge, logger)

	invStore, err := inventory.NewStore(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating inventory store: %w", err)
	}

	auditLog, err := audit.NewPostgresLog(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating audit log: %w", err)
	}

	handler, err := functions.NewHandler(invStore, client, conv, sessions, auditLog,
		cfg.MinRelevance, cfg.ResolveLimit, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating function handler: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(client, handler, conv,
		cfg.MaxToolRounds, cfg.MaxMessages, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:     cfg,
		Pool:       pool,
		LLM:        client,
		Sessions:   sessions,
		Conv:       conv,
		Inventory:  invStore,
		Audit:      auditLog,
		Handler:    handler,
		Dispatcher: dispatcher,
		logger:     logger,
		cancel:     cancel,
	}

	a.wg.Add(1)
	go a.sweepSessions(sweepCtx, cfg.SessionCleanupInterval)

	return a, nil
}

// Chat runs one conversational turn. A nil session id, or one that has
// expired, starts a fresh session transparently. imageRef must name a
// photo already ingested via IngestImage.
func (a *App) Chat(ctx context.Context, sessionID uuid.UUID, text, imageRef string) (*TurnResult, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	sessionID, err := a.ensureSession(sessionID)
	if err != nil {
		return nil, err
	}

	result := a.Dispatcher.Turn(ctx, sessionID, text, imageRef)
	return &TurnResult{SessionID: sessionID, Result: result}, nil
}

// IngestImage runs vision analysis on an image, records the result in
// the session's vision store and adds a short model note so the
// dispatcher knows what was seen. Must be called before the turn that
// references the image.
func (a *App) IngestImage(ctx context.Context, sessionID uuid.UUID, imageRef string, imageData []byte, mimeType string) (uuid.UUID, []conversation.Observation, error) {
	if imageRef == "" {
		return uuid.Nil, nil, fmt.Errorf("image reference is required")
	}

	sessionID, err := a.ensureSession(sessionID)
	if err != nil {
		return uuid.Nil, nil, err
	}

	raw, err := a.LLM.Analyze(ctx, imageData, mimeType)
	if err != nil {
		return sessionID, nil, fmt.Errorf("analyzing image: %w", err)
	}

	observations := make([]conversation.Observation, len(raw))
	names := make([]string, len(raw))
	for i, obs := range raw {
		observations[i] = conversation.Observation{
			Name:        obs.Name,
			Description: obs.Description,
			Confidence:  obs.Confidence,
		}
		names[i] = obs.Name
	}

	a.Conv.RecordVision(sessionID, imageRef, observations)
	a.Conv.Add(sessionID, conversation.RoleModel,
		fmt.Sprintf("Image %s uploaded and analyzed. Found %d items: %s", imageRef, len(names), join(names)))

	return sessionID, observations, nil
}

// Rollback undoes a previously recorded reversible operation.
func (a *App) Rollback(ctx context.Context, operationID uuid.UUID) functions.Result {
	return a.Handler.Rollback(ctx, functions.RollbackArgs{OperationID: operationID})
}

// EndSession removes a session and its conversation history.
func (a *App) EndSession(sessionID uuid.UUID) error {
	a.Conv.Remove(sessionID)
	return a.Sessions.End(sessionID)
}

// ensureSession returns a live session id, creating a fresh session
// when the given one is nil, unknown or expired.
func (a *App) ensureSession(sessionID uuid.UUID) (uuid.UUID, error) {
	if sessionID != uuid.Nil {
		if _, err := a.Sessions.Get(sessionID); err == nil {
			return sessionID, nil
		} else if !errors.Is(err, session.ErrNotFound) {
			return uuid.Nil, err
		}
		// Expired or unknown: drop any stale history before reuse.
		a.Conv.Remove(sessionID)
	}
	return a.Sessions.New(), nil
}

// sweepSessions periodically purges expired sessions and their
// histories.
func (a *App) sweepSessions(ctx context.Context, interval time.Duration) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := a.Sessions.CleanupExpired()
			for _, id := range removed {
				a.Conv.Remove(id)
			}
			if len(removed) > 0 {
				a.logger.Debug("session sweep", "removed", len(removed))
			}
		}
	}
}

// Close stops the sweeper and releases the database pool.
func (a *App) Close() error {
	a.logger.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.Pool != nil {
		a.Pool.Close()
	}
	return nil
}

func join(names []string) string {
	if len(names) == 0 {
		return "nothing"
	}
	return strings.Join(names, ", ")
}
