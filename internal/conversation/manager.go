package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SystemInstruction is prepended to every window handed to the
// language model. It pins the assistant's role and the tool contract.
const SystemInstruction = `You are a bin inventory assistant. Users store items in named bins and talk to you to add, remove, move, search and list them. Use the provided tools for every inventory operation; never invent item ids or bin names. When a tool reports that disambiguation is required, ask the user to choose instead of guessing. Keep answers short and concrete.`

// Manager owns the conversation histories of all live sessions.
//
// The manager mutex only guards the session map. Each history carries
// its own lock, so concurrent turns on distinct sessions never block
// each other while mutations to one session stay serialized.
type Manager struct {
	mu        sync.Mutex
	histories map[uuid.UUID]*history

	maxMessages int
	maxAge      time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

type history struct {
	mu       sync.Mutex
	messages []Message
	vision   map[string][]Observation
}

// NewManager creates a manager that bounds every session's history to
// maxMessages entries none older than maxAge. A nil logger falls back
// to slog.Default().
func NewManager(maxMessages int, maxAge time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		histories:   make(map[uuid.UUID]*history),
		maxMessages: maxMessages,
		maxAge:      maxAge,
		logger:      logger,
		now:         time.Now,
	}
}

func (m *Manager) history(sessionID uuid.UUID) *history {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.histories[sessionID]
	if !ok {
		h = &history{vision: make(map[string][]Observation)}
		m.histories[sessionID] = h
	}
	return h
}

// Add appends a message to the session's log and prunes it back within
// bounds. The timestamp is assigned at append time.
func (m *Manager) Add(sessionID uuid.UUID, role Role, content string) {
	m.add(sessionID, Message{Role: role, Content: content})
}

// AddToolResult appends a tool-result message tagged with the tool name.
func (m *Manager) AddToolResult(sessionID uuid.UUID, name, content string) {
	m.add(sessionID, Message{Role: RoleTool, Name: name, Content: content})
}

func (m *Manager) add(sessionID uuid.UUID, msg Message) {
	msg.Timestamp = m.now()

	h := m.history(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
	m.prune(h)
}

// prune enforces the bounds, age first and count second. Caller holds
// the history lock.
func (m *Manager) prune(h *history) {
	cutoff := m.now().Add(-m.maxAge)

	keep := 0
	for keep < len(h.messages) && h.messages[keep].Timestamp.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		h.messages = append(h.messages[:0], h.messages[keep:]...)
	}

	if over := len(h.messages) - m.maxMessages; over > 0 {
		h.messages = append(h.messages[:0], h.messages[over:]...)
	}
}

// Window returns up to the last n messages in insertion order,
// prefixed by the fixed system instruction. The returned slice is a
// copy and safe to hold across turns.
func (m *Manager) Window(sessionID uuid.UUID, n int) []Message {
	h := m.history(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()

	start := 0
	if len(h.messages) > n {
		start = len(h.messages) - n
	}

	out := make([]Message, 0, len(h.messages)-start+1)
	out = append(out, Message{Role: RoleSystem, Content: SystemInstruction})
	out = append(out, h.messages[start:]...)
	return out
}

// RecordVision stores the analysis result for an image reference so a
// later add_items call can substitute real descriptions.
func (m *Manager) RecordVision(sessionID uuid.UUID, imageRef string, observations []Observation) {
	h := m.history(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.vision[imageRef] = observations
	m.logger.Debug("recorded vision analysis",
		"session_id", sessionID, "image_ref", imageRef, "observations", len(observations))
}

// Vision returns the stored analysis for an image reference.
func (m *Manager) Vision(sessionID uuid.UUID, imageRef string) ([]Observation, bool) {
	h := m.history(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()

	obs, ok := h.vision[imageRef]
	return obs, ok
}

// Remove discards a session's history and vision records.
func (m *Manager) Remove(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.histories, sessionID)
}

// Totals aggregates history shape across all sessions.
type Totals struct {
	Sessions int `json:"sessions"`
	Messages int `json:"messages"`
	Images   int `json:"images"`
}

// Stats reports aggregate counts across every tracked session.
func (m *Manager) Stats() Totals {
	m.mu.Lock()
	histories := make([]*history, 0, len(m.histories))
	for _, h := range m.histories {
		histories = append(histories, h)
	}
	m.mu.Unlock()

	t := Totals{Sessions: len(histories)}
	for _, h := range histories {
		h.mu.Lock()
		t.Messages += len(h.messages)
		t.Images += len(h.vision)
		h.mu.Unlock()
	}
	return t
}

// SessionStats reports the current shape of one session's history.
func (m *Manager) SessionStats(sessionID uuid.UUID) Stats {
	h := m.history(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{Messages: len(h.messages), Images: len(h.vision)}
	if len(h.messages) > 0 {
		st.Oldest = h.messages[0].Timestamp
		st.Newest = h.messages[len(h.messages)-1].Timestamp
	}
	return st
}
