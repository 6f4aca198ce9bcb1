// Package conversation keeps the bounded per-session message log that
// feeds the dispatcher, plus the vision-analysis records attached to a
// session's image references.
//
// Histories are pruned on every append: messages older than the
// configured age are dropped first, then the oldest messages until the
// count bound holds. Vision analyses are kept in a typed side map
// rather than being encoded into chat messages.
package conversation

import (
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleTool   Role = "tool"
)

// Message is one entry of a session's conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"` // tool name for RoleTool messages
	Timestamp time.Time `json:"timestamp"`
}

// Observation is one item identified by vision analysis of an image.
type Observation struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Stats summarizes one session's history for operational tooling.
type Stats struct {
	Messages int       `json:"messages"`
	Oldest   time.Time `json:"oldest,omitzero"`
	Newest   time.Time `json:"newest,omitzero"`
	Images   int       `json:"images"`
}
