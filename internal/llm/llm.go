// Package llm wraps the Gemini API behind the three collaborator
// surfaces the orchestrator needs: chat completion with tool calling,
// text embedding, and image analysis.
package llm

import (
	"errors"
)

// ErrEmptyResponse indicates the model returned no usable content.
var ErrEmptyResponse = errors.New("empty model response")

// Message roles mirrored from the conversation log.
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
	RoleTool   = "tool"
)

// ToolCall is one structured operation request emitted by the model.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Message is one transcript entry sent to the model. Model messages
// may carry tool calls instead of text; tool messages carry the result
// of executing one call.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall     // set on model messages that requested tools
	ToolName   string         // set on tool messages
	ToolResult map[string]any // set on tool messages
}

// Reply is the model's answer to one completion call: either plain
// text or one or more tool-call requests.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Observation is one item identified in an image.
type Observation struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}
