// Package dispatch runs the orchestration loop of one conversational
// turn: send the windowed transcript and tool schemas to the model,
// execute requested tool calls in order, feed results back, repeat
// until the model answers in plain text or the round ceiling trips.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/binventory/binventory/internal/conversation"
	"github.com/binventory/binventory/internal/functions"
	"github.com/binventory/binventory/internal/llm"
)

// LLM is the completion surface the dispatcher needs.
type LLM interface {
	Complete(ctx context.Context, messages []llm.Message, tools []*genai.Tool) (*llm.Reply, error)
}

// Executor runs the tool operations.
type Executor interface {
	AddItems(ctx context.Context, sessionID uuid.UUID, args functions.AddArgs) functions.Result
	RemoveItems(ctx context.Context, sessionID uuid.UUID, args functions.RemoveArgs) functions.Result
	MoveItems(ctx context.Context, sessionID uuid.UUID, args functions.MoveArgs) functions.Result
	SearchItems(ctx context.Context, args functions.SearchArgs) functions.Result
	ListBin(ctx context.Context, sessionID uuid.UUID, args functions.ListBinArgs) functions.Result
}

// Conversation is the history surface the dispatcher needs.
type Conversation interface {
	Add(sessionID uuid.UUID, role conversation.Role, content string)
	AddToolResult(sessionID uuid.UUID, name, content string)
	Window(sessionID uuid.UUID, n int) []conversation.Message
}

// Dispatcher drives the per-turn tool-calling loop.
//
// Dispatcher is stateless across turns and safe for concurrent use;
// turns for distinct sessions proceed independently.
type Dispatcher struct {
	llm        LLM
	exec       Executor
	conv       Conversation
	maxRounds  int
	windowSize int
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher. maxRounds caps model round trips
// per turn; windowSize is how many recent messages each round sees.
func NewDispatcher(model LLM, exec Executor, conv Conversation, maxRounds, windowSize int, logger *slog.Logger) (*Dispatcher, error) {
	if model == nil || exec == nil || conv == nil {
		return nil, fmt.Errorf("all collaborators are required")
	}
	if maxRounds <= 0 {
		return nil, fmt.Errorf("max rounds must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		llm:        model,
		exec:       exec,
		conv:       conv,
		maxRounds:  maxRounds,
		windowSize: windowSize,
		logger:     logger,
	}, nil
}

// Turn processes one user message and returns the final envelope.
// imageRef, when set, names a photo whose analysis was already
// recorded in the conversation's vision store.
//
// A failed tool call becomes a failed tool result fed back to the
// model; side effects committed by earlier calls in the same turn are
// never undone. Exceeding the round ceiling fails the turn but leaves
// the session usable.
func (d *Dispatcher) Turn(ctx context.Context, sessionID uuid.UUID, text, imageRef string) functions.Result {
	userContent := text
	if imageRef != "" {
		userContent = fmt.Sprintf("%s\n[attached photo: %s]", text, imageRef)
	}
	d.conv.Add(sessionID, conversation.RoleUser, userContent)

	// Working transcript for this turn. It starts from the pruned
	// window and grows with tool rounds; only compact summaries go
	// back into the shared history.
	working := toLLMMessages(d.conv.Window(sessionID, d.windowSize))

	var lastData map[string]any
	for round := 0; round < d.maxRounds; round++ {
		reply, err := d.llm.Complete(ctx, working, Tools())
		if err != nil {
			d.logger.Error("completion failed", "session_id", sessionID, "round", round, "error", err)
			return functions.Result{Success: false, Message: fmt.Sprintf("language model call failed: %v", err)}
		}

		if len(reply.ToolCalls) == 0 {
			d.conv.Add(sessionID, conversation.RoleModel, reply.Text)
			return functions.Result{Success: true, Message: reply.Text, Data: lastData}
		}

		working = append(working, llm.Message{Role: llm.RoleModel, ToolCalls: reply.ToolCalls})

		// Strictly sequential: a later call may depend on an
		// earlier call's effects.
		for _, call := range reply.ToolCalls {
			result := d.execute(ctx, sessionID, call)

			summary := summarize(result)
			d.conv.AddToolResult(sessionID, call.Name, summary)
			working = append(working, llm.Message{
				Role:       llm.RoleTool,
				ToolName:   call.Name,
				ToolResult: resultPayload(result),
			})

			if result.Disambiguation != nil {
				// Hand the choice to the user; no further rounds.
				d.conv.Add(sessionID, conversation.RoleModel, result.Message)
				return functions.Result{
					Success:        true,
					Message:        result.Message,
					Data:           lastData,
					Disambiguation: result.Disambiguation,
				}
			}
			if result.Data != nil {
				lastData = result.Data
			}
		}
	}

	d.logger.Warn("tool round ceiling reached", "session_id", sessionID, "max_rounds", d.maxRounds)
	return functions.Result{
		Success: false,
		Message: fmt.Sprintf("request needed more than %d tool rounds, please simplify it", d.maxRounds),
		Data:    lastData,
	}
}

// execute validates one tool call against its typed argument payload
// and runs it. Unknown names and malformed arguments become failed
// results the model sees on the next round.
func (d *Dispatcher) execute(ctx context.Context, sessionID uuid.UUID, call llm.ToolCall) functions.Result {
	d.logger.Debug("executing tool call", "session_id", sessionID, "tool", call.Name)

	switch call.Name {
	case ToolAddItems:
		var args functions.AddArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return invalidArgs(call.Name, err)
		}
		return d.exec.AddItems(ctx, sessionID, args)
	case ToolRemoveItems:
		var args functions.RemoveArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return invalidArgs(call.Name, err)
		}
		return d.exec.RemoveItems(ctx, sessionID, args)
	case ToolMoveItems:
		var args functions.MoveArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return invalidArgs(call.Name, err)
		}
		return d.exec.MoveItems(ctx, sessionID, args)
	case ToolSearchItems:
		var args functions.SearchArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return invalidArgs(call.Name, err)
		}
		return d.exec.SearchItems(ctx, args)
	case ToolListBin:
		var args functions.ListBinArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return invalidArgs(call.Name, err)
		}
		return d.exec.ListBin(ctx, sessionID, args)
	default:
		return functions.Result{Success: false, Message: fmt.Sprintf("unknown tool %q", call.Name)}
	}
}

// decodeArgs maps the model's loose argument map onto the typed
// payload, rejecting fields outside the schema.
func decodeArgs(raw map[string]any, dst any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	return nil
}

func invalidArgs(tool string, err error) functions.Result {
	return functions.Result{Success: false, Message: fmt.Sprintf("invalid arguments for %s: %v", tool, err)}
}

// summarize renders a result as compact JSON for the shared history.
// Results carry no embeddings, so the whole envelope fits.
func summarize(res functions.Result) string {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"message":%q}`, res.Success, res.Message)
	}
	return string(data)
}

// resultPayload shapes a result as the function-response map the model
// receives in-turn.
func resultPayload(res functions.Result) map[string]any {
	payload := map[string]any{
		"success": res.Success,
		"message": res.Message,
	}
	if res.Data != nil {
		payload["data"] = res.Data
	}
	if res.Disambiguation != nil {
		payload["disambiguation"] = res.Disambiguation
	}
	return payload
}

func toLLMMessages(messages []conversation.Message) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, msg := range messages {
		out[i] = llm.Message{
			Role:     string(msg.Role),
			Content:  msg.Content,
			ToolName: msg.Name,
		}
	}
	return out
}
