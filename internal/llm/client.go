package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Timeouts for the three collaborator calls. Each bounds one API
// round trip including retries' individual attempts.
const (
	CompleteTimeout = 60 * time.Second
	EmbedTimeout    = 30 * time.Second
	AnalyzeTimeout  = 60 * time.Second
)

// EmbedDimension is the dimensionality requested from the embedding
// model. It must match the vector column width in the item store.
const EmbedDimension int32 = 768

// Config holds the model names and generation settings.
type Config struct {
	APIKey        string
	ChatModel     string
	EmbedderModel string
	VisionModel   string
	Temperature   float32

	// RateLimiter throttles outgoing API calls. Nil installs a
	// conservative default.
	RateLimiter *rate.Limiter
}

// Client talks to the Gemini API.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	client  *genai.Client
	cfg     Config
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *slog.Logger
}

// NewClient creates a Gemini client. A nil logger falls back to
// slog.Default().
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.ChatModel == "" || cfg.EmbedderModel == "" || cfg.VisionModel == "" {
		return nil, fmt.Errorf("chat, embedder and vision model names are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Client{
		client:  gc,
		cfg:     cfg,
		limiter: limiter,
		retry:   DefaultRetryConfig(),
		logger:  logger,
	}, nil
}

// Complete sends the transcript and tool declarations to the chat
// model and returns either text or the requested tool calls.
func (c *Client) Complete(ctx context.Context, messages []Message, tools []*genai.Tool) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, CompleteTimeout)
	defer cancel()

	system, contents := toContents(messages)

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.cfg.Temperature),
	}
	if len(tools) > 0 {
		config.Tools = tools
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.generateWithRetry(ctx, c.cfg.ChatModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	reply := &Reply{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{Name: fc.Name, Args: fc.Args})
	}
	if reply.Text == "" && len(reply.ToolCalls) == 0 {
		return nil, ErrEmptyResponse
	}
	return reply, nil
}

// Embed generates a fixed-size vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	ctx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	dim := EmbedDimension
	result, err := c.client.Models.EmbedContent(ctx,
		c.cfg.EmbedderModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyResponse
	}
	return result.Embeddings[0].Values, nil
}

// analyzePrompt asks the vision model for a strict JSON inventory of
// the photographed items.
const analyzePrompt = `Identify every distinct physical item in this photo. Respond with a JSON array only, no prose. Each element: {"name": short lowercase item name, "description": one sentence describing the item as seen, "confidence": 0..1}. Skip people, text and background surfaces.`

// Analyze runs vision analysis on an image and returns the identified
// items with confidence rounded to two decimals.
func (c *Client) Analyze(ctx context.Context, imageData []byte, mimeType string) ([]Observation, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("image data is required")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	ctx, cancel := context.WithTimeout(ctx, AnalyzeTimeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(imageData, mimeType),
			genai.NewPartFromText(analyzePrompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	resp, err := c.generateWithRetry(ctx, c.cfg.VisionModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("vision analysis: %w", err)
	}

	observations, err := parseObservations(resp.Text())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("vision analysis complete", "observations", len(observations))
	return observations, nil
}

// parseObservations decodes the vision model's JSON reply, tolerating
// a markdown code fence around the array.
func parseObservations(text string) ([]Observation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, ErrEmptyResponse
	}

	var observations []Observation
	if err := json.Unmarshal([]byte(text), &observations); err != nil {
		return nil, fmt.Errorf("parsing vision response: %w", err)
	}

	for i := range observations {
		observations[i].Name = strings.TrimSpace(observations[i].Name)
		observations[i].Confidence = math.Round(observations[i].Confidence*100) / 100
	}
	return observations, nil
}

// toContents converts the transcript to genai contents, extracting the
// system instruction. Tool results ride as function-response parts so
// the model can correlate them with its own calls.
func toContents(messages []Message) (system string, contents []*genai.Content) {
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if system == "" {
				system = msg.Content
			}
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleModel:
			if len(msg.ToolCalls) > 0 {
				parts := make([]*genai.Part, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Args))
				}
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			} else {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
			}
		case RoleTool:
			result := msg.ToolResult
			if result == nil {
				result = map[string]any{"result": msg.Content}
			}
			part := genai.NewPartFromFunctionResponse(msg.ToolName, result)
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		}
	}
	return system, contents
}
