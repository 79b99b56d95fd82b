package domain

import "context"

// Provider is a chat-completion model that can request tool calls. Chat
// makes exactly one request; retrying is the caller's decision.
type Provider interface {
	Name() string
	Models() []string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Healthy(ctx context.Context) error
}

// StreamEventType classifies an incremental turn event.
type StreamEventType string

const (
	StreamThinking  StreamEventType = "thinking"
	StreamToolStart StreamEventType = "tool_start"
	StreamToolEnd   StreamEventType = "tool_end"
	StreamDone      StreamEventType = "done"
	StreamError     StreamEventType = "error"
)

// StreamEvent is a single incremental event emitted while a turn runs.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"` // final text or error message
	Tool    string          `json:"tool,omitempty"`
	ToolID  string          `json:"tool_id,omitempty"`
	Status  StatusTag       `json:"status,omitempty"` // set on tool_end
}

// ChatRequest is one model call. Model empty means the provider default.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	Model       string
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // stop | tool_calls | length
	Usage        Usage
	LatencyMs    int64
}

func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ToolDefinition advertises a tool; Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
