package domain

import "time"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a conversation, ordered by Seq. An empty Content
// stands for a null content field.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Seq        int64      `json:"seq,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments are kept
// as the raw text the model produced until the dispatcher validates them.
type ToolCall struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RawArguments string `json:"arguments"`
}

// Caller identifies who a turn runs for.
type Caller struct {
	UserID      string
	Credentials *Credentials
}

// Credentials are opaque calendar-service credentials handed in by the
// session layer. Refreshing them is the caller's job.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

type InboundMessage struct {
	Channel   string
	ChatID    string
	UserID    string
	Content   string
	Timestamp time.Time
	Provider  string // optional: override provider for this message
}

type OutboundMessage struct {
	Channel     string
	ChatID      string
	Content     string
	StreamEvent *StreamEvent // optional: incremental delivery
}
