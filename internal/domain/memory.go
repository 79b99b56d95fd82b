package domain

import (
	"context"
	"time"
)

// MessageLog is the narrow persistence interface the orchestrator needs.
type MessageLog interface {
	// AppendMessage stores msg at the end of the conversation and returns
	// its sequence number.
	AppendMessage(ctx context.Context, convID string, msg Message) (int64, error)

	// RecentMessages returns the last limit messages ordered by sequence.
	RecentMessages(ctx context.Context, convID string, limit int) ([]Message, error)
}

// PreferenceStore keeps the facts users ask the assistant to remember.
type PreferenceStore interface {
	SavePreference(ctx context.Context, pref Preference) error
	Preferences(ctx context.Context, userID string, limit int) ([]Preference, error)
}

// ConversationStore keeps per-session conversation metadata.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, conv Conversation) error
	DeleteConversation(ctx context.Context, id string) error
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Preference struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"` // scheduling | personal | location | general
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
