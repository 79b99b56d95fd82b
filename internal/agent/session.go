package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
)

const defaultTitle = "New conversation"

// SessionStore is what the session layer needs from persistence.
type SessionStore interface {
	domain.ConversationStore
	domain.MessageLog
}

// SessionManager maps chat sessions to conversations and loads their recent
// history.
type SessionManager struct {
	store  SessionStore
	logger *slog.Logger
	mu     sync.RWMutex
}

func NewSessionManager(store SessionStore, logger *slog.Logger) *SessionManager {
	return &SessionManager{store: store, logger: logger}
}

// GetOrCreateConversation returns the conversation id for sessionKey,
// creating the conversation on first use.
func (sm *SessionManager) GetOrCreateConversation(ctx context.Context, sessionKey, userID, provider string) (string, error) {
	sm.mu.RLock()
	conv, err := sm.store.GetConversation(ctx, sessionKey)
	sm.mu.RUnlock()
	if err != nil {
		return "", err
	}
	if conv != nil {
		return conv.ID, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	conv, err = sm.store.GetConversation(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	if conv != nil {
		return conv.ID, nil
	}

	now := time.Now()
	if err := sm.store.CreateConversation(ctx, domain.Conversation{
		ID:        sessionKey,
		UserID:    userID,
		Title:     defaultTitle,
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return "", err
	}
	sm.logger.Info("created new conversation", "session", sessionKey, logging.User(userID), logging.Provider(provider))
	return sessionKey, nil
}

// History returns the last limit messages of a conversation.
func (sm *SessionManager) History(ctx context.Context, convID string, limit int) ([]domain.Message, error) {
	return sm.store.RecentMessages(ctx, convID, limit)
}

// UpdateTitle names an untitled conversation after its first user message.
func (sm *SessionManager) UpdateTitle(ctx context.Context, convID, firstUserMsg string) {
	conv, err := sm.store.GetConversation(ctx, convID)
	if err != nil || conv == nil {
		return
	}
	if conv.Title != "" && conv.Title != defaultTitle {
		return
	}
	conv.Title = generateTitle(firstUserMsg)
	conv.UpdatedAt = time.Now()
	if err := sm.store.UpdateConversation(ctx, *conv); err != nil {
		sm.logger.Warn("failed to update conversation title", logging.Conversation(convID), logging.Err(err))
	}
}

// ClearSession deletes a conversation and its messages.
func (sm *SessionManager) ClearSession(ctx context.Context, sessionKey string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.store.DeleteConversation(ctx, sessionKey); err != nil {
		sm.logger.Warn("failed to clear session", "session", sessionKey, logging.Err(err))
		return err
	}
	sm.logger.Info("session cleared", "session", sessionKey)
	return nil
}

func generateTitle(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return defaultTitle
	}
	if idx := strings.IndexAny(msg, "\n\r"); idx > 0 {
		msg = msg[:idx]
	}
	if len(msg) > 60 {
		cut := strings.LastIndex(msg[:60], " ")
		if cut < 20 {
			cut = 60
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
