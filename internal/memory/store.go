package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"calendarbot/internal/domain"
)

// SQLiteStore persists conversations, the message log and preferences.
// It implements domain.ConversationStore, domain.MessageLog and
// domain.PreferenceStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ domain.ConversationStore = (*SQLiteStore)(nil)
	_ domain.MessageLog        = (*SQLiteStore)(nil)
	_ domain.PreferenceStore   = (*SQLiteStore)(nil)
)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// SQLite serializes writers; one connection keeps seq assignment simple.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, user_id, title, provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, conv.Provider, conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

// GetConversation returns nil, nil when the conversation does not exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var (
		conv            domain.Conversation
		title, provider sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, provider, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.UserID, &title, &provider, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv.Title = title.String
	conv.Provider = provider.String
	return &conv, nil
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv domain.Conversation) error {
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, provider = ?, updated_at = ? WHERE id = ?`,
		conv.Title, conv.Provider, conv.UpdatedAt, conv.ID,
	)
	return err
}

// DeleteConversation removes a conversation together with its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListConversations returns the user's conversations, most recently
// active first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, provider, created_at, updated_at
		 FROM conversations WHERE user_id = ?
		 ORDER BY updated_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var (
			c               domain.Conversation
			title, provider sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.UserID, &title, &provider, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Title = title.String
		c.Provider = provider.String
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// AppendMessage assigns the next sequence number of the conversation and
// stores msg under it.
func (s *SQLiteStore) AppendMessage(ctx context.Context, convID string, msg domain.Message) (int64, error) {
	var toolCalls sql.NullString
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return 0, fmt.Errorf("encode tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`, convID,
	).Scan(&seq); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, seq, role, content, tool_calls, tool_call_id, tool_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		convID, seq, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.ToolName, now,
	); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, convID,
	); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return seq, nil
}

// RecentMessages returns the last limit messages in sequence order. A
// non-positive limit returns the whole log.
func (s *SQLiteStore) RecentMessages(ctx context.Context, convID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, role, content, tool_calls, tool_call_id, tool_name FROM (
			SELECT seq, role, content, tool_calls, tool_call_id, tool_name
			FROM messages WHERE conversation_id = ?
			ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`, convID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m                                      domain.Message
			content, toolCalls, toolCallID, toolNm sql.NullString
		)
		if err := rows.Scan(&m.Seq, &m.Role, &content, &toolCalls, &toolCallID, &toolNm); err != nil {
			return nil, err
		}
		m.Content = content.String
		m.ToolCallID = toolCallID.String
		m.ToolName = toolNm.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls of message %d: %w", m.Seq, err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SavePreference stores a preference. Saving the same content again for the
// same user refreshes its category and timestamp instead of duplicating it.
func (s *SQLiteStore) SavePreference(ctx context.Context, pref domain.Preference) error {
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = time.Now()
	}
	pref.CreatedAt = pref.CreatedAt.UTC()
	if pref.Category == "" {
		pref.Category = "general"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (user_id, category, content, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, content) DO UPDATE SET category = excluded.category, created_at = excluded.created_at`,
		pref.UserID, pref.Category, strings.TrimSpace(pref.Content), pref.CreatedAt,
	)
	return err
}

// Preferences returns the user's most recent preferences, oldest first.
func (s *SQLiteStore) Preferences(ctx context.Context, userID string, limit int) ([]domain.Preference, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, category, content, created_at FROM (
			SELECT id, user_id, category, content, created_at
			FROM preferences WHERE user_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []domain.Preference
	for rows.Next() {
		var p domain.Preference
		if err := rows.Scan(&p.ID, &p.UserID, &p.Category, &p.Content, &p.CreatedAt); err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// PruneMessages deletes messages created before cutoff and returns how many
// went.
func (s *SQLiteStore) PruneMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned old messages", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Stats counts stored rows, for the status command.
type Stats struct {
	Conversations int64
	Messages      int64
	Preferences   int64
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM preferences)`,
	).Scan(&st.Conversations, &st.Messages, &st.Preferences)
	return st, err
}

// DB exposes the underlying handle for diagnostics.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
