package memory

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"calendarbot/internal/logging"
)

// schemaVersion is the version a fully migrated database reports.
const schemaVersion = 3

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order, each exactly once, tracked in the
// schema_version table.
var migrations = []migration{
	{
		Version:     1,
		Description: "conversations and the ordered message log",
		SQL: `
		CREATE TABLE IF NOT EXISTS conversations (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL DEFAULT '',
			title       TEXT,
			provider    TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT,
			tool_calls      TEXT,
			tool_call_id    TEXT,
			tool_name       TEXT,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(conversation_id, seq)
		);
		`,
	},
	{
		Version:     2,
		Description: "remembered user preferences",
		SQL: `
		CREATE TABLE IF NOT EXISTS preferences (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL,
			category    TEXT NOT NULL DEFAULT 'general',
			content     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, content)
		);
		CREATE INDEX IF NOT EXISTS idx_preferences_user ON preferences(user_id, created_at);
		`,
	},
	{
		Version:     3,
		Description: "message timestamps index for retention pruning",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
		`,
	},
}

const createSchemaVersion = `
CREATE TABLE IF NOT EXISTS schema_version (
	version     INTEGER PRIMARY KEY,
	description TEXT,
	applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// RunMigrations brings db up to schemaVersion. Each pending migration runs
// in its own transaction.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(createSchemaVersion); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)
		err := applyInTx(db, m)
		if err == nil {
			continue
		}
		logger.Warn("migration failed as a whole, retrying statement by statement", "version", m.Version, logging.Err(err))
		if err := applyStatements(db, m, logger); err != nil {
			return err
		}
	}
	return nil
}

func applyInTx(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.Version, err)
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		tx.Rollback()
		return err
	}
	if err := recordVersion(tx, m); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func recordVersion(ex execer, m migration) error {
	_, err := ex.Exec("INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)", m.Version, m.Description)
	if err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	return nil
}

// applyStatements runs each statement of m on its own, skipping those whose
// object already exists. It recovers databases left half-migrated.
func applyStatements(db *sql.DB, m migration, logger *slog.Logger) error {
	for _, stmt := range strings.Split(m.SQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err := db.Exec(stmt)
		switch {
		case err == nil:
		case alreadyApplied(err):
			logger.Debug("migration statement skipped", "version", m.Version, "stmt", truncate(stmt, 60))
		default:
			return fmt.Errorf("migration v%d: %w (statement: %s)", m.Version, err, truncate(stmt, 200))
		}
	}
	return recordVersion(db, m)
}

func alreadyApplied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// GetSchemaVersion returns 0 for a database that was never migrated.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var tables int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tables); err != nil {
		return 0, err
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
