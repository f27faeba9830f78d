package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/model/chat"
)

// SQLStore implements Repository on top of sqlx. Queries are written with '?'
// placeholders and rebound for the active driver.
type SQLStore struct {
	db *sqlx.DB
}

// Open builds the Repository selected by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger logrus.FieldLogger) (Repository, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.URL, cfg.Migrate, logger)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.URL)
	case config.DriverMemory, "":
		if logger != nil {
			logger.Warn("using in-memory persistence, conversations are lost on restart")
		}
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenPostgres connects to Postgres and optionally applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string, runMigrations bool, logger logrus.FieldLogger) (*SQLStore, error) {
	if runMigrations {
		if err := MigrateUp(databaseURL); err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Info("database migrations applied")
		}
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &SQLStore{db: db}, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	raw, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps writers serialized and an in-memory database shared.
	raw.SetMaxOpenConns(1)

	db := sqlx.NewDb(raw, "sqlite3")
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

const conversationColumns = `id, user_id, persona_id, title, summary, turn_count, created_at, updated_at`

func (s *SQLStore) CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	if err := validateConversation(conv); err != nil {
		return chat.Conversation{}, err
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	conv.UpdatedAt = conv.UpdatedAt.UTC()

	query := s.db.Rebind(`
		INSERT INTO conversations (` + conversationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.UserID, conv.PersonaID, conv.Title, conv.Summary, conv.TurnCount, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return chat.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return chat.Conversation{}, ErrNotFound
	}

	var conv chat.Conversation
	query := s.db.Rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`)
	if err := s.db.GetContext(ctx, &conv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Conversation{}, ErrNotFound
		}
		return chat.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLStore) ListConversations(ctx context.Context, userID string, limit int) ([]chat.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	conversations := make([]chat.Conversation, 0)
	query := s.db.Rebind(`
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC, created_at DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &conversations, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if err := validateMessage(msg); err != nil {
		return chat.Message{}, err
	}
	if _, err := uuid.Parse(msg.ConversationID); err != nil {
		return chat.Message{}, ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return chat.Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE conversations SET updated_at = ?
		WHERE id = ? AND updated_at < ?`),
		msg.CreatedAt, msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return chat.Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(1) FROM conversations WHERE id = ?`), msg.ConversationID); err != nil {
			return chat.Message{}, fmt.Errorf("lookup conversation: %w", err)
		}
		if exists == 0 {
			return chat.Message{}, ErrNotFound
		}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO messages (id, conversation_id, role, content, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.ModelUsed, msg.CreatedAt,
	); err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return chat.Message{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0)
	query := s.db.Rebind(`
		SELECT id, conversation_id, role, content, model_used, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC`)
	if err := s.db.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *SQLStore) IncrementTurnCount(ctx context.Context, conversationID string, at time.Time) (int, error) {
	var count int
	query := s.db.Rebind(`
		UPDATE conversations SET turn_count = turn_count + 1, updated_at = ?
		WHERE id = ?
		RETURNING turn_count`)
	if err := s.db.GetContext(ctx, &count, query, at.UTC(), conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment turn count: %w", err)
	}
	return count, nil
}

func (s *SQLStore) SaveSummary(ctx context.Context, conversationID, summary string, at time.Time) error {
	query := s.db.Rebind(`UPDATE conversations SET summary = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, summary, at.UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) LatestSummary(ctx context.Context, userID, personaID string) (string, error) {
	return s.latestSummary(ctx, `persona_id = ?`, userID, personaID)
}

func (s *SQLStore) LatestOtherPersonaSummary(ctx context.Context, userID, personaID string) (string, error) {
	return s.latestSummary(ctx, `persona_id <> ?`, userID, personaID)
}

func (s *SQLStore) latestSummary(ctx context.Context, personaClause, userID, personaID string) (string, error) {
	var summary string
	query := s.db.Rebind(`
		SELECT summary FROM conversations
		WHERE user_id = ? AND ` + personaClause + ` AND summary IS NOT NULL AND summary <> ''
		ORDER BY updated_at DESC
		LIMIT 1`)
	if err := s.db.GetContext(ctx, &summary, query, userID, personaID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("latest summary: %w", err)
	}
	return summary, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
