package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"igbridge/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.BridgeStore using SQLite. A single
// connection serializes writers, so the poll loop and the relay handler can
// call in concurrently without extra locking.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	if seen, mappings, err := s.Stats(context.Background()); err == nil {
		logger.Info("database initialized",
			"path", dbPath,
			"seen_messages", seen,
			"mappings", mappings,
		)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS seen_messages (
		ig_item_id   TEXT PRIMARY KEY,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS message_mapping (
		id            INTEGER PRIMARY KEY,
		tg_message_id INTEGER NOT NULL,
		tg_chat_id    INTEGER NOT NULL,
		ig_thread_id  TEXT NOT NULL,
		ig_item_id    TEXT NOT NULL,
		ig_sender     TEXT,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tg_message_id, tg_chat_id)
	);
	CREATE INDEX IF NOT EXISTS idx_tg_msg ON message_mapping(tg_message_id, tg_chat_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) IsSeen(ctx context.Context, igItemID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_messages WHERE ig_item_id = ?`, igItemID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, igItemID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_messages (ig_item_id) VALUES (?)`, igItemID,
	)
	return err
}

func (s *SQLiteStore) SaveMapping(ctx context.Context, m domain.MessageMapping) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO message_mapping
		 (tg_message_id, tg_chat_id, ig_thread_id, ig_item_id, ig_sender, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.TGMessageID, m.TGChatID, m.IGThreadID, m.IGItemID, m.IGSender, m.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetMapping(ctx context.Context, tgMessageID int, tgChatID int64) (*domain.MessageMapping, error) {
	var m domain.MessageMapping
	var sender sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT tg_message_id, tg_chat_id, ig_thread_id, ig_item_id, ig_sender, created_at
		 FROM message_mapping WHERE tg_message_id = ? AND tg_chat_id = ?`,
		tgMessageID, tgChatID,
	).Scan(&m.TGMessageID, &m.TGChatID, &m.IGThreadID, &m.IGItemID, &sender, &m.CreatedAt)
	if err == sql.ErrNoRows {
		// Expected outcome: not a bridge-forwarded message.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.IGSender = sender.String
	return &m, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (seen int64, mappings int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_messages`).Scan(&seen); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_mapping`).Scan(&mappings); err != nil {
		return 0, 0, err
	}
	return seen, mappings, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
