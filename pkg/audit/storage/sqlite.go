package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"veritas-hq/warden/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite mirror.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the wait duration when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default mirror configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore mirrors audit entries into a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens the database, applies pragmas, and creates the
// schema.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit mirror: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "audit.storage.sqlite"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("audit mirror initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("insert schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version mismatch: want %d, got %d", SchemaVersion, version)
	}

	return nil
}

// Store persists one audit entry.
func (s *SQLiteStore) Store(ctx context.Context, entry *audit.Entry) error {
	var details interface{}
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal details for entry %d: %w", entry.Sequence, err)
		}
		details = string(data)
	}

	query := `
		INSERT INTO audit_entries (
			sequence, event_id, event_type, timestamp,
			request_id, agent_id, actor_id,
			details, previous_hash, hash, signature
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.Sequence, entry.EventID, string(entry.EventType), entry.Timestamp,
		nullable(entry.RequestID), nullable(entry.AgentID), nullable(entry.ActorID),
		details, entry.PreviousHash, entry.Hash, entry.Signature,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry %d: %w", entry.Sequence, err)
	}

	return nil
}

// Load reads back all mirrored entries in sequence order, for offline
// verification after a restart.
func (s *SQLiteStore) Load(ctx context.Context) ([]*audit.Entry, error) {
	query := `
		SELECT sequence, event_id, event_type, timestamp,
		       request_id, agent_id, actor_id,
		       details, previous_hash, hash, signature
		FROM audit_entries
		ORDER BY sequence ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var eventType string
		var requestID, agentID, actorID, details sql.NullString

		if err := rows.Scan(
			&entry.Sequence, &entry.EventID, &eventType, &entry.Timestamp,
			&requestID, &agentID, &actorID,
			&details, &entry.PreviousHash, &entry.Hash, &entry.Signature,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.EventType = audit.EventType(eventType)
		entry.RequestID = requestID.String
		entry.AgentID = agentID.String
		entry.ActorID = actorID.String

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details for entry %d: %w", entry.Sequence, err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Count returns the number of mirrored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullable converts "" to NULL so optional bindings stay queryable.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
