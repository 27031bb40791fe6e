// Package config holds keygate's operator-side state: the YAML configuration
// file and a small SQLite store for settings and the key audit trail.
//
// The store deliberately does NOT persist key records. Key state is volatile
// by design; the audit trail is append-only display metadata about
// lifecycle events, never a source of truth.
package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store manages settings (hashed admin secret, instance id) and the audit
// trail, backed by SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore opens the store under dataDir. Pass empty string for in-memory
// (tests).
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "keygate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate settings database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value for key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// SetSetting upserts a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

// AuditEvent is one recorded key lifecycle event.
type AuditEvent struct {
	ID        int64     `json:"id" db:"id"`
	Action    string    `json:"action" db:"action"` // created, bound, expired, deleted, sweep
	Key       string    `json:"key" db:"key"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// KeyEvent appends an audit event. Recording is best-effort: the audit trail
// is display metadata, so failures are swallowed rather than propagated into
// the request path.
func (s *Store) KeyEvent(ctx context.Context, action, key, detail string) {
	_, _ = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (action, key, detail) VALUES (?, ?, ?)`,
		action, key, detail)
}

// ListKeyEvents returns the most recent audit events, newest first.
func (s *Store) ListKeyEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var events []AuditEvent
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, action, key, detail, created_at
		 FROM audit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// HashSecret returns the hex-encoded SHA-256 digest of a raw secret string.
// Both the stored admin secret and candidate secrets go through this before
// comparison, so the plaintext never sits in the store.
func HashSecret(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
