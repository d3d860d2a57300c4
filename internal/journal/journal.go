package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; stale journals are recreated, not migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by a different
// schema version.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

// Event categories.
const (
	CategoryDevice   = "device"
	CategoryModule   = "module"
	CategorySession  = "session"
	CategoryLifecycle = "lifecycle"
)

// Event is one journal row.
type Event struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Category  string         `json:"category"`
	EventType string         `json:"event_type"`
	DeviceID  string         `json:"device_id,omitempty"`
	ModuleID  string         `json:"module_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Store is the SQLite-backed journal.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the journal to recreate)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Append records one event. The id and timestamp are assigned here.
func (s *Store) Append(ctx context.Context, evt Event) error {
	created := time.Now().UTC()
	var detail any
	if len(evt.Detail) > 0 {
		data, err := json.Marshal(evt.Detail)
		if err != nil {
			return fmt.Errorf("marshal event detail: %w", err)
		}
		detail = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (created_at, category, event_type, device_id, module_id, session_id, message, detail_json)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		created.Format(time.RFC3339Nano),
		evt.Category,
		evt.EventType,
		nullableString(evt.DeviceID),
		nullableString(evt.ModuleID),
		nullableString(evt.SessionID),
		nullableString(evt.Message),
		detail,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Tail returns the most recent events, newest first.
func (s *Store) Tail(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, category, event_type, device_id, module_id, session_id, message, detail_json
         FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune deletes the oldest rows beyond retain and returns the count removed.
func (s *Store) Prune(ctx context.Context, retain int) (int64, error) {
	if retain <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE id NOT IN (SELECT id FROM events ORDER BY id DESC LIMIT ?)`,
		retain)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (Event, error) {
	var (
		id         int64
		createdRaw string
		category   string
		eventType  string
		deviceID   sql.NullString
		moduleID   sql.NullString
		sessionID  sql.NullString
		message    sql.NullString
		detailRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &createdRaw, &category, &eventType, &deviceID, &moduleID, &sessionID, &message, &detailRaw); err != nil {
		return Event{}, err
	}

	evt := Event{
		ID:        id,
		Category:  category,
		EventType: eventType,
		DeviceID:  deviceID.String,
		ModuleID:  moduleID.String,
		SessionID: sessionID.String,
		Message:   message.String,
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		evt.CreatedAt = created
	}
	if detailRaw.Valid && detailRaw.String != "" {
		_ = json.Unmarshal([]byte(detailRaw.String), &evt.Detail)
	}
	return evt, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
