package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryEntry is one keyed fact saved by the save_memory tool.
type MemoryEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// ContextNote is one freeform note appended by the add_to_context tool.
type ContextNote struct {
	ID        int64
	Content   string
	CreatedAt time.Time
}

// MemoryStore persists keyed memory and context notes across sessions.
type MemoryStore struct {
	db *sql.DB
}

func NewMemoryStore(dataDir string) (*MemoryStore, error) {
	dbPath := filepath.Join(dataDir, "memory.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MemoryStore{db: db}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (ms *MemoryStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS context_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`

	_, err := ms.db.Exec(schema)
	return err
}

// Save stores a value under a key, replacing any previous value.
func (ms *MemoryStore) Save(key, value string) error {
	query := `
	INSERT OR REPLACE INTO memory (key, value, updated_at)
	VALUES (?, ?, ?)
	`

	_, err := ms.db.Exec(query, key, value, time.Now().UTC())
	return err
}

// Recall returns entries whose key or value contains the query substring,
// case-insensitively, most recently updated first.
func (ms *MemoryStore) Recall(query string) ([]MemoryEntry, error) {
	sqlQuery := `
	SELECT key, value, updated_at
	FROM memory
	WHERE lower(key) LIKE ? OR lower(value) LIKE ?
	ORDER BY updated_at DESC
	`

	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := ms.db.Query(sqlQuery, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// AddContext appends a freeform note.
func (ms *MemoryStore) AddContext(content string) error {
	query := `INSERT INTO context_notes (content, created_at) VALUES (?, ?)`
	_, err := ms.db.Exec(query, content, time.Now().UTC())
	return err
}

// RecentContext returns up to limit notes, newest first.
func (ms *MemoryStore) RecentContext(limit int) ([]ContextNote, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT id, content, created_at
	FROM context_notes
	ORDER BY id DESC
	LIMIT ?
	`

	rows, err := ms.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []ContextNote
	for rows.Next() {
		var n ContextNote
		if err := rows.Scan(&n.ID, &n.Content, &n.CreatedAt); err != nil {
			continue
		}
		notes = append(notes, n)
	}

	return notes, rows.Err()
}

func (ms *MemoryStore) Close() error {
	if ms.db != nil {
		return ms.db.Close()
	}
	return nil
}
