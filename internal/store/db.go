// Package store provides read-only access to the macOS Messages database
// (chat.db) and owns the daemon's own imsgd.db for send audit and poll
// checkpoints.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ChatDB wraps a read-only SQLite connection to the Messages chat.db.
// The daemon never writes to this database; sends go through the
// automation layer and show up here on their own.
type ChatDB struct {
	*sql.DB
}

// OpenChatDB opens chat.db in read-only mode.
func OpenChatDB(path string) (*ChatDB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open chat db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping chat db: %w", err)
	}
	return &ChatDB{db}, nil
}

// AppDB wraps the daemon-owned SQLite database.
type AppDB struct {
	*sql.DB
}

// OpenAppDB opens (creating if needed) imsgd.db with WAL mode.
func OpenAppDB(path string) (*AppDB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open app db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping app db: %w", err)
	}
	return &AppDB{db}, nil
}

// appleEpoch is the zero point of Messages timestamps (nanoseconds since
// 2001-01-01 UTC in the modern schema).
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// FromAppleNS converts a chat.db timestamp to time.Time. Zero stays zero.
func FromAppleNS(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return appleEpoch.Add(time.Duration(ns))
}

// ToAppleNS converts a time.Time to a chat.db timestamp. Zero stays zero.
func ToAppleNS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return int64(t.Sub(appleEpoch))
}
