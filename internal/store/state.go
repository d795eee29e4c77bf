package store

import (
	"database/sql"
	"strconv"
	"time"
)

// SaveCursor persists a named poll cursor so a restarted daemon resumes
// from the last processed window instead of replaying history.
func (db *AppDB) SaveCursor(key string, at time.Time) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO poll_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strconv.FormatInt(at.UnixNano(), 10), now)
	return err
}

// LoadCursor retrieves a named poll cursor. The bool is false when the
// cursor has never been saved.
func (db *AppDB) LoadCursor(key string) (time.Time, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM poll_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ns, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, ns), true, nil
}
