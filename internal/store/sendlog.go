package store

import "time"

// RecordSend inserts a pending send_log row for a dispatched send.
func (db *AppDB) RecordSend(token, chatGUID, kind string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO send_log (token, chat_guid, kind, created_at)
		VALUES (?, ?, ?, ?)`,
		token, chatGUID, kind, now)
	return err
}

// SettleSend records the final outcome of a send.
func (db *AppDB) SettleSend(token, outcome, matchedGUID, errorText string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE send_log
		SET outcome = ?, matched_guid = ?, error_text = ?, settled_at = ?
		WHERE token = ?`,
		outcome, matchedGUID, errorText, now, token)
	return err
}

// RecentSends returns the newest send_log entries.
func (db *AppDB) RecentSends(limit int) ([]SendLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, token, chat_guid, kind, outcome, matched_guid, error_text, created_at, settled_at
		FROM send_log
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []SendLogEntry
	for rows.Next() {
		var e SendLogEntry
		if err := rows.Scan(&e.ID, &e.Token, &e.ChatGUID, &e.Kind, &e.Outcome,
			&e.MatchedGUID, &e.ErrorText, &e.CreatedAt, &e.SettledAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
