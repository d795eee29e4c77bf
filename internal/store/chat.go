package store

import (
	"database/sql"
	"fmt"
	"time"
)

const chatColumns = `
	c.ROWID, c.guid, COALESCE(c.chat_identifier, ''),
	COALESCE(c.display_name, ''), COALESCE(c.style, 0),
	COALESCE(c.last_read_message_timestamp, 0)`

func scanChat(r rowScanner) (Chat, error) {
	var c Chat
	var lastRead int64
	err := r.Scan(&c.RowID, &c.GUID, &c.Identifier, &c.DisplayName, &c.Style, &lastRead)
	if err != nil {
		return c, err
	}
	c.LastReadAt = FromAppleNS(lastRead)
	return c, nil
}

// ChatsReadSince returns chats whose last-read timestamp advanced after
// the given time, with participants resolved.
func (db *ChatDB) ChatsReadSince(after time.Time) ([]Chat, error) {
	rows, err := db.Query(`
		SELECT `+chatColumns+`
		FROM chat c
		WHERE c.last_read_message_timestamp > ?
		ORDER BY c.last_read_message_timestamp ASC`, ToAppleNS(after))
	if err != nil {
		return nil, fmt.Errorf("query chats read since: %w", err)
	}
	return db.collectChats(rows)
}

// ListChats returns chats ordered by row id descending.
func (db *ChatDB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+chatColumns+`
		FROM chat c
		ORDER BY c.ROWID DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return db.collectChats(rows)
}

// GetChat returns a single chat by GUID, or nil when absent.
func (db *ChatDB) GetChat(guid string) (*Chat, error) {
	row := db.QueryRow(`
		SELECT `+chatColumns+`
		FROM chat c
		WHERE c.guid = ?`, guid)
	c, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := db.hydrateChat(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *ChatDB) collectChats(rows *sql.Rows) ([]Chat, error) {
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range chats {
		if err := db.hydrateChat(&chats[i]); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

func (db *ChatDB) hydrateChat(c *Chat) error {
	rows, err := db.Query(`
		SELECT h.id
		FROM handle h
		JOIN chat_handle_join chj ON chj.handle_id = h.ROWID
		WHERE chj.chat_id = ?
		ORDER BY h.ROWID ASC`, c.RowID)
	if err != nil {
		return fmt.Errorf("participants for chat %d: %w", c.RowID, err)
	}
	defer func() { _ = rows.Close() }()

	var parts []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return err
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	c.Participants = parts
	return nil
}
