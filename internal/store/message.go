package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const messageColumns = `
	m.ROWID, m.guid, COALESCE(m.text, ''), m.attributedBody, COALESCE(m.subject, ''),
	m.is_from_me, COALESCE(m.is_sent, 0), COALESCE(m.error, 0),
	COALESCE(m.date, 0), COALESCE(m.date_delivered, 0), COALESCE(m.date_read, 0),
	COALESCE(m.date_edited, 0), COALESCE(m.date_retracted, 0),
	COALESCE(m.did_notify_recipient, 0),
	COALESCE(m.part_count, 1), COALESCE(m.item_type, 0),
	COALESCE(m.group_action_type, 0), COALESCE(m.group_title, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (Message, error) {
	var m Message
	var body []byte
	var created, delivered, read, edited, retracted int64
	var fromMe, isSent, didNotify int
	err := r.Scan(&m.RowID, &m.GUID, &m.Text, &body, &m.Subject,
		&fromMe, &isSent, &m.Error,
		&created, &delivered, &read, &edited, &retracted,
		&didNotify,
		&m.PartCount, &m.ItemType, &m.GroupActionType, &m.GroupTitle)
	if err != nil {
		return m, err
	}
	m.FromMe = fromMe != 0
	m.IsSent = isSent != 0
	m.DidNotify = didNotify != 0
	m.CreatedAt = FromAppleNS(created)
	m.DeliveredAt = FromAppleNS(delivered)
	m.ReadAt = FromAppleNS(read)
	m.EditedAt = FromAppleNS(edited)
	m.RetractedAt = FromAppleNS(retracted)
	if m.Text == "" && len(body) > 0 {
		m.Summary = summaryFromArchive(body)
	}
	return m, nil
}

// UpdatedMessagesSince returns messages created or updated after the given
// time, ordered by creation time ascending. Each returned message carries
// its chat memberships and attachments.
func (db *ChatDB) UpdatedMessagesSince(after time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	ns := ToAppleNS(after)
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM message m
		WHERE m.date > ? OR m.date_delivered > ? OR m.date_read > ?
			OR m.date_edited > ? OR m.date_retracted > ?
		ORDER BY m.date ASC
		LIMIT ?`, ns, ns, ns, ns, ns, limit)
	if err != nil {
		return nil, fmt.Errorf("query updated messages: %w", err)
	}
	return db.collectMessages(rows)
}

// FromMeMessagesSince is UpdatedMessagesSince restricted to rows authored
// by the local user.
func (db *ChatDB) FromMeMessagesSince(after time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	ns := ToAppleNS(after)
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM message m
		WHERE m.is_from_me = 1
			AND (m.date > ? OR m.date_delivered > ? OR m.date_read > ?
				OR m.date_edited > ? OR m.date_retracted > ?)
		ORDER BY m.date ASC
		LIMIT ?`, ns, ns, ns, ns, ns, limit)
	if err != nil {
		return nil, fmt.Errorf("query from-me messages: %w", err)
	}
	return db.collectMessages(rows)
}

// MessagesByRowID fetches an explicit set of rows, ordered by creation
// time ascending. Unknown IDs are silently absent from the result.
func (db *ChatDB) MessagesByRowID(ids []int64) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM message m
		WHERE m.ROWID IN (`+placeholders+`)
		ORDER BY m.date ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages by rowid: %w", err)
	}
	return db.collectMessages(rows)
}

// ListMessages returns messages for a chat using keyset pagination by
// creation time descending.
func (db *ChatDB) ListMessages(chatGUID string, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	beforeNS := ToAppleNS(before)
	if before.IsZero() {
		beforeNS = ToAppleNS(time.Now().Add(time.Minute))
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM message m
		JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		JOIN chat c ON c.ROWID = cmj.chat_id
		WHERE c.guid = ? AND m.date < ?
		ORDER BY m.date DESC
		LIMIT ?`, chatGUID, beforeNS, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return db.collectMessages(rows)
}

// GetMessage returns a single message by GUID, or nil when absent.
func (db *ChatDB) GetMessage(guid string) (*Message, error) {
	row := db.QueryRow(`
		SELECT `+messageColumns+`
		FROM message m
		WHERE m.guid = ?`, guid)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := db.hydrateMessage(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (db *ChatDB) collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range msgs {
		if err := db.hydrateMessage(&msgs[i]); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

func (db *ChatDB) hydrateMessage(m *Message) error {
	guids, err := db.chatGUIDsFor(m.RowID)
	if err != nil {
		return fmt.Errorf("chats for message %d: %w", m.RowID, err)
	}
	m.ChatGUIDs = guids

	atts, err := db.attachmentsFor(m.RowID)
	if err != nil {
		return fmt.Errorf("attachments for message %d: %w", m.RowID, err)
	}
	m.Attachments = atts
	return nil
}

func (db *ChatDB) chatGUIDsFor(messageRowID int64) ([]string, error) {
	rows, err := db.Query(`
		SELECT c.guid
		FROM chat c
		JOIN chat_message_join cmj ON cmj.chat_id = c.ROWID
		WHERE cmj.message_id = ?`, messageRowID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var guids []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		guids = append(guids, g)
	}
	return guids, rows.Err()
}

func (db *ChatDB) attachmentsFor(messageRowID int64) ([]Attachment, error) {
	rows, err := db.Query(`
		SELECT a.ROWID, a.guid, COALESCE(a.transfer_name, ''),
			COALESCE(a.mime_type, ''), COALESCE(a.total_bytes, 0)
		FROM attachment a
		JOIN message_attachment_join maj ON maj.attachment_id = a.ROWID
		WHERE maj.message_id = ?`, messageRowID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var atts []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.RowID, &a.GUID, &a.TransferName, &a.MimeType, &a.TotalBytes); err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}
