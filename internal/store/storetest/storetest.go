// Package storetest builds throwaway Messages databases for tests. It
// creates the handful of chat.db tables the daemon queries and exposes
// fixture helpers for writing rows the real database would only ever
// receive from the OS.
package storetest

import (
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pvieira/imsgd/internal/store"
)

const schema = `
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT UNIQUE NOT NULL,
	text TEXT,
	attributedBody BLOB,
	subject TEXT,
	is_from_me INTEGER NOT NULL DEFAULT 0,
	is_sent INTEGER NOT NULL DEFAULT 0,
	error INTEGER NOT NULL DEFAULT 0,
	date INTEGER NOT NULL DEFAULT 0,
	date_delivered INTEGER NOT NULL DEFAULT 0,
	date_read INTEGER NOT NULL DEFAULT 0,
	date_edited INTEGER NOT NULL DEFAULT 0,
	date_retracted INTEGER NOT NULL DEFAULT 0,
	did_notify_recipient INTEGER NOT NULL DEFAULT 0,
	part_count INTEGER NOT NULL DEFAULT 1,
	item_type INTEGER NOT NULL DEFAULT 0,
	group_action_type INTEGER NOT NULL DEFAULT 0,
	group_title TEXT
);
CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT UNIQUE NOT NULL,
	chat_identifier TEXT,
	display_name TEXT,
	style INTEGER NOT NULL DEFAULT 45,
	last_read_message_timestamp INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL
);
CREATE TABLE chat_message_join (
	chat_id INTEGER NOT NULL,
	message_id INTEGER NOT NULL
);
CREATE TABLE chat_handle_join (
	chat_id INTEGER NOT NULL,
	handle_id INTEGER NOT NULL
);
CREATE TABLE attachment (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT UNIQUE NOT NULL,
	transfer_name TEXT,
	mime_type TEXT,
	total_bytes INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE message_attachment_join (
	message_id INTEGER NOT NULL,
	attachment_id INTEGER NOT NULL
);
`

// DB pairs a writable fixture handle with the read-only handle the code
// under test uses.
type DB struct {
	t    *testing.T
	Path string
	RW   *sql.DB
	RO   *store.ChatDB
}

// Open creates a fresh Messages-shaped database under t.TempDir.
func Open(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")

	rw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Exec(schema); err != nil {
		t.Fatal(err)
	}

	ro, err := store.OpenChatDB(path)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = ro.Close()
		_ = rw.Close()
	})
	return &DB{t: t, Path: path, RW: rw, RO: ro}
}

// InsertChat adds a chat with the given participants (handle IDs) and
// returns its row ID.
func (d *DB) InsertChat(guid, identifier, displayName string, style int, participants ...string) int64 {
	d.t.Helper()
	res, err := d.RW.Exec(`
		INSERT INTO chat (guid, chat_identifier, display_name, style)
		VALUES (?, ?, ?, ?)`, guid, identifier, displayName, style)
	if err != nil {
		d.t.Fatal(err)
	}
	chatID, _ := res.LastInsertId()
	for _, p := range participants {
		hres, err := d.RW.Exec(`INSERT INTO handle (id) VALUES (?)`, p)
		if err != nil {
			d.t.Fatal(err)
		}
		handleID, _ := hres.LastInsertId()
		if _, err := d.RW.Exec(`INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (?, ?)`, chatID, handleID); err != nil {
			d.t.Fatal(err)
		}
	}
	return chatID
}

// MessageFixture describes a message row to insert.
type MessageFixture struct {
	GUID    string
	Text    string
	Subject string
	FromMe  bool
	IsSent  bool
	Error   int

	Created   time.Time
	Delivered time.Time
	Read      time.Time
	Edited    time.Time
	Retracted time.Time
	DidNotify bool

	PartCount       int
	ItemType        int
	GroupActionType int
	GroupTitle      string

	ChatRowIDs  []int64
	Attachments []string // transfer names
}

// InsertMessage adds a message row plus its join-table entries and returns
// its row ID.
func (d *DB) InsertMessage(f MessageFixture) int64 {
	d.t.Helper()
	if f.PartCount == 0 {
		f.PartCount = 1
	}
	res, err := d.RW.Exec(`
		INSERT INTO message (guid, text, subject, is_from_me, is_sent, error,
			date, date_delivered, date_read, date_edited, date_retracted,
			did_notify_recipient, part_count, item_type, group_action_type, group_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.GUID, f.Text, f.Subject, boolInt(f.FromMe), boolInt(f.IsSent), f.Error,
		store.ToAppleNS(f.Created), store.ToAppleNS(f.Delivered), store.ToAppleNS(f.Read),
		store.ToAppleNS(f.Edited), store.ToAppleNS(f.Retracted),
		boolInt(f.DidNotify), f.PartCount, f.ItemType, f.GroupActionType, f.GroupTitle)
	if err != nil {
		d.t.Fatal(err)
	}
	msgID, _ := res.LastInsertId()
	for _, chatID := range f.ChatRowIDs {
		if _, err := d.RW.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (?, ?)`, chatID, msgID); err != nil {
			d.t.Fatal(err)
		}
	}
	for i, name := range f.Attachments {
		ares, err := d.RW.Exec(`
			INSERT INTO attachment (guid, transfer_name) VALUES (?, ?)`,
			f.GUID+"-att-"+strconv.Itoa(i), name)
		if err != nil {
			d.t.Fatal(err)
		}
		attID, _ := ares.LastInsertId()
		if _, err := d.RW.Exec(`INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (?, ?)`, msgID, attID); err != nil {
			d.t.Fatal(err)
		}
	}
	return msgID
}

// MarkSent flips a row to sent and stamps delivery.
func (d *DB) MarkSent(rowID int64, deliveredAt time.Time) {
	d.t.Helper()
	if _, err := d.RW.Exec(`
		UPDATE message SET is_sent = 1, date_delivered = ? WHERE ROWID = ?`,
		store.ToAppleNS(deliveredAt), rowID); err != nil {
		d.t.Fatal(err)
	}
}

// MarkErrored stamps a native send error on a row.
func (d *DB) MarkErrored(rowID int64, code int) {
	d.t.Helper()
	if _, err := d.RW.Exec(`UPDATE message SET error = ? WHERE ROWID = ?`, code, rowID); err != nil {
		d.t.Fatal(err)
	}
}

// MarkRead stamps a read time on a row.
func (d *DB) MarkRead(rowID int64, at time.Time) {
	d.t.Helper()
	if _, err := d.RW.Exec(`UPDATE message SET date_read = ? WHERE ROWID = ?`, store.ToAppleNS(at), rowID); err != nil {
		d.t.Fatal(err)
	}
}

// SetChatLastRead advances a chat's last-read timestamp.
func (d *DB) SetChatLastRead(chatRowID int64, at time.Time) {
	d.t.Helper()
	if _, err := d.RW.Exec(`
		UPDATE chat SET last_read_message_timestamp = ? WHERE ROWID = ?`,
		store.ToAppleNS(at), chatRowID); err != nil {
		d.t.Fatal(err)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
