package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Daemon holds the per-session daemon settings from daemon.toml. Durations
// are stored as primitive values in the file and exposed as time.Duration
// accessors; every tunable has a code default so a missing file works.
type Daemon struct {
	// MessagesDBPath is the Messages database watched and polled. Empty
	// resolves to ~/Library/Messages/chat.db.
	MessagesDBPath string `toml:"messages_db_path"`

	HTTPAddr   string `toml:"http_addr"`
	WebhookURL string `toml:"webhook_url"`

	// PollSkewSeconds is subtracted from the poll cursor to absorb
	// write-visibility lag between a row landing and the poll observing it.
	PollSkewSeconds int `toml:"poll_skew_seconds"`

	// SendOffsetSeconds is subtracted from a send's issue time so rows
	// created slightly "before" it (systematic clock skew between the
	// automation layer and the database writer) still match.
	SendOffsetSeconds int `toml:"send_offset_seconds"`

	TextMatchTimeoutSeconds       int `toml:"text_match_timeout_seconds"`
	AttachmentMatchTimeoutSeconds int `toml:"attachment_match_timeout_seconds"`

	DebounceMillis     int `toml:"debounce_millis"`
	CacheMaxEntries    int `toml:"cache_max_entries"`
	CacheMaxAgeMinutes int `toml:"cache_max_age_minutes"`
}

// LoadDaemon reads daemon settings from path. A missing file yields the
// defaults; a malformed file is an error.
func LoadDaemon(path string) (*Daemon, error) {
	var d Daemon
	if _, err := toml.DecodeFile(path, &d); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	d.ApplyDefaults()
	return &d, nil
}

// SaveDaemon writes daemon settings to path.
func SaveDaemon(path string, d *Daemon) error {
	return writeTOML(path, d)
}

// ApplyDefaults fills zero-valued fields with the built-in defaults.
func (d *Daemon) ApplyDefaults() {
	if d.MessagesDBPath == "" {
		home, _ := os.UserHomeDir()
		d.MessagesDBPath = filepath.Join(home, "Library", "Messages", "chat.db")
	}
	if d.HTTPAddr == "" {
		d.HTTPAddr = "127.0.0.1:1234"
	}
	if d.PollSkewSeconds <= 0 {
		d.PollSkewSeconds = 15
	}
	if d.SendOffsetSeconds <= 0 {
		d.SendOffsetSeconds = 10
	}
	if d.TextMatchTimeoutSeconds <= 0 {
		d.TextMatchTimeoutSeconds = 30
	}
	if d.AttachmentMatchTimeoutSeconds <= 0 {
		d.AttachmentMatchTimeoutSeconds = 300
	}
	if d.DebounceMillis <= 0 {
		d.DebounceMillis = 200
	}
	if d.CacheMaxEntries <= 0 {
		d.CacheMaxEntries = 250
	}
	if d.CacheMaxAgeMinutes <= 0 {
		d.CacheMaxAgeMinutes = 60
	}
}

// PollSkew returns the backward skew applied to every poll cursor.
func (d *Daemon) PollSkew() time.Duration {
	return time.Duration(d.PollSkewSeconds) * time.Second
}

// SendOffset returns the backward offset applied to send issue times.
func (d *Daemon) SendOffset() time.Duration {
	return time.Duration(d.SendOffsetSeconds) * time.Second
}

// TextMatchTimeout returns the match window for plain-text sends.
func (d *Daemon) TextMatchTimeout() time.Duration {
	return time.Duration(d.TextMatchTimeoutSeconds) * time.Second
}

// AttachmentMatchTimeout returns the match window for attachment sends.
// Media transfer is slow, so this is much longer than the text window.
func (d *Daemon) AttachmentMatchTimeout() time.Duration {
	return time.Duration(d.AttachmentMatchTimeoutSeconds) * time.Second
}

// Debounce returns how long the watcher coalesces file-change bursts.
func (d *Daemon) Debounce() time.Duration {
	return time.Duration(d.DebounceMillis) * time.Millisecond
}

// CacheMaxAge returns the dedupe-cache retention window.
func (d *Daemon) CacheMaxAge() time.Duration {
	return time.Duration(d.CacheMaxAgeMinutes) * time.Minute
}
