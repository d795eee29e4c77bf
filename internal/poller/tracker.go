package poller

import (
	"sync"
	"time"

	"github.com/pvieira/imsgd/internal/eventcache"
	"github.com/pvieira/imsgd/internal/store"
)

// Change classifies one observation of an entity against its history.
type Change int

const (
	// ChangeNone means nothing to emit: either no tracked field moved, or
	// the dedupe cache and the snapshot map disagree (a race between trim
	// and observation), which reads as "nothing happened".
	ChangeNone Change = iota
	ChangeNew
	ChangeUpdated
)

type messageSnapshot struct {
	created   int64
	delivered int64
	read      int64
	edited    int64
	retracted int64
	sent      bool
	notified  bool
	unsent    bool
}

func snapshotMessage(m *store.Message) messageSnapshot {
	return messageSnapshot{
		created:   m.CreatedAt.UnixNano(),
		delivered: m.DeliveredAt.UnixNano(),
		read:      m.ReadAt.UnixNano(),
		edited:    m.EditedAt.UnixNano(),
		retracted: m.RetractedAt.UnixNano(),
		sent:      m.IsSent,
		notified:  m.DidNotify,
		unsent:    m.HasUnsentParts(),
	}
}

// messageFields is the fixed-priority comparator list for message
// snapshots. Evaluation short-circuits on the first field that moved, so
// a creation-time increase alone classifies as updated even when nothing
// else changed (out-of-order creation observation).
var messageFields = []struct {
	name    string
	changed func(prev, cur messageSnapshot) bool
}{
	{"created", func(p, c messageSnapshot) bool { return c.created > p.created }},
	{"delivered", func(p, c messageSnapshot) bool { return c.delivered > p.delivered }},
	{"read", func(p, c messageSnapshot) bool { return c.read > p.read }},
	{"edited", func(p, c messageSnapshot) bool { return c.edited > p.edited }},
	{"retracted", func(p, c messageSnapshot) bool { return c.retracted > p.retracted }},
	// The sent flag can flip with no date column moving, so it must be a
	// tracked field of its own or a carried-over row converges silently.
	{"sent", func(p, c messageSnapshot) bool { return c.sent != p.sent }},
	{"notified", func(p, c messageSnapshot) bool { return c.notified != p.notified }},
	{"unsent-parts", func(p, c messageSnapshot) bool { return c.unsent != p.unsent }},
}

type chatSnapshot struct {
	lastRead int64
}

// Tracker remembers the last observed state of each entity for one poller
// instance and classifies new observations as new, updated, or neither.
// Each poller owns its own tracker: snapshots describe what THAT poller
// has seen, not what the daemon has.
type Tracker struct {
	mu       sync.Mutex
	cache    *eventcache.Cache
	messages map[string]messageSnapshot
	chats    map[string]chatSnapshot
}

// NewTracker creates a tracker with its own dedupe cache.
func NewTracker() *Tracker {
	return &Tracker{
		cache:    eventcache.NewCache(),
		messages: make(map[string]messageSnapshot),
		chats:    make(map[string]chatSnapshot),
	}
}

// Cache exposes the dedupe cache for namespaced keys (group-change,
// send-error markers) owned by the same poller.
func (t *Tracker) Cache() *eventcache.Cache {
	return t.cache
}

// ClassifyMessage reports what observing m means, without recording it.
func (t *Tracker) ClassifyMessage(m *store.Message) Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.classifyMessageLocked(m)
}

func (t *Tracker) classifyMessageLocked(m *store.Message) Change {
	if !t.cache.Find(m.GUID) {
		return ChangeNew
	}
	prev, ok := t.messages[m.GUID]
	if !ok {
		return ChangeNone
	}
	cur := snapshotMessage(m)
	for _, f := range messageFields {
		if f.changed(prev, cur) {
			return ChangeUpdated
		}
	}
	return ChangeNone
}

// ProcessMessage classifies m and records it. The snapshot is rewritten
// iff an event is returned; a no-event observation must not refresh it,
// or a genuine change arriving between polls would compare against values
// newer than the last emitted state and be masked.
func (t *Tracker) ProcessMessage(m *store.Message) Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	change := t.classifyMessageLocked(m)
	if change == ChangeNone {
		return ChangeNone
	}
	if change == ChangeNew {
		t.cache.Add(m.GUID)
	}
	t.messages[m.GUID] = snapshotMessage(m)
	return change
}

// ClassifyChat reports what observing c means, without recording it.
func (t *Tracker) ClassifyChat(c *store.Chat) Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.classifyChatLocked(c)
}

func (t *Tracker) classifyChatLocked(c *store.Chat) Change {
	key := "chat-" + c.GUID
	if !t.cache.Find(key) {
		return ChangeNew
	}
	prev, ok := t.chats[c.GUID]
	if !ok {
		return ChangeNone
	}
	if c.LastReadAt.UnixNano() > prev.lastRead {
		return ChangeUpdated
	}
	return ChangeNone
}

// ProcessChat classifies c and records it under the same refresh rule as
// ProcessMessage.
func (t *Tracker) ProcessChat(c *store.Chat) Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	change := t.classifyChatLocked(c)
	if change == ChangeNone {
		return ChangeNone
	}
	if change == ChangeNew {
		t.cache.Add("chat-" + c.GUID)
	}
	t.chats[c.GUID] = chatSnapshot{lastRead: c.LastReadAt.UnixNano()}
	return change
}

// Trim ages out cache entries and drops snapshots whose cache entry is
// gone, so the two structures cannot drift apart permanently.
func (t *Tracker) Trim(maxAge time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Trim(maxAge)
	for guid := range t.messages {
		if !t.cache.Find(guid) {
			delete(t.messages, guid)
		}
	}
	for guid := range t.chats {
		if !t.cache.Find("chat-" + guid) {
			delete(t.chats, guid)
		}
	}
}

// TrimCount applies the count-based safety trim to the cache.
func (t *Tracker) TrimCount(max int) {
	t.mu.Lock()
	t.cache.TrimCount(max)
	t.mu.Unlock()
}
