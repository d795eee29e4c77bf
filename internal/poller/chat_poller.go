package poller

import (
	"fmt"
	"time"

	"github.com/pvieira/imsgd/internal/store"
	"go.uber.org/zap"
)

// ChatPoller watches chat read markers. A pass reads chats whose
// last-read timestamp moved past the cursor and emits a read-status event
// for each chat whose marker advanced since this poller last saw it.
type ChatPoller struct {
	db      *store.ChatDB
	tracker *Tracker
	logger  *zap.Logger
	skew    time.Duration
}

// NewChatPoller creates a poller with its own tracker instance.
func NewChatPoller(db *store.ChatDB, skew time.Duration, logger *zap.Logger) *ChatPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatPoller{
		db:      db,
		tracker: NewTracker(),
		logger:  logger,
		skew:    skew,
	}
}

func (p *ChatPoller) Tracker() *Tracker { return p.tracker }

// Poll runs one pass against the cursor.
func (p *ChatPoller) Poll(cursor time.Time) ([]Result, error) {
	chats, err := p.db.ChatsReadSince(cursor.Add(-p.skew))
	if err != nil {
		return nil, fmt.Errorf("reading chat read markers: %w", err)
	}

	var results []Result
	for i := range chats {
		c := &chats[i]
		// First sighting only seeds the snapshot; the marker's current
		// position is not news, its movement is.
		if p.tracker.ProcessChat(c) == ChangeUpdated {
			results = append(results, Result{Kind: EventChatReadStatusChanged, Chat: c})
		}
	}
	return results, nil
}
