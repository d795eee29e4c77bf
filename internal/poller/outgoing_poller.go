package poller

import (
	"fmt"
	"time"

	"github.com/pvieira/imsgd/internal/outgoing"
	"github.com/pvieira/imsgd/internal/store"
	"go.uber.org/zap"
)

// OutgoingPoller runs a narrower pass over from-me rows only, so that
// sends settle and delivery updates surface even when the broader message
// pass is busy with a large batch. It emits updated events only: new-row
// observations seed its tracker silently, because the message poller
// already announces new rows and a second announcement would duplicate
// them on the bus.
type OutgoingPoller struct {
	db      *store.ChatDB
	manager *outgoing.Manager
	tracker *Tracker
	logger  *zap.Logger
	skew    time.Duration
	limit   int
}

// NewOutgoingPoller creates a poller with its own tracker instance.
func NewOutgoingPoller(db *store.ChatDB, manager *outgoing.Manager, skew time.Duration, logger *zap.Logger) *OutgoingPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutgoingPoller{
		db:      db,
		manager: manager,
		tracker: NewTracker(),
		logger:  logger,
		skew:    skew,
		limit:   defaultBatchLimit,
	}
}

func (p *OutgoingPoller) Tracker() *Tracker { return p.tracker }

// Poll runs one pass against the cursor.
func (p *OutgoingPoller) Poll(cursor time.Time) ([]Result, error) {
	rows, err := p.db.FromMeMessagesSince(cursor.Add(-p.skew), p.limit)
	if err != nil {
		return nil, fmt.Errorf("reading outgoing messages: %w", err)
	}

	var results []Result
	for i := range rows {
		m := &rows[i]
		if m.IsGroupEvent() {
			continue
		}

		change := p.tracker.ProcessMessage(m)
		if change == ChangeNone {
			continue
		}

		if m.Error != 0 {
			err := &outgoing.NativeSendError{Code: m.Error, GUID: m.GUID}
			p.manager.Reject(m, err)
			continue
		}

		// Resolving is idempotent across pollers; whichever pass sees
		// the row first settles the promise.
		p.manager.Resolve(m)

		if change == ChangeUpdated {
			results = append(results, Result{Kind: EventUpdatedMessage, Message: m})
		}
	}
	return results, nil
}
