package poller

import (
	"fmt"
	"sync"
	"time"

	"github.com/pvieira/imsgd/internal/outgoing"
	"github.com/pvieira/imsgd/internal/store"
	"go.uber.org/zap"
)

const (
	// defaultBatchLimit bounds one poll pass over the message table.
	defaultBatchLimit = 500

	// maxPendingUnsent caps the carry-over set of from-me rows still
	// awaiting a terminal state. When full, new rows are not carried
	// over; they are picked up again only if another field moves.
	maxPendingUnsent = 256
)

// MessagePoller drives change detection over the message table. Each pass
// reads rows whose tracked timestamps moved past the cursor (minus a skew
// allowance for out-of-order commits), re-reads carried-over unsent rows,
// and classifies every row against its tracker.
//
// From-me rows are additionally offered to the promise manager so that a
// send issued through the daemon settles as soon as its row shows up,
// whether as a new observation or a later field change.
type MessagePoller struct {
	db      *store.ChatDB
	manager *outgoing.Manager
	tracker *Tracker
	logger  *zap.Logger

	skew  time.Duration
	limit int

	mu      sync.Mutex
	pending map[int64]struct{}
}

// NewMessagePoller creates a poller with its own tracker instance.
func NewMessagePoller(db *store.ChatDB, manager *outgoing.Manager, skew time.Duration, logger *zap.Logger) *MessagePoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagePoller{
		db:      db,
		manager: manager,
		tracker: NewTracker(),
		logger:  logger,
		skew:    skew,
		limit:   defaultBatchLimit,
		pending: make(map[int64]struct{}),
	}
}

// Tracker returns the poller's tracker, mainly so the watcher can trim it
// on the shared schedule.
func (p *MessagePoller) Tracker() *Tracker { return p.tracker }

// Poll runs one pass against the cursor and returns the events to publish.
func (p *MessagePoller) Poll(cursor time.Time) ([]Result, error) {
	cutoff := cursor.Add(-p.skew)
	batch, err := p.db.UpdatedMessagesSince(cutoff, p.limit)
	if err != nil {
		return nil, fmt.Errorf("reading updated messages: %w", err)
	}

	rows := make([]store.Message, 0, len(batch))
	inBatch := make(map[int64]struct{}, len(batch))
	for _, m := range batch {
		inBatch[m.RowID] = struct{}{}
		rows = append(rows, m)
	}

	carried, err := p.refetchPending(inBatch)
	if err != nil {
		return nil, err
	}
	rows = append(rows, carried...)

	var results []Result
	for i := range rows {
		m := &rows[i]
		results = append(results, p.classify(m)...)
	}
	return results, nil
}

// refetchPending re-reads carried-over unsent rows that the batch query
// did not return this pass. A row with no field movement falls outside the
// cursor window, but its sent flag can still flip without touching any
// date column, so it must be re-read until it reaches a terminal state.
func (p *MessagePoller) refetchPending(inBatch map[int64]struct{}) ([]store.Message, error) {
	p.mu.Lock()
	ids := make([]int64, 0, len(p.pending))
	for id := range p.pending {
		if _, ok := inBatch[id]; !ok {
			ids = append(ids, id)
		}
	}
	p.mu.Unlock()

	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.db.MessagesByRowID(ids)
	if err != nil {
		return nil, fmt.Errorf("re-reading pending sends: %w", err)
	}
	return rows, nil
}

func (p *MessagePoller) classify(m *store.Message) []Result {
	if m.IsGroupEvent() {
		return p.classifyGroupEvent(m)
	}

	var results []Result

	if m.FromMe && m.Error != 0 {
		p.forgetPending(m.RowID)
		results = append(results, p.classifySendError(m)...)
	} else if m.FromMe {
		p.trackPending(m)
	}

	switch p.tracker.ProcessMessage(m) {
	case ChangeNew:
		results = append(results, Result{Kind: EventNewMessage, Message: m})
	case ChangeUpdated:
		results = append(results, Result{Kind: EventUpdatedMessage, Message: m})
	default:
		return results
	}

	if m.FromMe && m.Error == 0 {
		p.manager.Resolve(m)
	}
	return results
}

// classifyGroupEvent emits a structural event once per row. Group-event
// rows never change after insertion, so a row-id marker in the cache is
// enough to dedupe them and the tracker is bypassed entirely.
func (p *MessagePoller) classifyGroupEvent(m *store.Message) []Result {
	kind, ok := m.GroupEvent()
	if !ok {
		return nil
	}
	eventKind, ok := groupEventKinds[kind]
	if !ok {
		p.logger.Warn("unmapped group event",
			zap.Int64("rowid", m.RowID),
			zap.String("kind", string(kind)))
		return nil
	}
	key := fmt.Sprintf("group-change-%d", m.RowID)
	if p.tracker.Cache().Find(key) {
		return nil
	}
	p.tracker.Cache().Add(key)
	return []Result{{Kind: eventKind, Message: m}}
}

// classifySendError routes a failed from-me row. If the failure belongs to
// a registered promise the rejection carries it to the sender, so no event
// is published. Only failures nobody is waiting on surface as events, once
// per row id.
func (p *MessagePoller) classifySendError(m *store.Message) []Result {
	key := fmt.Sprintf("send-error-%d", m.RowID)
	if p.tracker.Cache().Find(key) {
		return nil
	}
	p.tracker.Cache().Add(key)

	err := &outgoing.NativeSendError{Code: m.Error, GUID: m.GUID}
	if settled := p.manager.Reject(m, err); settled != nil {
		p.logger.Info("send failure settled a pending promise",
			zap.Int64("rowid", m.RowID),
			zap.Int("code", m.Error))
		return nil
	}
	return []Result{{Kind: EventMessageSendError, Message: m}}
}

// trackPending records a from-me row still waiting for a terminal state
// and clears rows that reached one.
func (p *MessagePoller) trackPending(m *store.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.IsSent {
		delete(p.pending, m.RowID)
		return
	}
	if _, ok := p.pending[m.RowID]; ok {
		return
	}
	if len(p.pending) >= maxPendingUnsent {
		return
	}
	p.pending[m.RowID] = struct{}{}
}

func (p *MessagePoller) forgetPending(rowID int64) {
	p.mu.Lock()
	delete(p.pending, rowID)
	p.mu.Unlock()
}

// PendingCount reports how many unsent rows are carried over.
func (p *MessagePoller) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
