package outgoing

import (
	"sync"

	"github.com/pvieira/imsgd/internal/store"
	"go.uber.org/zap"
)

// auditBound caps how many promises (settled included) the manager keeps
// before pruning settled ones.
const auditBound = 64

// Manager is the single authoritative set of in-flight promises. Matching
// keys are fuzzy (normalized text, a time bound, chat-identifier variants),
// so lookup is a linear scan in registration order: with n equal to the
// number of concurrently in-flight sends, n stays small. Registration
// order doubles as the tie-break: when two unresolved promises carry
// identical text for the same chat, the first registered matches first,
// which presumes the database records sends in issue order. The store does
// not guarantee that; it is a known limitation, not corrected here.
type Manager struct {
	mu       sync.Mutex
	promises []*Promise
	inflight map[string]*Promise
	logger   *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		inflight: make(map[string]*Promise),
		logger:   logger,
	}
}

// Register adds a promise. A promise whose token is already in flight is
// rejected with ErrDuplicateToken; the caller surfaces that as a conflict
// rather than dispatching a duplicate send.
func (g *Manager) Register(p *Promise) error {
	g.mu.Lock()
	if p.Token != "" {
		if _, dup := g.inflight[p.Token]; dup {
			g.mu.Unlock()
			return ErrDuplicateToken
		}
		g.inflight[p.Token] = p
	}
	g.promises = append(g.promises, p)
	g.prune()
	g.mu.Unlock()

	// Chain token release ahead of the caller's settlement hook. Runs
	// immediately when the promise raced its own timeout and is already
	// settled, so the token never sticks.
	p.chainSettle(func(settled *Promise, _ Settlement) {
		g.release(settled)
	})
	return nil
}

// InFlight reports whether a send with this token is registered and
// unsettled.
func (g *Manager) InFlight(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[token]
	return ok
}

// Pending returns the number of unsettled promises.
func (g *Manager) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.promises {
		if !p.Settled() {
			n++
		}
	}
	return n
}

// Find returns the first unsettled promise matching the row, without
// settling it.
func (g *Manager) Find(m *store.Message) *Promise {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.findLocked(m)
}

// Resolve settles the first matching promise with the row. Returns the
// settled promise, or nil when nothing matched.
func (g *Manager) Resolve(m *store.Message) *Promise {
	g.mu.Lock()
	p := g.findLocked(m)
	g.mu.Unlock()
	if p == nil {
		return nil
	}
	// Settle outside the lock: settlement hooks re-enter the manager.
	if p.Resolve(m) {
		g.logger.Debug("outgoing promise resolved",
			zap.String("chat", p.ChatGUID),
			zap.String("guid", m.GUID))
	}
	return p
}

// Reject settles the first matching promise with an error. Returns the
// settled promise, or nil when nothing matched.
func (g *Manager) Reject(m *store.Message, err error) *Promise {
	g.mu.Lock()
	p := g.findLocked(m)
	g.mu.Unlock()
	if p == nil {
		return nil
	}
	if p.Reject(err, m) {
		g.logger.Debug("outgoing promise rejected",
			zap.String("chat", p.ChatGUID),
			zap.Error(err))
	}
	return p
}

func (g *Manager) findLocked(m *store.Message) *Promise {
	for _, p := range g.promises {
		if p.Settled() {
			continue
		}
		if p.Matches(m) {
			return p
		}
	}
	return nil
}

func (g *Manager) release(p *Promise) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Token != "" && g.inflight[p.Token] == p {
		delete(g.inflight, p.Token)
	}
}

// prune drops settled promises, oldest first, once the audit tail exceeds
// the bound. Caller holds g.mu.
func (g *Manager) prune() {
	if len(g.promises) <= auditBound {
		return
	}
	kept := g.promises[:0]
	excess := len(g.promises) - auditBound
	for _, p := range g.promises {
		if excess > 0 && p.Settled() {
			excess--
			continue
		}
		kept = append(kept, p)
	}
	g.promises = kept
}
