// Package outgoing reconciles fire-and-forget automation sends with the
// rows that later appear in the Messages database. The automation layer
// returns no identifier, so a send is represented as a Promise holding the
// content it expects to see, and the pollers settle it when a matching
// from-me row shows up (or a timeout fires first).
package outgoing

import (
	"context"
	"sync"
	"time"

	"github.com/pvieira/imsgd/internal/store"
)

// Settlement is the final outcome of a promise: a matched row, an error,
// or both (a row that matched but carries a native error code).
type Settlement struct {
	Row *store.Message
	Err error
}

// Options configures a new Promise.
type Options struct {
	ChatGUID string
	// Text is the message body, or the attachment filename when Attachment
	// is set.
	Text       string
	Subject    string
	Attachment bool
	Token      string

	// Timeout forces rejection when no match lands in time. Attachment
	// windows are much longer than text ones (media transfer is slow).
	Timeout time.Duration

	// IssueOffset is subtracted from the issue time. The automation
	// subsystem's clock runs systematically ahead of the row timestamps the
	// database writer produces; without this backward offset a legitimate
	// match can be rejected as created "before" the send.
	IssueOffset time.Duration

	OnSettle func(*Promise, Settlement)
}

// Promise is one in-flight, client-initiated send awaiting its database
// row. It settles exactly once.
type Promise struct {
	ChatGUID string
	Token    string
	IssuedAt time.Time

	text       string
	subject    string
	attachment bool

	once   sync.Once
	done   chan struct{}
	result Settlement

	// mu guards timer and onSettle against settlement racing chainSettle.
	mu       sync.Mutex
	timer    *time.Timer
	onSettle func(*Promise, Settlement)
}

// NewPromise builds a promise and starts its timeout timer.
func NewPromise(o Options) *Promise {
	text := Normalize(o.Text)
	if o.Attachment {
		text = BaseName(o.Text)
	}
	p := &Promise{
		ChatGUID:   o.ChatGUID,
		Token:      o.Token,
		IssuedAt:   time.Now().Add(-o.IssueOffset),
		text:       text,
		subject:    Normalize(o.Subject),
		attachment: o.Attachment,
		done:       make(chan struct{}),
		onSettle:   o.OnSettle,
	}
	if o.Timeout > 0 {
		p.mu.Lock()
		p.timer = time.AfterFunc(o.Timeout, func() {
			p.settle(Settlement{Err: ErrMatchTimeout})
		})
		p.mu.Unlock()
	}
	return p
}

// Matches evaluates the matching predicate against a newly observed row.
func (p *Promise) Matches(m *store.Message) bool {
	// Chat scope first: when the row carries memberships, one must be this
	// promise's chat (under prefix-variant normalization).
	if len(m.ChatGUIDs) > 0 {
		found := false
		for _, g := range m.ChatGUIDs {
			if chatGUIDsMatch(p.ChatGUID, g) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if p.attachment {
		for _, a := range m.Attachments {
			if BaseName(a.TransferName) == p.text {
				return true
			}
		}
		return false
	}

	rowSubject := Normalize(m.Subject)
	if p.subject != "" && rowSubject != "" && p.subject != rowSubject {
		return false
	}
	if Normalize(m.UniversalText()) != p.text {
		return false
	}
	return !m.CreatedAt.Before(p.IssuedAt)
}

// Resolve settles the promise with a matched row. Returns false if the
// promise was already settled.
func (p *Promise) Resolve(m *store.Message) bool {
	return p.settle(Settlement{Row: m})
}

// Reject settles the promise with an error and an optional row (the row a
// native error code was observed on). Returns false if already settled.
func (p *Promise) Reject(err error, m *store.Message) bool {
	return p.settle(Settlement{Row: m, Err: err})
}

// Wait blocks until the promise settles or ctx is done.
func (p *Promise) Wait(ctx context.Context) (*store.Message, error) {
	select {
	case <-p.done:
		return p.result.Row, p.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the promise has already settled.
func (p *Promise) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// chainSettle installs hook to run on settlement, ahead of any hook already
// set. If the promise has already settled, hook runs immediately with the
// recorded settlement.
func (p *Promise) chainSettle(hook func(*Promise, Settlement)) {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		hook(p, p.result)
		return
	default:
	}
	prev := p.onSettle
	p.onSettle = func(settled *Promise, s Settlement) {
		hook(settled, s)
		if prev != nil {
			prev(settled, s)
		}
	}
	p.mu.Unlock()
}

func (p *Promise) settle(s Settlement) bool {
	settled := false
	p.once.Do(func() {
		settled = true
		p.result = s
		p.mu.Lock()
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
		hook := p.onSettle
		p.mu.Unlock()
		if hook != nil {
			hook(p, s)
		}
	})
	return settled
}
