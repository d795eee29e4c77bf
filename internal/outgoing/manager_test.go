package outgoing

import (
	"fmt"
	"testing"
	"time"
)

func TestManagerResolvesFirstRegistered(t *testing.T) {
	g := NewManager(nil)

	first := textPromise("Hi")
	time.Sleep(5 * time.Millisecond)
	second := textPromise("Hi")
	if err := g.Register(first); err != nil {
		t.Fatal(err)
	}
	if err := g.Register(second); err != nil {
		t.Fatal(err)
	}

	row := fromMeRow(chatGUID, "Hi", time.Now())
	settled := g.Resolve(row)
	if settled != first {
		t.Fatal("later-registered promise resolved before the earlier one")
	}
	if second.Settled() {
		t.Error("second promise settled by a single row")
	}

	// A second identical row settles the remaining promise.
	if g.Resolve(fromMeRow(chatGUID, "Hi", time.Now())) != second {
		t.Error("second row did not resolve the remaining promise")
	}
}

func TestManagerSkipsSettled(t *testing.T) {
	g := NewManager(nil)
	p := textPromise("once")
	if err := g.Register(p); err != nil {
		t.Fatal(err)
	}

	row := fromMeRow(chatGUID, "once", time.Now())
	if g.Resolve(row) != p {
		t.Fatal("first resolve failed")
	}
	if g.Resolve(row) != nil {
		t.Error("settled promise matched again")
	}
}

func TestManagerChatScope(t *testing.T) {
	g := NewManager(nil)
	p := textPromise("Hello")
	if err := g.Register(p); err != nil {
		t.Fatal(err)
	}

	other := fromMeRow("iMessage;-;+15550000000", "Hello", time.Now())
	if g.Resolve(other) != nil {
		t.Error("row from another chat resolved the promise")
	}
}

func TestManagerReject(t *testing.T) {
	g := NewManager(nil)
	p := textPromise("bad")
	if err := g.Register(p); err != nil {
		t.Fatal(err)
	}

	row := fromMeRow(chatGUID, "bad", time.Now())
	if g.Reject(row, &NativeSendError{Code: 22, GUID: row.GUID}) != p {
		t.Fatal("reject did not settle the matching promise")
	}
	if g.Reject(row, &NativeSendError{Code: 22, GUID: row.GUID}) != nil {
		t.Error("second reject matched a settled promise")
	}
}

func TestManagerDuplicateToken(t *testing.T) {
	g := NewManager(nil)
	a := NewPromise(Options{ChatGUID: chatGUID, Text: "x", Token: "tok-1"})
	if err := g.Register(a); err != nil {
		t.Fatal(err)
	}
	b := NewPromise(Options{ChatGUID: chatGUID, Text: "y", Token: "tok-1"})
	if err := g.Register(b); err != ErrDuplicateToken {
		t.Errorf("Register with duplicate token = %v, want ErrDuplicateToken", err)
	}
	if !g.InFlight("tok-1") {
		t.Error("token not in flight after register")
	}

	// Settlement releases the token for reuse.
	a.Resolve(fromMeRow(chatGUID, "x", time.Now()))
	if g.InFlight("tok-1") {
		t.Error("token still in flight after settlement")
	}
	c := NewPromise(Options{ChatGUID: chatGUID, Text: "z", Token: "tok-1"})
	if err := g.Register(c); err != nil {
		t.Errorf("token not reusable after settlement: %v", err)
	}
}

func TestManagerReleasesTokenOfAlreadySettledPromise(t *testing.T) {
	g := NewManager(nil)

	// Settle before Register, standing in for a timeout firing between
	// construction and registration. The release hook must still run so
	// the token does not stay in flight forever.
	p := NewPromise(Options{ChatGUID: chatGUID, Text: "early", Token: "tok-1"})
	p.Resolve(fromMeRow(chatGUID, "early", time.Now()))
	if err := g.Register(p); err != nil {
		t.Fatal(err)
	}
	if g.InFlight("tok-1") {
		t.Error("settled promise left its token in flight")
	}
	next := NewPromise(Options{ChatGUID: chatGUID, Text: "later", Token: "tok-1"})
	if err := g.Register(next); err != nil {
		t.Errorf("token not reusable after pre-settled register: %v", err)
	}
}

func TestManagerPrunesSettled(t *testing.T) {
	g := NewManager(nil)
	for i := 0; i < auditBound+20; i++ {
		p := NewPromise(Options{ChatGUID: chatGUID, Text: fmt.Sprintf("m%d", i)})
		if err := g.Register(p); err != nil {
			t.Fatal(err)
		}
		p.Resolve(fromMeRow(chatGUID, fmt.Sprintf("m%d", i), time.Now()))
	}
	g.mu.Lock()
	n := len(g.promises)
	g.mu.Unlock()
	if n > auditBound+1 {
		t.Errorf("promise list grew to %d, want <= %d", n, auditBound+1)
	}
}

func TestManagerPruneKeepsUnsettled(t *testing.T) {
	g := NewManager(nil)
	live := textPromise("keepme")
	if err := g.Register(live); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < auditBound+20; i++ {
		p := NewPromise(Options{ChatGUID: chatGUID, Text: fmt.Sprintf("n%d", i)})
		if err := g.Register(p); err != nil {
			t.Fatal(err)
		}
		p.Resolve(fromMeRow(chatGUID, fmt.Sprintf("n%d", i), time.Now()))
	}
	if g.Resolve(fromMeRow(chatGUID, "keepme", time.Now())) != live {
		t.Error("unsettled promise lost to pruning")
	}
}

func TestPendingCount(t *testing.T) {
	g := NewManager(nil)
	p := textPromise("a")
	q := textPromise("b")
	_ = g.Register(p)
	_ = g.Register(q)
	if got := g.Pending(); got != 2 {
		t.Errorf("Pending = %d, want 2", got)
	}
	p.Resolve(fromMeRow(chatGUID, "a", time.Now()))
	if got := g.Pending(); got != 1 {
		t.Errorf("Pending after settle = %d, want 1", got)
	}
}
