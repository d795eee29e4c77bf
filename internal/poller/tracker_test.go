package poller_test

import (
	"testing"
	"time"

	"github.com/pvieira/imsgd/internal/poller"
	"github.com/pvieira/imsgd/internal/store"
)

func baseMessage(guid string, created time.Time) *store.Message {
	return &store.Message{
		RowID:     1,
		GUID:      guid,
		Text:      "hello",
		FromMe:    true,
		CreatedAt: created,
		PartCount: 1,
	}
}

func TestTrackerFirstObservationIsNew(t *testing.T) {
	tr := poller.NewTracker()
	m := baseMessage("m1", time.Now())

	if got := tr.ClassifyMessage(m); got != poller.ChangeNew {
		t.Fatalf("classify = %v, want ChangeNew", got)
	}
	if got := tr.ProcessMessage(m); got != poller.ChangeNew {
		t.Fatalf("process = %v, want ChangeNew", got)
	}
	if got := tr.ProcessMessage(m); got != poller.ChangeNone {
		t.Fatalf("re-process unchanged = %v, want ChangeNone", got)
	}
}

func TestTrackerFieldMovementIsUpdated(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name   string
		mutate func(m *store.Message)
	}{
		{"delivered", func(m *store.Message) { m.DeliveredAt = now.Add(time.Second) }},
		{"read", func(m *store.Message) { m.ReadAt = now.Add(2 * time.Second) }},
		{"edited", func(m *store.Message) { m.EditedAt = now.Add(3 * time.Second) }},
		{"retracted", func(m *store.Message) { m.RetractedAt = now.Add(4 * time.Second) }},
		{"sent", func(m *store.Message) { m.IsSent = true }},
		{"notified", func(m *store.Message) { m.DidNotify = true }},
		{"unsent parts", func(m *store.Message) {
			m.PartCount = 3
			m.RetractedAt = now.Add(5 * time.Second)
		}},
		{"created moved forward", func(m *store.Message) { m.CreatedAt = now.Add(time.Second) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := poller.NewTracker()
			m := baseMessage("m1", now)
			tr.ProcessMessage(m)

			tc.mutate(m)
			if got := tr.ProcessMessage(m); got != poller.ChangeUpdated {
				t.Fatalf("process after %s = %v, want ChangeUpdated", tc.name, got)
			}
			if got := tr.ProcessMessage(m); got != poller.ChangeNone {
				t.Fatalf("re-process = %v, want ChangeNone", got)
			}
		})
	}
}

func TestTrackerBackwardsMovementIgnored(t *testing.T) {
	now := time.Now()
	tr := poller.NewTracker()

	m := baseMessage("m1", now)
	m.DeliveredAt = now.Add(time.Second)
	tr.ProcessMessage(m)

	// A replica serving an older view must not generate events.
	m.DeliveredAt = now
	if got := tr.ProcessMessage(m); got != poller.ChangeNone {
		t.Fatalf("process with regressed field = %v, want ChangeNone", got)
	}
}

func TestTrackerSeenWithoutSnapshotIsNone(t *testing.T) {
	tr := poller.NewTracker()
	m := baseMessage("m1", time.Now())

	// Cache entry with no snapshot: the marker survived a trim the
	// snapshot did not, or another goroutine is mid-insert. Either way
	// there is no baseline to diff against.
	tr.Cache().Add(m.GUID)
	if got := tr.ClassifyMessage(m); got != poller.ChangeNone {
		t.Fatalf("classify = %v, want ChangeNone", got)
	}
}

func TestTrackerTrimForgetsAndReannounces(t *testing.T) {
	tr := poller.NewTracker()
	m := baseMessage("m1", time.Now())
	tr.ProcessMessage(m)

	tr.Trim(0)

	if got := tr.ClassifyMessage(m); got != poller.ChangeNew {
		t.Fatalf("classify after trim = %v, want ChangeNew", got)
	}
}

func TestTrackerChatReadMarker(t *testing.T) {
	now := time.Now()
	tr := poller.NewTracker()

	c := &store.Chat{GUID: "iMessage;-;+15551234567", LastReadAt: now}
	if got := tr.ProcessChat(c); got != poller.ChangeNew {
		t.Fatalf("first sighting = %v, want ChangeNew", got)
	}
	if got := tr.ProcessChat(c); got != poller.ChangeNone {
		t.Fatalf("unchanged marker = %v, want ChangeNone", got)
	}

	c.LastReadAt = now.Add(time.Minute)
	if got := tr.ProcessChat(c); got != poller.ChangeUpdated {
		t.Fatalf("advanced marker = %v, want ChangeUpdated", got)
	}
}
