package notify_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pvieira/imsgd/internal/bus"
	"github.com/pvieira/imsgd/internal/notify"
)

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, body)
	c.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func TestDispatcherForwardsEvents(t *testing.T) {
	sink := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(sink.handler))
	defer srv.Close()

	b := bus.NewBus()
	d := notify.NewDispatcher(b, srv.URL, nil)
	d.Start()
	defer d.Stop()

	b.Publish(bus.New("message.new", map[string]string{"guid": "m1"}))

	deadline := time.After(5 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("webhook never received the event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	var got struct {
		Topic   string            `json:"topic"`
		Payload map[string]string `json:"payload"`
	}
	sink.mu.Lock()
	body := sink.bodies[0]
	sink.mu.Unlock()
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Topic != "message.new" || got.Payload["guid"] != "m1" {
		t.Fatalf("delivered = %+v", got)
	}
}

func TestDispatcherDisabledWithoutURL(t *testing.T) {
	b := bus.NewBus()
	d := notify.NewDispatcher(b, "", nil)
	d.Start()
	b.Publish(bus.New("message.new", nil))
	d.Stop()
}

func TestDispatcherToleratesDeadWebhook(t *testing.T) {
	b := bus.NewBus()
	d := notify.NewDispatcher(b, "http://127.0.0.1:1/nope", nil)
	d.Start()
	defer d.Stop()

	// Nothing to assert beyond "does not panic or block".
	b.Publish(bus.New("message.new", nil))
	time.Sleep(50 * time.Millisecond)
}
