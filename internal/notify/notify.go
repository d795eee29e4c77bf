// Package notify fans daemon events out to external consumers: it mirrors
// the in-process bus to a configured webhook so integrations that cannot
// hold a WebSocket open still hear about activity.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pvieira/imsgd/internal/bus"
)

// Dispatcher forwards bus events to a webhook. Delivery is fire-and-forget
// with a short per-request timeout; a dead webhook must never back-pressure
// the pollers.
type Dispatcher struct {
	bus        *bus.Bus
	webhookURL string
	client     *http.Client
	logger     *zap.Logger

	unsub func()
	stop  chan struct{}
	done  chan struct{}
}

// NewDispatcher creates a dispatcher. An empty webhookURL disables
// forwarding; Start and Stop stay safe to call.
func NewDispatcher(b *bus.Bus, webhookURL string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		bus:        b,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// envelope is the webhook wire format for one event.
type envelope struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Start subscribes to the bus and begins forwarding.
func (d *Dispatcher) Start() {
	if d.webhookURL == "" {
		return
	}
	ch, unsub := d.bus.Subscribe("", 256)
	d.unsub = unsub
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		for {
			select {
			case evt := <-ch:
				d.post(evt)
			case <-d.stop:
				return
			}
		}
	}()
	d.logger.Info("webhook forwarding enabled", zap.String("url", d.webhookURL))
}

// Stop unsubscribes and waits for the forwarding loop to finish the
// delivery it is on.
func (d *Dispatcher) Stop() {
	if d.unsub == nil {
		return
	}
	d.unsub()
	close(d.stop)
	<-d.done
	d.unsub = nil
}

func (d *Dispatcher) post(evt bus.Event) {
	body, err := json.Marshal(envelope{
		Topic:     evt.Topic,
		Timestamp: evt.Timestamp,
		Payload:   evt.Payload,
	})
	if err != nil {
		d.logger.Warn("webhook payload not serializable",
			zap.String("topic", evt.Topic), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("building webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed",
			zap.String("topic", evt.Topic), zap.Error(err))
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.logger.Warn("webhook rejected event",
			zap.String("topic", evt.Topic),
			zap.Int("status", resp.StatusCode))
	}
}
