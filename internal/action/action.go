// Package action orchestrates client-initiated operations end to end: it
// dispatches through the automation layer, escalates through a retry
// ladder when scripting misbehaves, and correlates sends with their
// database rows through the outgoing promise manager.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pvieira/imsgd/internal/bus"
	"github.com/pvieira/imsgd/internal/outgoing"
	"github.com/pvieira/imsgd/internal/store"
)

// Messenger is the slice of the automation layer the orchestrator drives.
type Messenger interface {
	SendText(ctx context.Context, chatGUID, text string) error
	SendTextDirect(ctx context.Context, address, text string) error
	SendAttachment(ctx context.Context, chatGUID, path string) error
	Restart(ctx context.Context) error
	RenameChat(ctx context.Context, chatName, newName string) error
	AddParticipant(ctx context.Context, chatName, address string) error
	RemoveParticipant(ctx context.Context, chatName, address string) error
	SendTapback(ctx context.Context, chatName string, reaction int) error
	OpenChat(ctx context.Context, chatName string) error
	TypingIndicator(ctx context.Context, chatName string) (bool, error)
}

// stage names the rung of the retry ladder a dispatch failed on.
type stage string

const (
	stageDispatch stage = "dispatch"
	stageRetry    stage = "retry-after-restart"
	stageFallback stage = "direct-fallback"
)

// DispatchError reports that every rung of the ladder failed before the
// message ever left the automation layer.
type DispatchError struct {
	Stage stage
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed at %s: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ErrNoCandidateSucceeded means a structural chat operation failed under
// every display-name candidate.
var ErrNoCandidateSucceeded = errors.New("operation failed for every chat name candidate")

// Config carries the matching windows the orchestrator hands to promises.
type Config struct {
	TextMatchTimeout       time.Duration
	AttachmentMatchTimeout time.Duration
	SendOffset             time.Duration
}

// Orchestrator runs operations against one Messages instance.
type Orchestrator struct {
	msgs    Messenger
	manager *outgoing.Manager
	chats   *store.ChatDB
	app     *store.AppDB
	bus     *bus.Bus
	cfg     Config
	logger  *zap.Logger
}

// New creates an orchestrator. The bus may be nil; settlement events are
// then dropped.
func New(msgs Messenger, manager *outgoing.Manager, chats *store.ChatDB, app *store.AppDB, b *bus.Bus, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		msgs:    msgs,
		manager: manager,
		chats:   chats,
		app:     app,
		bus:     b,
		cfg:     cfg,
		logger:  logger,
	}
}

// SendSettled is the bus payload published when a send reaches its final
// outcome, whatever that outcome is.
type SendSettled struct {
	Token       string `json:"token"`
	Outcome     string `json:"outcome"`
	MatchedGUID string `json:"matchedGuid,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SendResult is a completed send: the correlation token and the database
// row the send matched.
type SendResult struct {
	Token string
	Row   *store.Message
}

// SendText dispatches a text and blocks until its row appears or the
// match window closes. An empty token gets a generated one; a token
// already in flight is rejected before anything is dispatched.
func (o *Orchestrator) SendText(ctx context.Context, chatGUID, text, subject, token string) (*SendResult, error) {
	if token == "" {
		token = uuid.NewString()
	}
	p := outgoing.NewPromise(outgoing.Options{
		ChatGUID:    chatGUID,
		Text:        text,
		Subject:     subject,
		Token:       token,
		Timeout:     o.cfg.TextMatchTimeout,
		IssueOffset: o.cfg.SendOffset,
	})
	if err := o.manager.Register(p); err != nil {
		return nil, err
	}
	o.recordSend(token, chatGUID, "text")

	dispatch := func(c context.Context) error { return o.msgs.SendText(c, chatGUID, text) }
	if err := o.dispatchLadder(ctx, chatGUID, text, dispatch); err != nil {
		p.Reject(err, nil)
	}
	return o.await(ctx, p, token)
}

// SendAttachment dispatches a file and blocks until its row appears. The
// window is much longer than for text: the row shows up only after the
// transfer finishes.
func (o *Orchestrator) SendAttachment(ctx context.Context, chatGUID, path, token string) (*SendResult, error) {
	if token == "" {
		token = uuid.NewString()
	}
	p := outgoing.NewPromise(outgoing.Options{
		ChatGUID:    chatGUID,
		Text:        path,
		Attachment:  true,
		Token:       token,
		Timeout:     o.cfg.AttachmentMatchTimeout,
		IssueOffset: o.cfg.SendOffset,
	})
	if err := o.manager.Register(p); err != nil {
		return nil, err
	}
	o.recordSend(token, chatGUID, "attachment")

	// Attachments skip the direct-send fallback: there is no participant
	// form of a file send worth blind-retrying.
	err := o.msgs.SendAttachment(ctx, chatGUID, path)
	if err != nil && transient(err) {
		if rerr := o.msgs.Restart(ctx); rerr == nil {
			err = o.msgs.SendAttachment(ctx, chatGUID, path)
		}
	}
	if err != nil {
		derr := &DispatchError{Stage: stageDispatch, Err: err}
		p.Reject(derr, nil)
	}
	return o.await(ctx, p, token)
}

// dispatchLadder runs the send escalation: plain dispatch, then restart
// Messages and retry if the failure looks like a wedged scripting bridge,
// then for one-on-one chats a direct send to the participant address.
func (o *Orchestrator) dispatchLadder(ctx context.Context, chatGUID, text string, dispatch func(context.Context) error) error {
	err := dispatch(ctx)
	if err == nil {
		return nil
	}
	if !transient(err) {
		return &DispatchError{Stage: stageDispatch, Err: err}
	}
	o.logger.Warn("dispatch failed, restarting Messages",
		zap.String("chat", chatGUID), zap.Error(err))

	if rerr := o.msgs.Restart(ctx); rerr != nil {
		o.logger.Warn("restart failed", zap.Error(rerr))
	} else if err = dispatch(ctx); err == nil {
		return nil
	}

	address, ok := o.directAddress(chatGUID)
	if !ok {
		return &DispatchError{Stage: stageRetry, Err: err}
	}
	o.logger.Warn("retry failed, falling back to direct send",
		zap.String("chat", chatGUID))
	if ferr := o.msgs.SendTextDirect(ctx, address, text); ferr != nil {
		return &DispatchError{Stage: stageFallback, Err: ferr}
	}
	return nil
}

// directAddress extracts the single participant address from a one-on-one
// chat identifier. Group chats return false: a fallback blind-sent to one
// member would silently fork the conversation.
func (o *Orchestrator) directAddress(chatGUID string) (string, bool) {
	c, err := o.chats.GetChat(chatGUID)
	if err == nil && c != nil && c.IsGroup() {
		return "", false
	}
	parts := strings.SplitN(chatGUID, ";", 3)
	if len(parts) != 3 || parts[2] == "" || strings.HasPrefix(parts[2], "chat") {
		return "", false
	}
	return parts[2], true
}

// await blocks on the promise and settles the audit record to match.
func (o *Orchestrator) await(ctx context.Context, p *outgoing.Promise, token string) (*SendResult, error) {
	row, err := p.Wait(ctx)
	switch {
	case err == nil:
		o.settleSend(token, "matched", row.GUID, "")
		return &SendResult{Token: token, Row: row}, nil
	case errors.Is(err, outgoing.ErrMatchTimeout):
		o.settleSend(token, "timeout", "", err.Error())
	default:
		guid := ""
		if row != nil {
			guid = row.GUID
		}
		outcome := "native_error"
		var derr *DispatchError
		if errors.As(err, &derr) {
			outcome = "dispatch_error"
		}
		o.settleSend(token, outcome, guid, err.Error())
	}
	return nil, err
}

func (o *Orchestrator) recordSend(token, chatGUID, kind string) {
	if o.app == nil {
		return
	}
	if err := o.app.RecordSend(token, chatGUID, kind); err != nil {
		o.logger.Warn("recording send", zap.Error(err))
	}
}

func (o *Orchestrator) settleSend(token, outcome, guid, errText string) {
	if o.app != nil {
		if err := o.app.SettleSend(token, outcome, guid, errText); err != nil {
			o.logger.Warn("settling send record", zap.Error(err))
		}
	}
	if o.bus != nil {
		o.bus.Publish(bus.New("send.settled", SendSettled{
			Token:       token,
			Outcome:     outcome,
			MatchedGUID: guid,
			Error:       errText,
		}))
	}
}

// transient reports whether a dispatch failure is worth escalating. The
// scripting bridge's wedge modes show up as AppleEvent timeouts or the
// -1002 "application isn't running" family; a scripting syntax or
// permission error will fail again no matter how often Messages restarts.
func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timed out", "timeout", "1002", "not running", "connection is invalid"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
