package action

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pvieira/imsgd/internal/store"
)

// chatNameCandidates builds the display names a chat may be listed under
// in the Messages UI. A chat with an explicit name is listed under it;
// an unnamed group is listed under a joined participant list whose exact
// separator and ordering vary by OS version, so every plausible form is
// a candidate.
func chatNameCandidates(c *store.Chat) []string {
	if c.DisplayName != "" {
		return []string{c.DisplayName}
	}
	parts := c.Participants
	if len(parts) == 0 {
		return []string{c.Identifier}
	}
	if len(parts) == 1 {
		return []string{parts[0]}
	}

	var out []string
	out = append(out, strings.Join(parts, ", "))
	if len(parts) == 2 {
		out = append(out, parts[0]+" & "+parts[1])
		out = append(out, parts[1]+" & "+parts[0])
	}
	reversed := make([]string, len(parts))
	for i, p := range parts {
		reversed[len(parts)-1-i] = p
	}
	out = append(out, strings.Join(reversed, ", "))
	return out
}

// runForChat restarts Messages once up front (UI scripting against a
// stale window hierarchy fails in confusing ways), then tries op against
// every name candidate in priority order. The UI scripts fail fast when a
// name matches nothing, so trying all candidates is cheap next to one
// successful run.
func (o *Orchestrator) runForChat(ctx context.Context, chatGUID string, op func(ctx context.Context, chatName string) error) error {
	c, err := o.chats.GetChat(chatGUID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("no chat with guid %q", chatGUID)
	}

	if err := o.msgs.Restart(ctx); err != nil {
		o.logger.Warn("restart before chat operation failed", zap.Error(err))
	}

	var lastErr error
	for _, name := range chatNameCandidates(c) {
		err := op(ctx, name)
		if err == nil {
			return nil
		}
		lastErr = err
		o.logger.Debug("chat operation failed under candidate",
			zap.String("chat", chatGUID),
			zap.String("candidate", name),
			zap.Error(err))
	}
	o.logger.Warn("chat operation exhausted candidates",
		zap.String("chat", chatGUID), zap.Error(lastErr))
	return fmt.Errorf("%w: %v", ErrNoCandidateSucceeded, lastErr)
}

// RenameChat sets a group chat's display name.
func (o *Orchestrator) RenameChat(ctx context.Context, chatGUID, newName string) error {
	return o.runForChat(ctx, chatGUID, func(ctx context.Context, name string) error {
		return o.msgs.RenameChat(ctx, name, newName)
	})
}

// AddParticipant adds an address to a group chat.
func (o *Orchestrator) AddParticipant(ctx context.Context, chatGUID, address string) error {
	return o.runForChat(ctx, chatGUID, func(ctx context.Context, name string) error {
		return o.msgs.AddParticipant(ctx, name, address)
	})
}

// RemoveParticipant removes an address from a group chat.
func (o *Orchestrator) RemoveParticipant(ctx context.Context, chatGUID, address string) error {
	return o.runForChat(ctx, chatGUID, func(ctx context.Context, name string) error {
		return o.msgs.RemoveParticipant(ctx, name, address)
	})
}

// SendTapback reacts to the newest message in a chat.
func (o *Orchestrator) SendTapback(ctx context.Context, chatGUID string, reaction int) error {
	return o.runForChat(ctx, chatGUID, func(ctx context.Context, name string) error {
		return o.msgs.SendTapback(ctx, name, reaction)
	})
}

// OpenChat brings a chat to the foreground, which is also how the local
// user's read marker advances.
func (o *Orchestrator) OpenChat(ctx context.Context, chatGUID string) error {
	return o.runForChat(ctx, chatGUID, func(ctx context.Context, name string) error {
		return o.msgs.OpenChat(ctx, name)
	})
}

// CheckTyping reports whether the remote side of a chat is typing, best
// effort through the UI.
func (o *Orchestrator) CheckTyping(ctx context.Context, chatGUID string) (bool, error) {
	var typing bool
	err := o.runForChat(ctx, chatGUID, func(ctx context.Context, name string) error {
		t, terr := o.msgs.TypingIndicator(ctx, name)
		if terr != nil {
			return terr
		}
		typing = t
		return nil
	})
	return typing, err
}
