package automation

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

const sendTextScript = `
on run argv
	set targetChat to item 1 of argv
	set theText to item 2 of argv
	tell application "Messages"
		send theText to chat id targetChat
	end tell
end run`

const sendTextDirectScript = `
on run argv
	set theAddress to item 1 of argv
	set theText to item 2 of argv
	tell application "Messages"
		set svc to 1st account whose service type = iMessage
		set theTarget to participant theAddress of svc
		send theText to theTarget
	end tell
end run`

const sendAttachmentScript = `
on run argv
	set targetChat to item 1 of argv
	set theFile to POSIX file (item 2 of argv)
	tell application "Messages"
		send theFile to chat id targetChat
	end tell
end run`

const restartScript = `
on run argv
	tell application "Messages" to quit
	delay 1
	tell application "Messages" to activate
	delay 2
end run`

const openChatScript = `
on run argv
	set chatName to item 1 of argv
	tell application "Messages" to activate
	delay 0.5
	tell application "System Events"
		tell process "Messages"
			keystroke "f" using command down
			delay 0.3
			keystroke chatName
			delay 1
			key code 36
			delay 0.5
		end tell
	end tell
end run`

const renameChatScript = `
on run argv
	set chatName to item 1 of argv
	set newName to item 2 of argv
	tell application "Messages" to activate
	delay 0.5
	tell application "System Events"
		tell process "Messages"
			keystroke "f" using command down
			delay 0.3
			keystroke chatName
			delay 1
			key code 36
			delay 0.5
			keystroke "i" using command down
			delay 1
			set value of text field 1 of sheet 1 of window 1 to newName
			key code 36
			delay 0.3
			key code 53
		end tell
	end tell
end run`

const addParticipantScript = `
on run argv
	set chatName to item 1 of argv
	set theAddress to item 2 of argv
	tell application "Messages" to activate
	delay 0.5
	tell application "System Events"
		tell process "Messages"
			keystroke "f" using command down
			delay 0.3
			keystroke chatName
			delay 1
			key code 36
			delay 0.5
			keystroke "i" using command down
			delay 1
			click button "Add Member" of sheet 1 of window 1
			delay 0.5
			keystroke theAddress
			delay 1
			key code 36
			delay 0.3
			key code 53
		end tell
	end tell
end run`

const removeParticipantScript = `
on run argv
	set chatName to item 1 of argv
	set theAddress to item 2 of argv
	tell application "Messages" to activate
	delay 0.5
	tell application "System Events"
		tell process "Messages"
			keystroke "f" using command down
			delay 0.3
			keystroke chatName
			delay 1
			key code 36
			delay 0.5
			keystroke "i" using command down
			delay 1
			select (1st row of table 1 of sheet 1 of window 1 whose value of static text 1 contains theAddress)
			key code 51
			delay 0.3
			key code 53
		end tell
	end tell
end run`

const tapbackScript = `
on run argv
	set chatName to item 1 of argv
	set reactionIndex to (item 2 of argv) as integer
	tell application "Messages" to activate
	delay 0.5
	tell application "System Events"
		tell process "Messages"
			keystroke "f" using command down
			delay 0.3
			keystroke chatName
			delay 1
			key code 36
			delay 0.5
			set lastMessage to last group of scroll area 2 of splitter group 1 of window 1
			perform action "AXShowMenu" of lastMessage
			delay 0.5
			click menu item "Tapback" of menu 1 of lastMessage
			delay 0.5
			click radio button reactionIndex of radio group 1 of window 1
		end tell
	end tell
end run`

const typingIndicatorScript = `
on run argv
	set chatName to item 1 of argv
	tell application "System Events"
		tell process "Messages"
			set indicatorCount to count of (groups of scroll area 2 of splitter group 1 of window 1 whose description contains "typing")
		end tell
	end tell
	return indicatorCount as string
end run`

// Messages exposes the scripted operations against the Messages app.
// Structural operations (rename, participants, tapback) drive the UI
// through System Events and need the hosting session to be unlocked with
// accessibility access granted.
type Messages struct {
	runner Runner
	logger *zap.Logger
}

// NewMessages wraps a Runner.
func NewMessages(r Runner, logger *zap.Logger) *Messages {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messages{runner: r, logger: logger}
}

// SendText sends a text to an existing chat addressed by its identifier
// (the chat.db guid, e.g. "iMessage;-;+15551234567").
func (m *Messages) SendText(ctx context.Context, chatGUID, text string) error {
	_, err := m.runner.Run(ctx, sendTextScript, chatGUID, text)
	return err
}

// SendTextDirect sends a text straight to a participant address. Used as
// a fallback for one-on-one chats when chat-addressed sending fails; a
// group chat has no single address to fall back to.
func (m *Messages) SendTextDirect(ctx context.Context, address, text string) error {
	_, err := m.runner.Run(ctx, sendTextDirectScript, address, text)
	return err
}

// SendAttachment sends a file to an existing chat.
func (m *Messages) SendAttachment(ctx context.Context, chatGUID, path string) error {
	_, err := m.runner.Run(ctx, sendAttachmentScript, chatGUID, path)
	return err
}

// Restart quits and relaunches the Messages app. The scripting bridge
// wedges itself after enough errors; a relaunch is the only known reset.
func (m *Messages) Restart(ctx context.Context) error {
	m.logger.Info("restarting Messages app")
	_, err := m.runner.Run(ctx, restartScript)
	return err
}

// OpenChat brings a chat to the foreground by display name.
func (m *Messages) OpenChat(ctx context.Context, chatName string) error {
	_, err := m.runner.Run(ctx, openChatScript, chatName)
	return err
}

// RenameChat sets a group chat's display name through the details sheet.
func (m *Messages) RenameChat(ctx context.Context, chatName, newName string) error {
	_, err := m.runner.Run(ctx, renameChatScript, chatName, newName)
	return err
}

// AddParticipant adds an address to a group chat.
func (m *Messages) AddParticipant(ctx context.Context, chatName, address string) error {
	_, err := m.runner.Run(ctx, addParticipantScript, chatName, address)
	return err
}

// RemoveParticipant removes an address from a group chat.
func (m *Messages) RemoveParticipant(ctx context.Context, chatName, address string) error {
	_, err := m.runner.Run(ctx, removeParticipantScript, chatName, address)
	return err
}

// SendTapback applies a reaction to the newest message in a chat.
// reaction is the 1-based position in the tapback picker (love, like,
// dislike, laugh, emphasize, question).
func (m *Messages) SendTapback(ctx context.Context, chatName string, reaction int) error {
	_, err := m.runner.Run(ctx, tapbackScript, chatName, strconv.Itoa(reaction))
	return err
}

// TypingIndicator reports whether the other side of a chat is typing,
// best effort via the UI.
func (m *Messages) TypingIndicator(ctx context.Context, chatName string) (bool, error) {
	out, err := m.runner.Run(ctx, typingIndicatorScript, chatName)
	if err != nil {
		return false, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}
