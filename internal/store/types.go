package store

import "time"

// Group-event classification for rows that record a structural change to a
// group chat rather than a message (item_type + group_action_type).
const (
	itemTypeMessage           = 0
	itemTypeParticipantChange = 1
	itemTypeNameChange        = 2
	itemTypeGroupAction       = 3
)

// Message is one row of the Messages database. The GUID is assigned by the
// OS only after the row is durably recorded; an in-flight send has no
// identifier the daemon could correlate on, which is why outgoing matching
// works on content instead.
type Message struct {
	RowID   int64
	GUID    string
	Text    string
	Summary string // derived from the rich-text body when Text is empty
	Subject string

	FromMe bool
	IsSent bool
	Error  int

	CreatedAt   time.Time
	DeliveredAt time.Time
	ReadAt      time.Time
	EditedAt    time.Time
	RetractedAt time.Time
	DidNotify   bool

	PartCount       int
	ItemType        int
	GroupActionType int
	GroupTitle      string

	ChatGUIDs   []string
	Attachments []Attachment
}

// UniversalText returns the plain text, falling back to the rich-text
// derived summary when plain text is empty.
func (m *Message) UniversalText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Summary
}

// HasUnsentParts reports whether part of a multi-part message has been
// retracted while the rest survives (partial unsend).
func (m *Message) HasUnsentParts() bool {
	return !m.RetractedAt.IsZero() && m.PartCount > 1
}

// IsGroupEvent reports whether this row records a group-structural change
// (participant/name/icon) rather than content.
func (m *Message) IsGroupEvent() bool {
	return m.Text == "" && m.ItemType != itemTypeMessage
}

// GroupEventKind names the structural change recorded by a group-event
// row. Empty for regular messages.
type GroupEventKind string

const (
	GroupParticipantAdded   GroupEventKind = "participant_added"
	GroupParticipantRemoved GroupEventKind = "participant_removed"
	GroupParticipantLeft    GroupEventKind = "participant_left"
	GroupNameChange         GroupEventKind = "name_change"
	GroupIconChange         GroupEventKind = "icon_change"
	GroupIconRemoved        GroupEventKind = "icon_removed"
)

// GroupEvent maps the row's item_type/group_action_type pair to a
// GroupEventKind. The second return is false for regular messages and
// unknown combinations.
func (m *Message) GroupEvent() (GroupEventKind, bool) {
	if !m.IsGroupEvent() {
		return "", false
	}
	switch m.ItemType {
	case itemTypeParticipantChange:
		if m.GroupActionType == 0 {
			return GroupParticipantAdded, true
		}
		return GroupParticipantRemoved, true
	case itemTypeNameChange:
		return GroupNameChange, true
	case itemTypeGroupAction:
		switch m.GroupActionType {
		case 1:
			return GroupIconChange, true
		case 2:
			return GroupIconRemoved, true
		default:
			return GroupParticipantLeft, true
		}
	}
	return "", false
}

// Attachment is a file transfer attached to a message.
type Attachment struct {
	RowID        int64
	GUID         string
	TransferName string
	MimeType     string
	TotalBytes   int64
}

// Chat is a conversation (direct or group).
type Chat struct {
	RowID        int64
	GUID         string
	Identifier   string
	DisplayName  string
	Style        int
	LastReadAt   time.Time
	Participants []string
}

// groupChatStyle is the chat.style value for group conversations.
const groupChatStyle = 43

// IsGroup reports whether the chat has more than one remote participant.
func (c *Chat) IsGroup() bool {
	return c.Style == groupChatStyle || len(c.Participants) > 1
}

// SendLogEntry is one audited outgoing send in imsgd.db.
type SendLogEntry struct {
	ID          int64
	Token       string
	ChatGUID    string
	Kind        string // text, attachment
	Outcome     string // pending, matched, timeout, dispatch_error, native_error
	MatchedGUID string
	ErrorText   string
	CreatedAt   int64
	SettledAt   int64
}
