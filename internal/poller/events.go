// Package poller derives classified events from the Messages database by
// comparing successive observations. Polling is the only way the daemon
// learns that a send landed, failed, or a conversation changed; there is
// no native change-notification feed.
package poller

import "github.com/pvieira/imsgd/internal/store"

// EventKind is the closed set of events a poll pass can produce.
type EventKind int

const (
	EventNewMessage EventKind = iota
	EventUpdatedMessage
	EventMessageSendError
	EventGroupNameChanged
	EventParticipantAdded
	EventParticipantRemoved
	EventParticipantLeft
	EventGroupIconChanged
	EventGroupIconRemoved
	EventChatReadStatusChanged
)

var eventTopics = map[EventKind]string{
	EventNewMessage:            "message.new",
	EventUpdatedMessage:        "message.updated",
	EventMessageSendError:      "message.send_error",
	EventGroupNameChanged:      "group.name_changed",
	EventParticipantAdded:      "group.participant_added",
	EventParticipantRemoved:    "group.participant_removed",
	EventParticipantLeft:       "group.participant_left",
	EventGroupIconChanged:      "group.icon_changed",
	EventGroupIconRemoved:      "group.icon_removed",
	EventChatReadStatusChanged: "chat.read_status_changed",
}

// Topic returns the bus topic for this event kind.
func (k EventKind) Topic() string {
	return eventTopics[k]
}

func (k EventKind) String() string {
	return eventTopics[k]
}

// groupEventKinds maps the store's group-event classification onto event
// kinds.
var groupEventKinds = map[store.GroupEventKind]EventKind{
	store.GroupParticipantAdded:   EventParticipantAdded,
	store.GroupParticipantRemoved: EventParticipantRemoved,
	store.GroupParticipantLeft:    EventParticipantLeft,
	store.GroupNameChange:         EventGroupNameChanged,
	store.GroupIconChange:         EventGroupIconChanged,
	store.GroupIconRemoved:        EventGroupIconRemoved,
}

// Result is one classified event produced by a poll pass. Message is set
// for message and group events, Chat for chat events.
type Result struct {
	Kind    EventKind
	Message *store.Message
	Chat    *store.Chat
}
