package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUserStatus carries the directory-wide presence snapshot.
	EventUserStatus EventKind = iota
	// EventGroupList carries the full group listing.
	EventGroupList
	// EventChatHistory carries a direct conversation, oldest first.
	EventChatHistory
	// EventGroupChatHistory carries a group timeline, oldest first.
	EventGroupChatHistory
	// EventUserTyping notifies that a user started typing.
	EventUserTyping
	// EventUserStoppedTyping notifies that a user stopped typing.
	EventUserStoppedTyping
	// EventMessageSent acknowledges a persisted message to its sender.
	EventMessageSent
	// EventReceiveMessage delivers a direct message to its receiver.
	EventReceiveMessage
	// EventReceiveGroupMessage delivers a group message to channel members.
	EventReceiveGroupMessage
	// EventMessageRead notifies about an updated read state.
	EventMessageRead
	// EventError notifies the originating client about a failed command.
	EventError
)

var eventNames = [...]string{
	EventUserStatus:          "userStatus",
	EventGroupList:           "groupList",
	EventChatHistory:         "chatHistory",
	EventGroupChatHistory:    "groupChatHistory",
	EventUserTyping:          "userTyping",
	EventUserStoppedTyping:   "userStoppedTyping",
	EventMessageSent:         "messageSent",
	EventReceiveMessage:      "receiveMessage",
	EventReceiveGroupMessage: "receiveGroupMessage",
	EventMessageRead:         "messageRead",
	EventError:               "error",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}

// Event is sent to clients to describe what happened in the system.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	Direct        *DirectMessage // messageSent (direct), receiveMessage
	Group         *GroupMessage  // messageSent (group), receiveGroupMessage
	Statuses      []UserStatus
	Groups        []GroupSummary
	DirectHistory []DirectMessage
	GroupHistory  []GroupMessage
	Typing        *TypingSignal
	Receipt       *ReadReceipt
	Error         *CoreError
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
