package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeHello               = "hello"
	InboundTypeGetGroups           = "getGroups"
	InboundTypeCreateGroup         = "createGroup"
	InboundTypeJoinGroup           = "joinGroup"
	InboundTypeGetChatHistory      = "getChatHistory"
	InboundTypeGetGroupChatHistory = "getGroupChatHistory"
	InboundTypeTyping              = "typing"
	InboundTypeStopTyping          = "stopTyping"
	InboundTypeSendUserMessage     = "sendUserMessage"
	InboundTypeSendGroupMessage    = "sendGroupMessage"
	InboundTypeMarkAsRead          = "markAsRead"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// HelloData authenticates a connection that did not present a token at upgrade.
type HelloData struct {
	Token string `json:"token"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a failed event. Detail carries the underlying cause, if any.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"error,omitempty"`
}

// User is the public view of an account.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// UserStatus is one row of the userStatus event.
type UserStatus struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Group is one row of the groupList event.
type Group struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// DirectMessage is a one-to-one message.
type DirectMessage struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// GroupMessage is a message posted to a group.
type GroupMessage struct {
	ID             string    `json:"_id"`
	Sender         string    `json:"sender"`
	SenderUsername string    `json:"senderUsername"`
	Group          string    `json:"group"`
	Message        string    `json:"message"`
	ReadBy         []string  `json:"readBy"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Typing is the payload of userTyping and userStoppedTyping.
type Typing struct {
	Sender   string `json:"sender"`
	Username string `json:"username,omitempty"`
}

// DirectRead is the messageRead payload for direct messages.
type DirectRead struct {
	MessageID string `json:"messageId"`
	Read      bool   `json:"read"`
}

// GroupRead is the messageRead payload for group messages.
type GroupRead struct {
	MessageID string   `json:"messageId"`
	ReadBy    []string `json:"readBy"`
}

// AuthResponse is returned by the register and login endpoints.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
