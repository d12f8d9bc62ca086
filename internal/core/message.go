package core

import (
	"time"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

// unknownSender is shown when a group message author cannot be resolved.
const unknownSender = "Unknown"

// DirectMessage is the client-facing view of a one-to-one message.
type DirectMessage struct {
	ID         string
	SenderID   string
	ReceiverID string
	Body       string
	Read       bool
	CreatedAt  time.Time
}

// GroupMessage is the client-facing view of a group message.
type GroupMessage struct {
	ID             string
	SenderID       string
	SenderUsername string
	GroupID        string
	Body           string
	ReadBy         []string
	CreatedAt      time.Time
}

// UserStatus is one row of the presence snapshot.
type UserStatus struct {
	ID       string
	Username string
	Online   bool
}

// GroupSummary is one row of the group listing.
type GroupSummary struct {
	ID   string
	Name string
}

// TypingSignal tells a client that someone started or stopped typing.
type TypingSignal struct {
	SenderID string
	Username string
}

// ReadReceipt reports an updated read state. Direct receipts carry Read,
// group receipts carry ReadBy.
type ReadReceipt struct {
	MessageID string
	IsGroup   bool
	Read      bool
	ReadBy    []string
}

func directView(m *store.DirectMessage) DirectMessage {
	return DirectMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}

func groupView(m *store.GroupMessage, senderUsername string) GroupMessage {
	return GroupMessage{
		ID:             m.ID,
		SenderID:       m.SenderID,
		SenderUsername: senderUsername,
		GroupID:        m.GroupID,
		Body:           m.Body,
		ReadBy:         append([]string(nil), m.ReadBy...),
		CreatedAt:      m.CreatedAt,
	}
}

func groupSummary(g *store.Group) GroupSummary {
	return GroupSummary{ID: g.ID, Name: g.Name}
}
