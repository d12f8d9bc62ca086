package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique field (email, username) is already taken.
	ErrConflict = errors.New("conflict")
)

// User represents a registered account.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Group is a named conversation with a member set.
type Group struct {
	ID        string
	Name      string
	Members   []string // user ids, each at most once
	CreatedBy string
	CreatedAt time.Time
}

// DirectMessage is a one-to-one message. Sender and receiver never change after creation.
type DirectMessage struct {
	ID         string
	SenderID   string
	ReceiverID string
	Body       string
	Read       bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GroupMessage is a message posted to a group.
type GroupMessage struct {
	ID        string
	SenderID  string
	GroupID   string
	Body      string
	ReadBy    []string // user ids, each at most once
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user. Returns ErrConflict if email or username is taken.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns the full user directory in creation order.
	ListUsers(ctx context.Context) ([]*User, error)

	// ListUsersExcept returns every user but the given one, in creation order.
	ListUsersExcept(ctx context.Context, id string) ([]*User, error)

	// GetUsersByIDs returns the users that exist among ids. Unknown ids are skipped.
	GetUsersByIDs(ctx context.Context, ids []string) ([]*User, error)
}

// GroupStore handles group persistence.
type GroupStore interface {
	// CreateGroup creates a group whose only member is the creator.
	CreateGroup(ctx context.Context, name, creatorID string) (*Group, error)

	// GetGroupByID retrieves a group by ID.
	GetGroupByID(ctx context.Context, id string) (*Group, error)

	// ListGroups returns all groups in creation order.
	ListGroups(ctx context.Context) ([]*Group, error)

	// AddMember adds userID to the group's members (set-union) and returns the updated group.
	// Adding an existing member is a no-op. Returns ErrNotFound if the group does not exist.
	AddMember(ctx context.Context, groupID, userID string) (*Group, error)
}

// MessageStore handles direct and group message persistence.
type MessageStore interface {
	// SaveDirectMessage persists msg, filling ID and timestamps when empty.
	SaveDirectMessage(ctx context.Context, msg *DirectMessage) error

	// GetDirectMessage retrieves a direct message by ID.
	GetDirectMessage(ctx context.Context, id string) (*DirectMessage, error)

	// MarkDirectMessageRead sets read=true and returns the updated message.
	MarkDirectMessageRead(ctx context.Context, id string) (*DirectMessage, error)

	// ListDirectMessages returns the conversation between two users, oldest first.
	ListDirectMessages(ctx context.Context, userID, peerID string) ([]*DirectMessage, error)

	// SaveGroupMessage persists msg, filling ID and CreatedAt when empty.
	// The sender is always part of ReadBy.
	SaveGroupMessage(ctx context.Context, msg *GroupMessage) error

	// GetGroupMessage retrieves a group message by ID.
	GetGroupMessage(ctx context.Context, id string) (*GroupMessage, error)

	// AddGroupMessageReader adds userID to ReadBy (set-union) and returns the updated message.
	AddGroupMessageReader(ctx context.Context, messageID, userID string) (*GroupMessage, error)

	// ListGroupMessages returns a group's messages, oldest first.
	ListGroupMessages(ctx context.Context, groupID string) ([]*GroupMessage, error)
}

// Gateway is the persistence surface the chat core depends on.
type Gateway interface {
	UserStore
	GroupStore
	MessageStore
}

// Store aggregates all storage interfaces.
type Store interface {
	Gateway

	// Close closes the underlying database.
	Close() error
}

// ConversationKey returns an order-independent key for the pair of users.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
