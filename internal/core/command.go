package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Command is an inbound request from a client. The set of implementations
// is closed; the hub dispatches on the concrete type.
type Command interface {
	// Name returns the wire name of the command.
	Name() string
	command()
}

// GetGroups asks for the group listing.
type GetGroups struct{}

// CreateGroup creates a group owned by the caller.
type CreateGroup struct {
	GroupName string `json:"name" validate:"required"`
}

// JoinGroup adds the caller to a group and subscribes the connection to its channel.
type JoinGroup struct {
	GroupID string `json:"groupId" validate:"required"`
}

// GetChatHistory asks for the direct conversation with Receiver.
type GetChatHistory struct {
	Receiver string `json:"receiver" validate:"required"`
}

// GetGroupChatHistory asks for a group's timeline.
type GetGroupChatHistory struct {
	GroupID string `json:"groupId" validate:"required"`
}

// Typing signals that the caller started typing to a user or group.
type Typing struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

// StopTyping signals that the caller stopped typing.
type StopTyping struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

// SendDirectMessage sends a one-to-one message.
type SendDirectMessage struct {
	Receiver string `json:"receiver" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

// SendGroupMessage posts a message to a group.
type SendGroupMessage struct {
	GroupID string `json:"groupId" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// MarkAsRead records a read receipt for a direct or group message.
type MarkAsRead struct {
	MessageID string `json:"messageId" validate:"required"`
	IsGroup   bool   `json:"isGroup"`
}

func (GetGroups) Name() string           { return "getGroups" }
func (CreateGroup) Name() string         { return "createGroup" }
func (JoinGroup) Name() string           { return "joinGroup" }
func (GetChatHistory) Name() string      { return "getChatHistory" }
func (GetGroupChatHistory) Name() string { return "getGroupChatHistory" }
func (Typing) Name() string              { return "typing" }
func (StopTyping) Name() string          { return "stopTyping" }
func (SendDirectMessage) Name() string   { return "sendUserMessage" }
func (SendGroupMessage) Name() string    { return "sendGroupMessage" }
func (MarkAsRead) Name() string          { return "markAsRead" }

func (GetGroups) command()           {}
func (CreateGroup) command()         {}
func (JoinGroup) command()           {}
func (GetChatHistory) command()      {}
func (GetGroupChatHistory) command() {}
func (Typing) command()              {}
func (StopTyping) command()          {}
func (SendDirectMessage) command()   {}
func (SendGroupMessage) command()    {}
func (MarkAsRead) command()          {}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateCommand checks required fields and returns an invalid_event error
// naming the missing ones.
func validateCommand(cmd Command) *CoreError {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string { return fe.Field() })
		return invalidEvent("%s: missing required fields: %s", cmd.Name(), strings.Join(fields, ", "))
	}
	return invalidEvent("%s: %v", cmd.Name(), err)
}
