package http

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

var errUnknownType = errors.New("unknown message type")

type commandDecoder func(data json.RawMessage) (core.Command, error)

func decode[T core.Command](data json.RawMessage) (core.Command, error) {
	var cmd T
	if len(data) == 0 || string(data) == "null" {
		return cmd, nil
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

var decoders = map[string]commandDecoder{
	proto.InboundTypeGetGroups:           decode[core.GetGroups],
	proto.InboundTypeCreateGroup:         decode[core.CreateGroup],
	proto.InboundTypeJoinGroup:           decode[core.JoinGroup],
	proto.InboundTypeGetChatHistory:      decode[core.GetChatHistory],
	proto.InboundTypeGetGroupChatHistory: decode[core.GetGroupChatHistory],
	proto.InboundTypeTyping:              decode[core.Typing],
	proto.InboundTypeStopTyping:          decode[core.StopTyping],
	proto.InboundTypeSendUserMessage:     decode[core.SendDirectMessage],
	proto.InboundTypeSendGroupMessage:    decode[core.SendGroupMessage],
	proto.InboundTypeMarkAsRead:          decode[core.MarkAsRead],
}

// inboundToCommand maps a client frame to a core command.
func inboundToCommand(inbound proto.Inbound) (core.Command, error) {
	dec, ok := decoders[inbound.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownType, inbound.Type)
	}
	cmd, err := dec(inbound.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", inbound.Type, err)
	}
	return cmd, nil
}

func errorOutbound(code, msg string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Event: core.EventError.String(),
		Error: &proto.Error{Code: code, Message: msg},
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	if event.Kind == core.EventError {
		if event.Error == nil {
			return errorOutbound(core.ErrCodeInternal, "unknown error")
		}
		out := errorOutbound(event.Error.Code, event.Error.Message)
		out.Error.Detail = event.Error.Detail
		return out
	}

	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
	switch event.Kind {
	case core.EventUserStatus:
		out.Data = lo.Map(event.Statuses, func(s core.UserStatus, _ int) proto.UserStatus {
			return proto.UserStatus{ID: s.ID, Username: s.Username, Online: s.Online}
		})
	case core.EventGroupList:
		out.Data = lo.Map(event.Groups, func(g core.GroupSummary, _ int) proto.Group {
			return proto.Group{ID: g.ID, Name: g.Name}
		})
	case core.EventChatHistory:
		out.Data = lo.Map(event.DirectHistory, func(m core.DirectMessage, _ int) proto.DirectMessage {
			return directMessage(m)
		})
	case core.EventGroupChatHistory:
		out.Data = lo.Map(event.GroupHistory, func(m core.GroupMessage, _ int) proto.GroupMessage {
			return groupMessage(m)
		})
	case core.EventUserTyping, core.EventUserStoppedTyping:
		if event.Typing != nil {
			out.Data = proto.Typing{Sender: event.Typing.SenderID, Username: event.Typing.Username}
		}
	case core.EventMessageSent, core.EventReceiveMessage, core.EventReceiveGroupMessage:
		switch {
		case event.Direct != nil:
			out.Data = directMessage(*event.Direct)
		case event.Group != nil:
			out.Data = groupMessage(*event.Group)
		}
	case core.EventMessageRead:
		if r := event.Receipt; r != nil {
			if r.IsGroup {
				out.Data = proto.GroupRead{MessageID: r.MessageID, ReadBy: nonNil(r.ReadBy)}
			} else {
				out.Data = proto.DirectRead{MessageID: r.MessageID, Read: r.Read}
			}
		}
	}
	return out
}

func directMessage(m core.DirectMessage) proto.DirectMessage {
	return proto.DirectMessage{
		ID:        m.ID,
		Sender:    m.SenderID,
		Receiver:  m.ReceiverID,
		Message:   m.Body,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}

func groupMessage(m core.GroupMessage) proto.GroupMessage {
	return proto.GroupMessage{
		ID:             m.ID,
		Sender:         m.SenderID,
		SenderUsername: m.SenderUsername,
		Group:          m.GroupID,
		Message:        m.Body,
		ReadBy:         nonNil(m.ReadBy),
		CreatedAt:      m.CreatedAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
