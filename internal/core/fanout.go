package core

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

// BroadcastPresence sends the directory-wide presence snapshot to every active client.
func (h *Hub) BroadcastPresence(ctx context.Context) {
	statuses, err := h.presence.Snapshot(ctx, h.gateway)
	if err != nil {
		h.logger.Error().Err(err).Msg("presence snapshot failed")
		return
	}
	h.broadcast(h.activeClients(), &Event{Kind: EventUserStatus, Statuses: statuses}, nil)
}

// Groups returns every group in creation order.
func (h *Hub) Groups(ctx context.Context) ([]GroupSummary, error) {
	groups, err := h.gateway.ListGroups(ctx)
	if err != nil {
		return nil, persistenceFailure("list groups", err)
	}
	return lo.Map(groups, func(g *store.Group, _ int) GroupSummary { return groupSummary(g) }), nil
}

func (h *Hub) sendGroupList(ctx context.Context, c *Client) error {
	groups, err := h.Groups(ctx)
	if err != nil {
		return err
	}
	h.send(c, &Event{Kind: EventGroupList, Groups: groups})
	return nil
}

func (h *Hub) createGroup(ctx context.Context, c *Client, cmd CreateGroup) error {
	creator := c.Identity()
	group, err := h.gateway.CreateGroup(ctx, cmd.GroupName, creator.ID)
	if err != nil {
		return persistenceFailure("create group", err)
	}
	h.rooms.Join(group.ID, c)
	h.logger.Info().
		Str("group_id", group.ID).
		Str("user_id", creator.ID).
		Str("name", group.Name).
		Msg("group created")

	groups, err := h.Groups(ctx)
	if err != nil {
		return err
	}
	h.broadcast(h.activeClients(), &Event{Kind: EventGroupList, Groups: groups}, nil)
	return nil
}

func (h *Hub) joinGroup(ctx context.Context, c *Client, cmd JoinGroup) error {
	userID := c.Identity().ID
	if _, err := h.gateway.AddMember(ctx, cmd.GroupID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("group")
		}
		return persistenceFailure("join group", err)
	}
	if h.rooms.Join(cmd.GroupID, c) {
		h.logger.Debug().Str("group_id", cmd.GroupID).Str("client_id", c.ID).Msg("joined channel")
	}
	return nil
}

// ChatHistory returns the direct conversation between two users, oldest first.
func (h *Hub) ChatHistory(ctx context.Context, userID, peerID string) ([]DirectMessage, error) {
	messages, err := h.gateway.ListDirectMessages(ctx, userID, peerID)
	if err != nil {
		return nil, persistenceFailure("load chat history", err)
	}
	return lo.Map(messages, func(m *store.DirectMessage, _ int) DirectMessage { return directView(m) }), nil
}

func (h *Hub) sendChatHistory(ctx context.Context, c *Client, cmd GetChatHistory) error {
	history, err := h.ChatHistory(ctx, c.Identity().ID, cmd.Receiver)
	if err != nil {
		return err
	}
	h.send(c, &Event{Kind: EventChatHistory, DirectHistory: history})
	return nil
}

// GroupChatHistory returns a group's timeline, oldest first, with sender
// usernames resolved. Senders that cannot be resolved show as "Unknown".
func (h *Hub) GroupChatHistory(ctx context.Context, groupID string) ([]GroupMessage, error) {
	messages, err := h.gateway.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, persistenceFailure("load group history", err)
	}

	senderIDs := lo.Uniq(lo.Map(messages, func(m *store.GroupMessage, _ int) string { return m.SenderID }))
	usernames := make(map[string]string, len(senderIDs))
	users, err := h.gateway.GetUsersByIDs(ctx, senderIDs)
	if err != nil {
		h.logger.Warn().Err(err).Str("group_id", groupID).Msg("resolve group history senders")
	}
	for _, u := range users {
		usernames[u.ID] = u.Username
	}

	return lo.Map(messages, func(m *store.GroupMessage, _ int) GroupMessage {
		name, ok := usernames[m.SenderID]
		if !ok {
			name = unknownSender
		}
		return groupView(m, name)
	}), nil
}

func (h *Hub) sendGroupChatHistory(ctx context.Context, c *Client, cmd GetGroupChatHistory) error {
	history, err := h.GroupChatHistory(ctx, cmd.GroupID)
	if err != nil {
		return err
	}
	h.send(c, &Event{Kind: EventGroupChatHistory, GroupHistory: history})
	return nil
}

// typing delivers a typing signal to the receiver if online, otherwise to the
// channel named receiverID (group typing).
func (h *Hub) typing(c *Client, receiverID string, kind EventKind) {
	sender := c.Identity()
	signal := &TypingSignal{SenderID: sender.ID}
	if kind == EventUserTyping {
		signal.Username = sender.Username
	}
	ev := &Event{Kind: kind, Typing: signal}

	if handle, ok := h.presence.Handle(receiverID); ok {
		h.send(handle, ev)
		return
	}
	h.broadcast(h.rooms.Members(receiverID), ev, nil)
}

func (h *Hub) sendDirectMessage(ctx context.Context, c *Client, cmd SendDirectMessage) error {
	sender := c.Identity()
	if _, err := h.gateway.GetUserByID(ctx, cmd.Receiver); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("receiver")
		}
		return persistenceFailure("resolve receiver", err)
	}

	msg := &store.DirectMessage{
		SenderID:   sender.ID,
		ReceiverID: cmd.Receiver,
		Body:       cmd.Message,
	}
	if err := h.gateway.SaveDirectMessage(ctx, msg); err != nil {
		return persistenceFailure("send message", err)
	}

	view := directView(msg)
	h.send(c, &Event{Kind: EventMessageSent, Direct: &view})
	if handle, ok := h.presence.Handle(cmd.Receiver); ok {
		h.send(handle, &Event{Kind: EventReceiveMessage, Direct: &view})
	}
	return nil
}

func (h *Hub) sendGroupMessage(ctx context.Context, c *Client, cmd SendGroupMessage) error {
	sender, err := h.gateway.GetUserByID(ctx, c.Identity().ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("sender")
		}
		return persistenceFailure("resolve sender", err)
	}
	if _, err := h.gateway.GetGroupByID(ctx, cmd.GroupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("group")
		}
		return persistenceFailure("resolve group", err)
	}

	msg := &store.GroupMessage{
		SenderID: sender.ID,
		GroupID:  cmd.GroupID,
		Body:     cmd.Message,
		ReadBy:   []string{sender.ID},
	}
	if err := h.gateway.SaveGroupMessage(ctx, msg); err != nil {
		return persistenceFailure("send group message", err)
	}

	view := groupView(msg, sender.Username)
	h.broadcast(h.rooms.Members(cmd.GroupID), &Event{Kind: EventReceiveGroupMessage, Group: &view}, c)
	h.send(c, &Event{Kind: EventMessageSent, Group: &view})
	return nil
}

func (h *Hub) markAsRead(ctx context.Context, c *Client, cmd MarkAsRead) error {
	var err error
	if cmd.IsGroup {
		err = h.MarkGroupMessageRead(ctx, cmd.MessageID, c.Identity().ID)
	} else {
		_, err = h.MarkDirectMessageRead(ctx, cmd.MessageID)
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// MarkDirectMessageRead marks a direct message read and notifies its sender if
// online. The caller is not checked against the receiver.
func (h *Hub) MarkDirectMessageRead(ctx context.Context, messageID string) (*DirectMessage, error) {
	msg, err := h.gateway.MarkDirectMessageRead(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("message")
		}
		return nil, persistenceFailure("mark message read", err)
	}

	if handle, ok := h.presence.Handle(msg.SenderID); ok {
		h.send(handle, &Event{
			Kind:    EventMessageRead,
			Receipt: &ReadReceipt{MessageID: msg.ID, Read: true},
		})
	}
	view := directView(msg)
	return &view, nil
}

// MarkGroupMessageRead adds readerID to the message's readers and broadcasts
// the updated set to the group channel, reader included.
func (h *Hub) MarkGroupMessageRead(ctx context.Context, messageID, readerID string) error {
	msg, err := h.gateway.AddGroupMessageReader(ctx, messageID, readerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("message")
		}
		return persistenceFailure("mark group message read", err)
	}

	h.broadcast(h.rooms.Members(msg.GroupID), &Event{
		Kind: EventMessageRead,
		Receipt: &ReadReceipt{
			MessageID: msg.ID,
			IsGroup:   true,
			ReadBy:    append([]string(nil), msg.ReadBy...),
		},
	}, nil)
	return nil
}
