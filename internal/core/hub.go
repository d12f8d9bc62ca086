package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

// ErrHubStopped is returned when the hub is no longer running.
var ErrHubStopped = errors.New("hub stopped")

type lifecycleRequest struct {
	client *Client
	done   chan struct{}
}

// Hub routes client commands to the store and fans events out to connections.
// Run serialises connection lifecycle; each active client has its own
// dispatch goroutine, so one connection's commands run in arrival order.
type Hub struct {
	gateway  store.Gateway
	presence *Presence
	rooms    *Rooms
	logger   *zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan lifecycleRequest
	unregister chan lifecycleRequest
	stopped    chan struct{}
}

// NewHub creates a hub over the given store and presence table.
func NewHub(gateway store.Gateway, presence *Presence, logger *zerolog.Logger) *Hub {
	if presence == nil {
		presence = NewPresence()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		gateway:    gateway,
		presence:   presence,
		rooms:      NewRooms(),
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan lifecycleRequest),
		unregister: make(chan lifecycleRequest),
		stopped:    make(chan struct{}),
	}
}

// Presence returns the hub's presence table.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Rooms returns the hub's channel registry.
func (h *Hub) Rooms() *Rooms {
	return h.rooms
}

// Run processes registrations until ctx is cancelled. On exit every client is disconnected.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case req := <-h.register:
			h.handleRegister(ctx, req.client)
			close(req.done)
		case req := <-h.unregister:
			h.handleUnregister(ctx, req.client)
			close(req.done)
		}
	}
}

// RegisterClient activates an authenticated client. It returns once the client
// is in the presence table and the presence broadcast has been queued.
func (h *Hub) RegisterClient(ctx context.Context, c *Client) error {
	if c.State() != StateAuthenticated {
		return fmt.Errorf("register client %s: state is %s", c.ID, c.State())
	}
	return h.submit(ctx, h.register, c)
}

// UnregisterClient tears a client down: presence entry, channels, presence broadcast.
func (h *Hub) UnregisterClient(ctx context.Context, c *Client) error {
	return h.submit(ctx, h.unregister, c)
}

func (h *Hub) submit(ctx context.Context, ch chan<- lifecycleRequest, c *Client) error {
	req := lifecycleRequest{client: c, done: make(chan struct{})}
	select {
	case ch <- req:
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	if !c.activate() {
		return
	}
	identity := c.Identity()

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.presence.SetOnline(identity.ID, identity.Username, c)
	h.logger.Info().
		Str("client_id", c.ID).
		Str("user_id", identity.ID).
		Str("username", identity.Username).
		Int("online", h.presence.Len()).
		Msg("client registered")

	go h.serve(ctx, c)

	h.BroadcastPresence(ctx)
}

func (h *Hub) handleUnregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.Disconnect()
	if !ok {
		return
	}

	identity := c.Identity()
	released := h.presence.Release(identity.ID, c)
	channels := h.rooms.LeaveAll(c)
	h.logger.Info().
		Str("client_id", c.ID).
		Str("user_id", identity.ID).
		Bool("presence_released", released).
		Strs("channels", channels).
		Msg("client unregistered")

	h.BroadcastPresence(ctx)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		h.presence.Release(c.Identity().ID, c)
		h.rooms.LeaveAll(c)
		c.Disconnect()
	}
	h.logger.Info().Int("clients", len(clients)).Msg("hub stopped")
}

// activeClients returns a snapshot of registered clients.
func (h *Hub) activeClients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// serve is the client's dispatch loop.
func (h *Hub) serve(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case cmd := <-c.Commands:
			h.dispatch(ctx, c, cmd)
		}
	}
}

// dispatch runs a single command. Failures are reported to c only; a panic
// fails the command, not the session.
func (h *Hub) dispatch(ctx context.Context, c *Client, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().
				Str("client_id", c.ID).
				Str("event", commandName(cmd)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("command handler panicked")
			h.send(c, errorEvent(coreError(ErrCodeInternal, "internal error")))
		}
	}()

	if cmd == nil {
		h.send(c, errorEvent(invalidEvent("empty command")))
		return
	}
	if cerr := validateCommand(cmd); cerr != nil {
		h.send(c, errorEvent(cerr))
		return
	}

	var err error
	switch cmd := cmd.(type) {
	case GetGroups:
		err = h.sendGroupList(ctx, c)
	case CreateGroup:
		err = h.createGroup(ctx, c, cmd)
	case JoinGroup:
		err = h.joinGroup(ctx, c, cmd)
	case GetChatHistory:
		err = h.sendChatHistory(ctx, c, cmd)
	case GetGroupChatHistory:
		err = h.sendGroupChatHistory(ctx, c, cmd)
	case Typing:
		h.typing(c, cmd.ReceiverID, EventUserTyping)
	case StopTyping:
		h.typing(c, cmd.ReceiverID, EventUserStoppedTyping)
	case SendDirectMessage:
		err = h.sendDirectMessage(ctx, c, cmd)
	case SendGroupMessage:
		err = h.sendGroupMessage(ctx, c, cmd)
	case MarkAsRead:
		err = h.markAsRead(ctx, c, cmd)
	default:
		err = invalidEvent("unknown event %q", cmd.Name())
	}

	if err != nil {
		cerr := asCoreError(err)
		h.logger.Warn().
			Str("client_id", c.ID).
			Str("user_id", c.Identity().ID).
			Str("event", cmd.Name()).
			Str("code", cerr.Code).
			Err(err).
			Msg("command failed")
		h.send(c, errorEvent(cerr))
	}
}

func commandName(cmd Command) string {
	if cmd == nil {
		return ""
	}
	return cmd.Name()
}

func asCoreError(err error) *CoreError {
	var cerr *CoreError
	if errors.As(err, &cerr) {
		return cerr
	}
	return persistenceFailure("process event", err)
}

// send delivers ev to c, logging when a slow consumer forces a drop.
func (h *Hub) send(c *Client, ev *Event) {
	if c.deliver(ev) || c.State() == StateDisconnected {
		return
	}
	h.logger.Warn().
		Str("client_id", c.ID).
		Str("event", ev.Kind.String()).
		Msg("client queue full, dropping event")
}

// broadcast delivers ev to every client in clients, except skip.
func (h *Hub) broadcast(clients []*Client, ev *Event, skip *Client) {
	for _, c := range clients {
		if c == skip {
			continue
		}
		h.send(c, ev)
	}
}
