package core

import "sync"

// Room groups clients subscribed to the same channel.
type Room struct {
	Name    string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

// Rooms is the channel registry, keyed by group id. A connection is in a
// channel only after it joined on that connection; nothing here is persisted.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRooms creates an empty registry.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*Room)}
}

// Join subscribes c to the named channel. Returns true if newly joined.
// A disconnected client is never subscribed; teardown disconnects before LeaveAll.
func (rs *Rooms) Join(name string, c *Client) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if c.State() == StateDisconnected {
		return false
	}
	room, ok := rs.rooms[name]
	if !ok {
		room = NewRoom(name)
		rs.rooms[name] = room
	}
	return room.AddClient(c)
}

// LeaveAll unsubscribes c from every channel and returns their names.
// Empty channels are dropped.
func (rs *Rooms) LeaveAll(c *Client) []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var left []string
	for name := range rs.rooms {
		if rs.leaveLocked(name, c) {
			left = append(left, name)
		}
	}
	return left
}

func (rs *Rooms) leaveLocked(name string, c *Client) bool {
	room, ok := rs.rooms[name]
	if !ok || !room.RemoveClient(c) {
		return false
	}
	if room.Empty() {
		delete(rs.rooms, name)
	}
	return true
}

// Members returns a snapshot of the clients in the named channel.
func (rs *Rooms) Members(name string) []*Client {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	room, ok := rs.rooms[name]
	if !ok {
		return nil
	}
	members := make([]*Client, 0, len(room.clients))
	for c := range room.clients {
		members = append(members, c)
	}
	return members
}

// IsMember reports whether c has joined the named channel.
func (rs *Rooms) IsMember(name string, c *Client) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	room, ok := rs.rooms[name]
	if !ok {
		return false
	}
	_, joined := room.clients[c]
	return joined
}
