package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

// PresenceEntry maps an online user to its live connection.
type PresenceEntry struct {
	UserID   string
	Username string
	Client   *Client
}

// Presence is the in-memory table of online users. There is at most one
// entry per user; the last SetOnline wins.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]PresenceEntry
}

// NewPresence creates an empty table.
func NewPresence() *Presence {
	return &Presence{entries: make(map[string]PresenceEntry)}
}

// SetOnline records c as the user's connection, replacing any previous entry.
func (p *Presence) SetOnline(userID, username string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[userID] = PresenceEntry{UserID: userID, Username: username, Client: c}
}

// IsOnline reports whether the user has a live connection.
func (p *Presence) IsOnline(userID string) bool {
	_, ok := p.Handle(userID)
	return ok
}

// Handle returns the user's live connection.
func (p *Presence) Handle(userID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[userID]
	return entry.Client, ok
}

// SetOffline removes the user's entry unconditionally.
func (p *Presence) SetOffline(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, userID)
}

// Release removes the user's entry only if it still points at c, so a stale
// connection closing does not evict a newer one.
func (p *Presence) Release(userID string, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	if !ok || entry.Client != c {
		return false
	}
	delete(p.entries, userID)
	return true
}

// Len returns the number of online users.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Snapshot returns the online state of every user in the directory, in directory order.
func (p *Presence) Snapshot(ctx context.Context, users store.UserStore) ([]UserStatus, error) {
	directory, err := users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Map(directory, func(u *store.User, _ int) UserStatus {
		_, online := p.entries[u.ID]
		return UserStatus{ID: u.ID, Username: u.Username, Online: online}
	}), nil
}
