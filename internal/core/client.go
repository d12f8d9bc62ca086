package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// SessionState is the lifecycle stage of a connection.
type SessionState int32

const (
	// StateConnecting holds the raw handshake until a credential is verified.
	StateConnecting SessionState = iota
	// StateAuthenticated means the identity is known but the hub has not registered the client yet.
	StateAuthenticated
	// StateActive means the client is in the presence table and its commands are dispatched.
	StateActive
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DefaultBuffer is the queue size used when NewClient gets a non-positive buffer.
const DefaultBuffer = 64

// Client is a chat participant as seen by the core layer.
// Commands is consumed by a single dispatch goroutine once the client is active;
// Events is drained by the transport's write loop.
type Client struct {
	ID       string
	Commands chan Command
	Events   chan *Event

	identity  Identity
	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a connecting client with initialized queues.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Client{
		ID:       id,
		Commands: make(chan Command, buffer),
		Events:   make(chan *Event, buffer),
		done:     make(chan struct{}),
	}
}

// Authenticate binds the verified identity. It is only valid while connecting.
func (c *Client) Authenticate(identity Identity) error {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated)) {
		return fmt.Errorf("authenticate client %s: state is %s", c.ID, c.State())
	}
	c.identity = identity
	return nil
}

// Identity returns the identity bound by Authenticate.
func (c *Client) Identity() Identity {
	return c.identity
}

// State returns the current session state.
func (c *Client) State() SessionState {
	return SessionState(c.state.Load())
}

func (c *Client) activate() bool {
	return c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateActive))
}

// Done is closed once the client is disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Disconnect moves the client to its terminal state. Safe to call more than once.
func (c *Client) Disconnect() {
	c.state.Store(int32(StateDisconnected))
	c.closeOnce.Do(func() { close(c.done) })
}

// deliver pushes ev without blocking. It reports false when the client is
// gone or its queue is full.
func (c *Client) deliver(ev *Event) bool {
	if c.State() == StateDisconnected {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
