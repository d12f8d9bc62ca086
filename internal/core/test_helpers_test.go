package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-server/internal/store"
	"github.com/vovakirdan/wirechat-server/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-server/internal/utils"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain returns whatever is queued on ch right now.
func drain(ch <-chan *Event) []*Event {
	var events []*Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countKind(events []*Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// settle waits until every command already queued for c has been dispatched
// and returns the events that arrived meanwhile. It relies on per-client
// arrival order: the group list answer comes last.
func settle(t *testing.T, c *Client) []*Event {
	t.Helper()

	c.Commands <- GetGroups{}
	timeout := time.After(2 * time.Second)
	var seen []*Event
	for {
		select {
		case ev := <-c.Events:
			if ev.Kind == EventGroupList {
				return seen
			}
			seen = append(seen, ev)
		case <-timeout:
			t.Fatalf("client %s did not settle", c.ID)
			return nil
		}
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startHub(t *testing.T, gateway store.Gateway) (*Hub, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(gateway, NewPresence(), nil)
	go hub.Run(ctx)
	return hub, ctx
}

func createUser(t *testing.T, st store.UserStore, name string) *store.User {
	t.Helper()

	u, err := st.CreateUser(context.Background(), name, name+"@example.com", "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func connect(t *testing.T, ctx context.Context, hub *Hub, user *store.User) *Client {
	t.Helper()

	c := NewClient(utils.NewID(), 64)
	if err := c.Authenticate(Identity{ID: user.ID, Username: user.Username}); err != nil {
		t.Fatalf("authenticate %s: %v", user.Username, err)
	}
	if err := hub.RegisterClient(ctx, c); err != nil {
		t.Fatalf("register %s: %v", user.Username, err)
	}
	return c
}
