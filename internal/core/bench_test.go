package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/vovakirdan/wirechat-server/internal/store"
	"github.com/vovakirdan/wirechat-server/internal/store/sqlite"
)

func benchmarkGroupBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		b.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	hub := NewHub(st, NewPresence(), nil)
	go hub.Run(ctx)

	join := func(name string) (*store.User, *Client) {
		u, err := st.CreateUser(ctx, name, name+"@example.com", "hash")
		if err != nil {
			b.Fatalf("create user: %v", err)
		}
		c := NewClient(name, 256)
		if err := c.Authenticate(Identity{ID: u.ID, Username: u.Username}); err != nil {
			b.Fatalf("authenticate: %v", err)
		}
		if err := hub.RegisterClient(ctx, c); err != nil {
			b.Fatalf("register: %v", err)
		}
		return u, c
	}

	senderUser, sender := join("sender")
	group, err := st.CreateGroup(ctx, "bench", senderUser.ID)
	if err != nil {
		b.Fatalf("create group: %v", err)
	}
	hub.Rooms().Join(group.ID, sender)

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		_, c := join(fmt.Sprintf("client%d", i))
		hub.Rooms().Join(group.ID, c)
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range append(clients[1:], sender) {
		go func(cl *Client) {
			for {
				select {
				case <-cl.Events:
				case <-ctx.Done():
					return
				}
			}
		}(c)
	}
	drain(target.Events)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- SendGroupMessage{GroupID: group.ID, Message: "payload"}
		for ev := range target.Events {
			if ev.Kind == EventReceiveGroupMessage {
				break
			}
		}
	}
}

func BenchmarkGroupBroadcast_10(b *testing.B)  { benchmarkGroupBroadcast(b, 10) }
func BenchmarkGroupBroadcast_100(b *testing.B) { benchmarkGroupBroadcast(b, 100) }
func BenchmarkGroupBroadcast_500(b *testing.B) { benchmarkGroupBroadcast(b, 500) }
