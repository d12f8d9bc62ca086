// Package storetest holds behaviour checks shared by every store.Store driver.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := map[string]func(*testing.T, store.Store){
		"UserLookups":               testUserLookups,
		"UserConflicts":             testUserConflicts,
		"UserDirectory":             testUserDirectory,
		"GroupCreate":               testGroupCreate,
		"AddMemberIsIdempotent":     testAddMemberIdempotent,
		"AddMemberUnknownGroup":     testAddMemberUnknownGroup,
		"DirectMessages":            testDirectMessages,
		"MarkDirectMessageRead":     testMarkDirectMessageRead,
		"GroupMessages":             testGroupMessages,
		"ReadByUnionIsOrderFree":    testReadByUnion,
		"ConcurrentReadersConverge": testConcurrentReaders,
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			fn(t, st)
		})
	}
}

func mustUser(t *testing.T, st store.Store, name string) *store.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), name, name+"@example.com", "hash-"+name)
	require.NoError(t, err)
	return u
}

func testUserLookups(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	require.NotEmpty(t, alice.ID)
	require.False(t, alice.CreatedAt.IsZero())

	byID, err := st.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)
	require.Equal(t, "hash-alice", byID.PasswordHash)

	byEmail, err := st.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, alice.ID, byEmail.ID)

	byName, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, alice.ID, byName.ID)

	_, err = st.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testUserConflicts(t *testing.T, st store.Store) {
	ctx := context.Background()
	mustUser(t, st, "alice")

	_, err := st.CreateUser(ctx, "alice", "other@example.com", "x")
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = st.CreateUser(ctx, "alice2", "alice@example.com", "x")
	require.ErrorIs(t, err, store.ErrConflict)
}

func testUserDirectory(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	carol := mustUser(t, st, "carol")

	all, err := st.ListUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID, bob.ID, carol.ID}, ids(all))

	others, err := st.ListUsersExcept(ctx, bob.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID, carol.ID}, ids(others))

	some, err := st.GetUsersByIDs(ctx, []string{carol.ID, "ghost", alice.ID})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{alice.ID, carol.ID}, ids(some))

	none, err := st.GetUsersByIDs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, none)
}

func testGroupCreate(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")

	group, err := st.CreateGroup(ctx, "team", alice.ID)
	require.NoError(t, err)
	require.NotEmpty(t, group.ID)
	require.Equal(t, []string{alice.ID}, group.Members)
	require.Equal(t, alice.ID, group.CreatedBy)

	loaded, err := st.GetGroupByID(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, "team", loaded.Name)
	require.Equal(t, []string{alice.ID}, loaded.Members)

	second, err := st.CreateGroup(ctx, "ops", alice.ID)
	require.NoError(t, err)

	groups, err := st.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, group.ID, groups[0].ID)
	require.Equal(t, second.ID, groups[1].ID)

	_, err = st.GetGroupByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testAddMemberIdempotent(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	group, err := st.CreateGroup(ctx, "team", alice.ID)
	require.NoError(t, err)

	for range 5 {
		updated, err := st.AddMember(ctx, group.ID, bob.ID)
		require.NoError(t, err)
		require.Equal(t, []string{alice.ID, bob.ID}, updated.Members)
	}

	updated, err := st.AddMember(ctx, group.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID, bob.ID}, updated.Members)
}

func testAddMemberUnknownGroup(t *testing.T, st store.Store) {
	alice := mustUser(t, st, "alice")
	_, err := st.AddMember(context.Background(), "missing", alice.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDirectMessages(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	carol := mustUser(t, st, "carol")

	send := func(from, to *store.User, body string) *store.DirectMessage {
		msg := &store.DirectMessage{SenderID: from.ID, ReceiverID: to.ID, Body: body}
		require.NoError(t, st.SaveDirectMessage(ctx, msg))
		require.NotEmpty(t, msg.ID)
		require.False(t, msg.CreatedAt.IsZero())
		return msg
	}

	first := send(alice, bob, "hi")
	send(carol, alice, "unrelated")
	second := send(bob, alice, "hey")
	third := send(alice, bob, "how are you")

	history, err := st.ListDirectMessages(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID, second.ID, third.ID}, directIDs(history))

	mirrored, err := st.ListDirectMessages(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, directIDs(history), directIDs(mirrored))

	loaded, err := st.GetDirectMessage(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, alice.ID, loaded.SenderID)
	require.Equal(t, bob.ID, loaded.ReceiverID)
	require.Equal(t, "hi", loaded.Body)
	require.False(t, loaded.Read)
}

func testMarkDirectMessageRead(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")

	msg := &store.DirectMessage{SenderID: alice.ID, ReceiverID: bob.ID, Body: "hi"}
	require.NoError(t, st.SaveDirectMessage(ctx, msg))

	updated, err := st.MarkDirectMessageRead(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, updated.Read)
	require.Equal(t, alice.ID, updated.SenderID)
	require.Equal(t, bob.ID, updated.ReceiverID)

	again, err := st.MarkDirectMessageRead(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, again.Read)

	_, err = st.MarkDirectMessageRead(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testGroupMessages(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	group, err := st.CreateGroup(ctx, "team", alice.ID)
	require.NoError(t, err)
	other, err := st.CreateGroup(ctx, "other", alice.ID)
	require.NoError(t, err)

	first := &store.GroupMessage{SenderID: alice.ID, GroupID: group.ID, Body: "one"}
	require.NoError(t, st.SaveGroupMessage(ctx, first))
	require.Equal(t, []string{alice.ID}, first.ReadBy)

	require.NoError(t, st.SaveGroupMessage(ctx, &store.GroupMessage{SenderID: alice.ID, GroupID: other.ID, Body: "elsewhere"}))

	second := &store.GroupMessage{SenderID: alice.ID, GroupID: group.ID, Body: "two"}
	require.NoError(t, st.SaveGroupMessage(ctx, second))

	history, err := st.ListGroupMessages(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, first.ID, history[0].ID)
	require.Equal(t, second.ID, history[1].ID)
	require.Equal(t, []string{alice.ID}, history[0].ReadBy)

	loaded, err := st.GetGroupMessage(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, "two", loaded.Body)

	_, err = st.AddGroupMessageReader(ctx, "missing", alice.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testReadByUnion(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	carol := mustUser(t, st, "carol")
	group, err := st.CreateGroup(ctx, "team", alice.ID)
	require.NoError(t, err)

	msg := &store.GroupMessage{SenderID: alice.ID, GroupID: group.ID, Body: "hello"}
	require.NoError(t, st.SaveGroupMessage(ctx, msg))

	for _, reader := range []string{carol.ID, bob.ID, carol.ID, alice.ID, bob.ID} {
		_, err := st.AddGroupMessageReader(ctx, msg.ID, reader)
		require.NoError(t, err)
	}

	loaded, err := st.GetGroupMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{alice.ID, bob.ID, carol.ID}, loaded.ReadBy)
}

func testConcurrentReaders(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	group, err := st.CreateGroup(ctx, "team", alice.ID)
	require.NoError(t, err)

	readers := make([]string, 0, 8)
	for _, name := range []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8"} {
		readers = append(readers, mustUser(t, st, name).ID)
	}

	msg := &store.GroupMessage{SenderID: alice.ID, GroupID: group.ID, Body: "race"}
	require.NoError(t, st.SaveGroupMessage(ctx, msg))

	var wg sync.WaitGroup
	errs := make(chan error, len(readers)*2)
	for _, reader := range readers {
		for range 2 {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := st.AddGroupMessageReader(ctx, msg.ID, id); err != nil {
					errs <- err
				}
			}(reader)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.False(t, errors.Is(err, store.ErrNotFound), "unexpected not found: %v", err)
		require.NoError(t, err)
	}

	loaded, err := st.GetGroupMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, append([]string{alice.ID}, readers...), loaded.ReadBy)
}

func ids(users []*store.User) []string {
	return lo.Map(users, func(u *store.User, _ int) string { return u.ID })
}

func directIDs(msgs []*store.DirectMessage) []string {
	return lo.Map(msgs, func(m *store.DirectMessage, _ int) string { return m.ID })
}
