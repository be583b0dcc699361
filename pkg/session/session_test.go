package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/mucclaw/pkg/affiliation"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

type staticRoster affiliation.Set

func (s staticRoster) Snapshot() affiliation.Set { return affiliation.Set(s) }

func TestSentRegistry_BoundedOldestFirst(t *testing.T) {
	r := NewSentRegistry(3)
	for _, id := range []string{"a", "b", "c"} {
		r.Record(id)
	}
	assert.True(t, r.Contains("a"))

	r.Record("d")
	assert.False(t, r.Contains("a"))
	assert.True(t, r.Contains("b"))
	assert.True(t, r.Contains("d"))
	assert.Equal(t, 3, r.Len())

	r.Record("b")
	r.Record("e")
	assert.False(t, r.Contains("b"))
	assert.True(t, r.Contains("c"))
}

func TestSentRegistry_IgnoresEmpty(t *testing.T) {
	r := NewSentRegistry(0)
	assert.Equal(t, DefaultSentCapacity, r.Capacity())
	r.Record("")
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Contains(""))
}

func TestAuthorizer(t *testing.T) {
	roster := staticRoster{Members: []string{"carol@example.org"}}

	a := NewAuthorizer([]string{"alice@example.org", "room@muc.example.org/Bob"}, false, roster, nil)
	assert.True(t, a.IsAllowed("alice@example.org"))
	assert.True(t, a.IsAllowed("alice@example.org/phone"))
	assert.True(t, a.IsAllowed("room@muc.example.org/Bob"))
	assert.False(t, a.IsAllowed("room@muc.example.org/Mallory"))
	assert.False(t, a.IsAllowed("carol@example.org/laptop"))
	assert.False(t, a.IsAllowed(""))

	a = NewAuthorizer(nil, true, roster, nil)
	assert.True(t, a.IsAllowed("carol@example.org/laptop"))
	assert.False(t, a.IsAllowed("alice@example.org"))
}

func TestAuthorizer_EmptyAdmitsNobody(t *testing.T) {
	a := NewAuthorizer(nil, false, nil, nil)
	assert.False(t, a.IsAllowed("alice@example.org"))
}

func occupant(nick, realJID string) stanza.Presence {
	return stanza.Presence{
		From: "room@muc.example.org/" + nick,
		Item: &stanza.UserItem{JID: realJID, Affiliation: "member", Role: "participant"},
	}
}

func TestAuthorizer_RoomOccupantsByRealJID(t *testing.T) {
	roster := staticRoster{Members: []string{"carol@example.org"}}
	occ := NewOccupants("room@muc.example.org")
	occ.Observe(occupant("carol", "carol@example.org/tablet"))
	occ.Observe(occupant("alice", "alice@example.org/phone"))
	occ.Observe(occupant("mallory", "mallory@evil.example/pc"))

	a := NewAuthorizer(nil, true, roster, occ)
	assert.True(t, a.IsAllowed("room@muc.example.org/carol"))
	assert.True(t, a.IsAllowed("carol@example.org/laptop"))
	assert.False(t, a.IsAllowed("room@muc.example.org/mallory"))
	assert.False(t, a.IsAllowed("room@muc.example.org/ghost"))
	assert.False(t, a.IsAllowed("room@muc.example.org/alice"))

	a = NewAuthorizer([]string{"alice@example.org"}, false, roster, occ)
	assert.True(t, a.IsAllowed("room@muc.example.org/alice"))
	assert.False(t, a.IsAllowed("room@muc.example.org/carol"))
}

func TestAuthorizer_RoomNickIsNotTheRoster(t *testing.T) {
	// The room JID itself is never a roster member, so a bare match on the
	// occupant JID must not stand in for the real JID.
	roster := staticRoster{Members: []string{"room@muc.example.org"}}
	occ := NewOccupants("room@muc.example.org")

	a := NewAuthorizer(nil, true, roster, occ)
	assert.False(t, a.IsAllowed("room@muc.example.org/anyone"))
}

func TestOccupants_Observe(t *testing.T) {
	occ := NewOccupants("Room@MUC.example.org")

	occ.Observe(occupant("carol", "Carol@Example.org/tablet"))
	got, ok := occ.RealJID("room@muc.example.org/carol")
	require.True(t, ok)
	assert.Equal(t, "carol@example.org", got)

	// Presence from outside the room and from the room itself is ignored.
	occ.Observe(stanza.Presence{From: "other@muc.example.org/carol", Item: &stanza.UserItem{JID: "eve@example.org"}})
	occ.Observe(stanza.Presence{From: "room@muc.example.org", Item: &stanza.UserItem{JID: "eve@example.org"}})
	occ.Observe(stanza.Presence{From: "room@muc.example.org/carol", Type: "subscribe"})
	assert.Equal(t, 1, occ.Len())

	// A later presence without a real JID withdraws the mapping.
	occ.Observe(stanza.Presence{From: "room@muc.example.org/carol", Item: &stanza.UserItem{Role: "participant"}})
	_, ok = occ.RealJID("room@muc.example.org/carol")
	assert.False(t, ok)

	occ.Observe(occupant("dave", "dave@example.org"))
	occ.Observe(stanza.Presence{From: "room@muc.example.org/dave", Type: stanza.PresenceUnavailable})
	assert.Equal(t, 0, occ.Len())

	occ.Observe(occupant("erin", "erin@example.org"))
	occ.Reset()
	assert.Equal(t, 0, occ.Len())
	assert.True(t, occ.InRoom("room@muc.example.org/erin"))
	assert.False(t, NewOccupants("").InRoom("room@muc.example.org/erin"))
}

func TestContext_Sender(t *testing.T) {
	c := New(Options{Self: "bot@example.org/mucclaw", Room: "room@muc.example.org", Nick: "mucclaw"}, nil)
	c.Occupants.Observe(occupant("alice", "alice@example.org/phone"))

	got, ok := c.Sender(stanza.Message{From: "room@muc.example.org/alice", Type: stanza.TypeGroupchat})
	require.True(t, ok)
	assert.Equal(t, "alice@example.org", got)

	_, ok = c.Sender(stanza.Message{From: "room@muc.example.org/stranger", Type: stanza.TypeGroupchat})
	assert.False(t, ok)

	got, ok = c.Sender(stanza.Message{From: "bob@example.org/laptop", Type: stanza.TypeChat})
	require.True(t, ok)
	assert.Equal(t, "bob@example.org", got)

	_, ok = c.Sender(stanza.Message{})
	assert.False(t, ok)
}

func TestContext_ConversationKey(t *testing.T) {
	c := New(Options{Self: "bot@example.org/mucclaw", Room: "room@muc.example.org", Nick: "mucclaw"}, nil)

	assert.Equal(t, "room@muc.example.org", c.ConversationKey(stanza.Message{From: "room@muc.example.org/alice", Type: stanza.TypeGroupchat}))
	assert.Equal(t, "alice@example.org/phone", c.ConversationKey(stanza.Message{From: "alice@example.org/phone", Type: stanza.TypeChat}))
	assert.Equal(t, "room@muc.example.org/alice", c.ConversationKey(stanza.Message{From: "room@muc.example.org/alice", Type: stanza.TypeChat}))

	assert.True(t, c.IsOwnOccupant("room@muc.example.org/mucclaw"))
	assert.False(t, c.IsOwnOccupant("room@muc.example.org/alice"))
	assert.Empty(t, c.RosterSnapshot().All())
	assert.Equal(t, 20, c.History.MaxLength())
}

func TestBound(t *testing.T) {
	ctx, cancel := Bound(t.Context(), 0)
	_, has := ctx.Deadline()
	assert.False(t, has)
	cancel()
	assert.Error(t, ctx.Err())

	ctx, cancel = Bound(t.Context(), time.Minute)
	defer cancel()
	_, has = ctx.Deadline()
	assert.True(t, has)
}

func TestLanes_SerialPerKeyParallelAcrossKeys(t *testing.T) {
	lanes := NewLanes(t.Context(), 0)
	defer lanes.Close()

	var (
		mu    sync.Mutex
		order = map[string][]int{}
		busy  = map[string]*atomic.Int32{"a": {}, "b": {}}
		wg    sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			require.NoError(t, lanes.Dispatch(key, func(context.Context) {
				defer wg.Done()
				if busy[key].Add(1) != 1 {
					t.Errorf("lane %s ran two jobs at once", key)
				}
				time.Sleep(time.Millisecond)
				mu.Lock()
				order[key] = append(order[key], i)
				mu.Unlock()
				busy[key].Add(-1)
			}))
		}
	}
	wg.Wait()

	for _, key := range []string{"a", "b"} {
		for i, v := range order[key] {
			assert.Equal(t, i, v, fmt.Sprintf("lane %s out of order", key))
		}
	}
	assert.Equal(t, 2, lanes.Len())
}

func TestLanes_CloseRejectsDispatch(t *testing.T) {
	lanes := NewLanes(t.Context(), 0)
	lanes.Close()
	lanes.Close()
	assert.ErrorIs(t, lanes.Dispatch("a", func(context.Context) {}), ErrLanesClosed)
}

func TestLanes_ContextCancelStopsLanes(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	lanes := NewLanes(ctx, 0)

	started := make(chan struct{})
	require.NoError(t, lanes.Dispatch("a", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started
	cancel()

	done := make(chan struct{})
	go func() { lanes.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lanes did not stop")
	}
}

func TestLanes_ReapsIdleLanes(t *testing.T) {
	lanes := NewLanes(t.Context(), 20*time.Millisecond)
	defer lanes.Close()

	ran := make(chan string, 4)
	for _, key := range []string{"a", "b"} {
		require.NoError(t, lanes.Dispatch(key, func(context.Context) { ran <- key }))
	}
	<-ran
	<-ran
	assert.Equal(t, 2, lanes.Len())

	require.Eventually(t, func() bool { return lanes.Len() == 0 }, time.Second, 5*time.Millisecond)

	// A reaped key gets a fresh lane.
	require.NoError(t, lanes.Dispatch("a", func(context.Context) { ran <- "a" }))
	select {
	case key := <-ran:
		assert.Equal(t, "a", key)
	case <-time.After(time.Second):
		t.Fatal("job on a reaped key never ran")
	}
}

func TestLanes_BusyLaneIsNotReaped(t *testing.T) {
	lanes := NewLanes(t.Context(), 10*time.Millisecond)
	defer lanes.Close()

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, lanes.Dispatch("a", func(context.Context) {
			time.Sleep(5 * time.Millisecond)
			count.Add(1)
		}))
	}
	require.Eventually(t, func() bool { return count.Load() == 10 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return lanes.Len() == 0 }, time.Second, 5*time.Millisecond)
}
