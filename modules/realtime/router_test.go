package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParticipants struct {
	members map[string]map[string]bool // conversationID -> userID
	err     error
}

func (f *fakeParticipants) FindParticipant(_ context.Context, conversationID, userID string) (*messaging.Participant, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.members[conversationID][userID] {
		return nil, store.ErrParticipantNotFound
	}
	return &messaging.Participant{ConversationID: conversationID, UserID: userID}, nil
}

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// drain returns every frame queued on the connection.
func drain(t *testing.T, c *Conn) []wireFrame {
	t.Helper()

	var frames []wireFrame
	for {
		select {
		case data := <-c.out:
			var f wireFrame
			require.NoError(t, json.Unmarshal(data, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func frameTypes(frames []wireFrame) []string {
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		types = append(types, f.Type)
	}
	return types
}

func newTestRouter(members map[string]map[string]bool) (*Router, *Registry) {
	registry := NewRegistry()
	return NewRouter(registry, &fakeParticipants{members: members}, nil, &mockLogger{}), registry
}

func TestRouter_JoinPersonalAndAdmin(t *testing.T) {
	router, _ := newTestRouter(nil)
	user := newTestConn("u1")
	admin := NewConn(messaging.Principal{UserID: "staff", IsAdmin: true}, nil)

	router.JoinPersonal(user)
	assert.False(t, router.JoinAdmin(user))
	router.JoinPersonal(admin)
	assert.True(t, router.JoinAdmin(admin))

	assert.Equal(t, []string{"user:u1"}, user.Rooms())
	assert.Equal(t, []string{"admin:room", "user:staff"}, admin.Rooms())
	assert.Len(t, router.Members(messaging.AdminRoom), 1)
	assert.Equal(t, 3, router.RoomCount())
}

func TestRouter_JoinConversation(t *testing.T) {
	router, _ := newTestRouter(map[string]map[string]bool{
		"c1": {"alice": true, "bob": true},
	})
	ctx := context.Background()

	alice := newTestConn("alice")
	mallory := newTestConn("mallory")

	assert.True(t, router.JoinConversation(ctx, alice, "c1"))
	assert.True(t, alice.InRoom("conversation:c1"))

	assert.False(t, router.JoinConversation(ctx, mallory, "c1"))
	assert.False(t, mallory.InRoom("conversation:c1"))
	assert.Empty(t, drain(t, mallory), "denied joins are silent")
	assert.Len(t, router.Members("conversation:c1"), 1)

	assert.False(t, router.JoinConversation(ctx, alice, ""))
}

func TestRouter_JoinConversationLookupError(t *testing.T) {
	registry := NewRegistry()
	router := NewRouter(registry, &fakeParticipants{err: errors.New("db down")}, nil, &mockLogger{})
	c := newTestConn("alice")

	assert.False(t, router.JoinConversation(context.Background(), c, "c1"))
	assert.Empty(t, c.Rooms())
	assert.Empty(t, drain(t, c))
}

func TestRouter_JoinClosedConnection(t *testing.T) {
	router, _ := newTestRouter(map[string]map[string]bool{"c1": {"alice": true}})
	c := newTestConn("alice")
	c.Close()

	assert.False(t, router.JoinConversation(context.Background(), c, "c1"))
	assert.Equal(t, 0, router.RoomCount())
}

func TestRouter_LeaveConversationAndLeaveAll(t *testing.T) {
	router, _ := newTestRouter(map[string]map[string]bool{"c1": {"alice": true}})
	c := newTestConn("alice")

	router.JoinPersonal(c)
	require.True(t, router.JoinConversation(context.Background(), c, "c1"))
	assert.Equal(t, 2, router.RoomCount())

	router.LeaveConversation(c, "c1")
	assert.False(t, c.InRoom("conversation:c1"))
	assert.Equal(t, 1, router.RoomCount(), "empty rooms are removed")

	// Leaving a room that was never joined is harmless.
	router.LeaveConversation(c, "c2")

	router.LeaveAll(c)
	assert.Empty(t, c.Rooms())
	assert.Equal(t, 0, router.RoomCount())
}

func TestRouter_BroadcastExcludesOrigin(t *testing.T) {
	router, _ := newTestRouter(nil)
	tab1 := newTestConn("alice")
	tab2 := newTestConn("alice")
	router.JoinPersonal(tab1)
	router.JoinPersonal(tab2)

	n := router.Broadcast("user:alice", EventNewMessage, map[string]string{"id": "m1"}, tab1)

	assert.Equal(t, 1, n)
	assert.Empty(t, drain(t, tab1))
	frames := drain(t, tab2)
	require.Len(t, frames, 1)
	assert.Equal(t, EventNewMessage, frames[0].Type)
	assert.JSONEq(t, `{"id":"m1"}`, string(frames[0].Payload))
}

func TestRouter_BroadcastRoomsDeliversOnce(t *testing.T) {
	router, _ := newTestRouter(map[string]map[string]bool{"c1": {"bob": true}})
	bob := newTestConn("bob")
	router.JoinPersonal(bob)
	require.True(t, router.JoinConversation(context.Background(), bob, "c1"))

	n := router.BroadcastRooms([]string{"user:bob", "conversation:c1", "user:nobody"}, EventNewMessage, struct{}{}, nil)

	assert.Equal(t, 1, n)
	assert.Len(t, drain(t, bob), 1)
}

func TestRouter_BroadcastAllExcludesUser(t *testing.T) {
	router, registry := newTestRouter(nil)
	alice1 := newTestConn("alice")
	alice2 := newTestConn("alice")
	bob := newTestConn("bob")
	for _, c := range []*Conn{alice1, alice2, bob} {
		registry.Add(c)
	}

	n := router.BroadcastAll(EventUserOnline, PresencePayload{UserID: "alice"}, "alice")

	assert.Equal(t, 1, n)
	assert.Empty(t, drain(t, alice1))
	assert.Empty(t, drain(t, alice2))
	assert.Equal(t, []string{EventUserOnline}, frameTypes(drain(t, bob)))
}

func TestRouter_SendToClosedConnection(t *testing.T) {
	router, _ := newTestRouter(nil)
	c := newTestConn("alice")
	c.Close()

	assert.False(t, router.SendTo(c, EventError, ErrorPayload{Error: "x"}))
	assert.Empty(t, drain(t, c))
}

func TestRouter_FullQueueDropsFrames(t *testing.T) {
	router, _ := newTestRouter(nil)
	c := newTestConn("alice")
	router.JoinPersonal(c)

	for i := 0; i < defaultQueueSize; i++ {
		require.Equal(t, 1, router.Broadcast("user:alice", EventNewMessage, i, nil))
	}
	assert.Equal(t, 0, router.Broadcast("user:alice", EventNewMessage, "overflow", nil))
	assert.Len(t, drain(t, c), defaultQueueSize)
}
