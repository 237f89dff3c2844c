package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/go-monolith/mono/pkg/types"
)

// ParticipantFinder checks conversation membership.
type ParticipantFinder interface {
	FindParticipant(ctx context.Context, conversationID, userID string) (*messaging.Participant, error)
}

// Router manages room membership and fans events out to room members.
type Router struct {
	mu           sync.RWMutex
	rooms        map[string]map[*Conn]struct{}
	registry     *Registry
	participants ParticipantFinder
	metrics      *Metrics
	logger       types.Logger
}

// NewRouter creates a new Router.
func NewRouter(registry *Registry, participants ParticipantFinder, metrics *Metrics, logger types.Logger) *Router {
	return &Router{
		rooms:        make(map[string]map[*Conn]struct{}),
		registry:     registry,
		participants: participants,
		metrics:      metrics,
		logger:       logger,
	}
}

// JoinPersonal joins the connection to its user's personal room.
func (r *Router) JoinPersonal(c *Conn) {
	r.join(c, messaging.PersonalRoom(c.UserID))
}

// JoinAdmin joins admin connections to the admin room and reports whether
// the join happened.
func (r *Router) JoinAdmin(c *Conn) bool {
	if !c.IsAdmin {
		return false
	}
	return r.join(c, messaging.AdminRoom)
}

// JoinConversation joins the connection to a conversation room if its user
// is a participant. Denials and lookup failures are silent.
func (r *Router) JoinConversation(ctx context.Context, c *Conn, conversationID string) bool {
	if conversationID == "" {
		return false
	}
	if _, err := r.participants.FindParticipant(ctx, conversationID, c.UserID); err != nil {
		r.logger.Debug("Conversation join denied",
			"userID", c.UserID,
			"connID", c.ID,
			"conversationID", conversationID,
			"error", err)
		return false
	}
	return r.join(c, messaging.ConversationRoom(conversationID))
}

// LeaveConversation removes the connection from a conversation room.
func (r *Router) LeaveConversation(c *Conn, conversationID string) {
	r.leave(c, messaging.ConversationRoom(conversationID))
}

// LeaveAll removes the connection from every room it joined.
func (r *Router) LeaveAll(c *Conn) {
	for _, room := range c.Rooms() {
		r.leave(c, room)
	}
}

func (r *Router) join(c *Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A handler may finish after its connection went away.
	if c.Closed() {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	c.addRoom(room)
	return true
}

func (r *Router) leave(c *Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	c.removeRoom(room)
}

// Broadcast delivers the event to every member of room except exclude and
// returns how many connections accepted it.
func (r *Router) Broadcast(room, event string, payload any, exclude *Conn) int {
	return r.BroadcastRooms([]string{room}, event, payload, exclude)
}

// BroadcastRooms delivers the event once to every connection that is a
// member of at least one of rooms, except exclude.
func (r *Router) BroadcastRooms(rooms []string, event string, payload any, exclude *Conn) int {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", "event", event, "error", err)
		return 0
	}

	seen := make(map[*Conn]struct{})
	var targets []*Conn
	r.mu.RLock()
	for _, room := range rooms {
		for c := range r.rooms[room] {
			if c == exclude {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, event, frame)
}

// BroadcastAll delivers the event to every live connection except those of
// excludeUserID.
func (r *Router) BroadcastAll(event string, payload any, excludeUserID string) int {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", "event", event, "error", err)
		return 0
	}

	var targets []*Conn
	for _, c := range r.registry.All() {
		if c.UserID != excludeUserID {
			targets = append(targets, c)
		}
	}
	return r.deliver(targets, event, frame)
}

// SendTo delivers the event to a single connection.
func (r *Router) SendTo(c *Conn, event string, payload any) bool {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", "event", event, "error", err)
		return false
	}
	return r.deliver([]*Conn{c}, event, frame) == 1
}

func (r *Router) deliver(targets []*Conn, event string, frame []byte) int {
	delivered := 0
	for _, c := range targets {
		if c.Send(frame) {
			delivered++
			continue
		}
		if !c.Closed() {
			r.logger.Warn("Outbound queue full, dropping event", "userID", c.UserID, "connID", c.ID, "event", event)
		}
		r.metrics.droppedFrame(event)
	}
	r.metrics.sentFrames(event, delivered)
	return delivered
}

// Members returns a snapshot of the connections in room.
func (r *Router) Members(room string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Conn, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		members = append(members, c)
	}
	return members
}

// RoomCount returns the number of non-empty rooms.
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(Frame{Type: event, Payload: payload})
}
