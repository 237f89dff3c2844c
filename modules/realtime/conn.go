package realtime

import (
	"sort"
	"sync"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/gofiber/contrib/websocket"
	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/time/rate"
)

const defaultQueueSize = 256

var newConnID = mustConnIDGenerator()

func mustConnIDGenerator() func() string {
	gen, err := nanoid.Standard(16)
	if err != nil {
		panic(err)
	}
	return gen
}

// FrameWriter writes a single frame to the underlying socket.
type FrameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Conn is one live client connection for an admitted principal. Outbound
// frames go through a bounded queue drained by WritePump, so socket writes
// are never concurrent.
type Conn struct {
	ID       string
	UserID   string
	Username string
	IsAdmin  bool

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter

	mu    sync.Mutex
	rooms map[string]struct{}
}

// NewConn creates a connection for the principal. A nil limiter disables
// inbound rate limiting.
func NewConn(p messaging.Principal, limiter *rate.Limiter) *Conn {
	return &Conn{
		ID:       newConnID(),
		UserID:   p.UserID,
		Username: p.Username,
		IsAdmin:  p.IsAdmin,
		out:      make(chan []byte, defaultQueueSize),
		done:     make(chan struct{}),
		limiter:  limiter,
		rooms:    make(map[string]struct{}),
	}
}

// Send queues a frame. It returns false when the connection is closed or
// its queue is full; the frame is dropped in both cases.
func (c *Conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.out <- frame:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close marks the connection closed. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Allow reports whether one more inbound event fits the rate limit.
func (c *Conn) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// WritePump writes queued frames until the connection closes or a write
// fails. A failed write closes the connection.
func (c *Conn) WritePump(w FrameWriter) error {
	for {
		select {
		case <-c.done:
			return nil
		case frame := <-c.out:
			if err := w.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return err
			}
		}
	}
}

// Rooms returns the rooms the connection has joined, sorted.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// InRoom reports whether the connection has joined room.
func (c *Conn) InRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *Conn) addRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) removeRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}
