package realtime

import (
	"sort"
	"sync"
)

// Registry maps each online user to their live connections. A user has an
// entry if and only if at least one of their connections is live.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]*Conn // userID -> connID -> conn
	locks keyedMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]map[string]*Conn),
		locks: keyedMutex{locks: make(map[string]*refMutex)},
	}
}

// Add records the connection and reports whether it is the user's first.
func (r *Registry) Add(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[c.UserID]
	if !ok {
		set = make(map[string]*Conn)
		r.users[c.UserID] = set
	}
	set[c.ID] = c
	return !ok
}

// Remove drops the connection and reports whether it was the user's last.
// Removing an unknown connection is a no-op that returns false.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[c.UserID]
	if !ok {
		return false
	}
	if _, ok := set[c.ID]; !ok {
		return false
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(r.users, c.UserID)
		return true
	}
	return false
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineCount returns the number of users with a live connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.users {
		n += len(set)
	}
	return n
}

// OnlineUsers returns the IDs of online users, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connections returns a snapshot of the user's live connections.
func (r *Registry) Connections(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	conns := make([]*Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Conn
	for _, set := range r.users {
		for _, c := range set {
			conns = append(conns, c)
		}
	}
	return conns
}

// Lock serializes work for one user, such as an add or remove together
// with its presence side effects. Call the returned func to unlock.
func (r *Registry) Lock(userID string) func() {
	return r.locks.lock(userID)
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
