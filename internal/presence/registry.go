// Package presence implements the Presence Registry (spec §4.2): a
// process-wide index from user identity to the set of live
// connections, plus a reverse index from conversation to the set of
// currently online members, generalized from the teacher's
// internal/ws/hub.go (which kept two side-by-side chat/group room
// maps) into a single registry keyed by user id.
package presence

import (
	"sync"
	"time"
)

// Connection is the subset of a live duplex connection the registry
// needs: enough to address it for eviction and enumeration without
// depending on the websocket transport directly.
type Connection interface {
	ID() string
	UserID() int64
	ConnectedAt() time.Time
	Close(reason string)
	// Send enqueues an outbound event, applying the connection's own
	// backpressure/coalescing policy. event is an *eventbus.Event in
	// practice; kept as any here so this package never imports eventbus.
	Send(event any) bool
}

type Registry struct {
	mu          sync.RWMutex
	byUser      map[int64]map[string]Connection
	convMembers map[int64]map[int64]bool // conversationID -> userID -> subscribed
	userConvs   map[int64]map[int64]bool // userID -> conversationID -> subscribed (for cleanup on disconnect)
	maxPerUser  int
}

func New(maxPerUser int) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = 8
	}
	return &Registry{
		byUser:      make(map[int64]map[string]Connection),
		convMembers: make(map[int64]map[int64]bool),
		userConvs:   make(map[int64]map[int64]bool),
		maxPerUser:  maxPerUser,
	}
}

// Add registers a new connection for its user. If the user is
// already at the soft cap, the oldest connection is evicted and
// returned so the caller can close it with reason
// "too_many_connections" (spec §4.2).
func (r *Registry) Add(conn Connection) (evicted Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid := conn.UserID()
	conns, ok := r.byUser[uid]
	if !ok {
		conns = make(map[string]Connection)
		r.byUser[uid] = conns
	}

	if len(conns) >= r.maxPerUser {
		var oldest Connection
		for _, c := range conns {
			if oldest == nil || c.ConnectedAt().Before(oldest.ConnectedAt()) {
				oldest = c
			}
		}
		if oldest != nil {
			delete(conns, oldest.ID())
			evicted = oldest
		}
	}

	conns[conn.ID()] = conn
	return evicted
}

// Remove unregisters a connection. Subscriptions are kept per user, so
// the user's conversation subscriptions are dropped from the reverse
// index only when their last connection is removed.
func (r *Registry) Remove(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid := conn.UserID()
	if conns, ok := r.byUser[uid]; ok {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(r.byUser, uid)
			for convID := range r.userConvs[uid] {
				if members, ok := r.convMembers[convID]; ok {
					delete(members, uid)
					if len(members) == 0 {
						delete(r.convMembers, convID)
					}
				}
			}
			delete(r.userConvs, uid)
		}
	}
}

// Subscribe marks userID as an online member of conversationID,
// called once at handshake per conversation the user belongs to so
// the reverse index stays correct without a store round trip on
// every broadcast.
func (r *Registry) Subscribe(userID, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.convMembers[conversationID] == nil {
		r.convMembers[conversationID] = make(map[int64]bool)
	}
	r.convMembers[conversationID][userID] = true

	if r.userConvs[userID] == nil {
		r.userConvs[userID] = make(map[int64]bool)
	}
	r.userConvs[userID][conversationID] = true
}

func (r *Registry) Unsubscribe(userID, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.convMembers[conversationID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.convMembers, conversationID)
		}
	}
	if convs, ok := r.userConvs[userID]; ok {
		delete(convs, conversationID)
	}
}

// ConnectionsForUser returns every live connection for userID.
func (r *Registry) ConnectionsForUser(userID int64) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// OnlineMembers returns the user ids currently subscribed to
// conversationID (i.e. holding at least one live connection that has
// joined it).
func (r *Registry) OnlineMembers(conversationID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.convMembers[conversationID]
	out := make([]int64, 0, len(members))
	for uid := range members {
		out = append(out, uid)
	}
	return out
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}
