package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pranab56/TradeLog-sub000/pkg/metrics"
)

// Session is one physical connection the router can deliver into.
// Deliver must never block; it reports false when the event was dropped.
type Session interface {
	ID() string
	UserID() string
	Deliver(Envelope) bool
}

type RoomKind string

const (
	KindConversation RoomKind = "conversation"
	KindUser         RoomKind = "user"
)

// RoomKey names a multicast group in one of the two disjoint namespaces:
// conversation rooms (sessions actively viewing a conversation) and user
// rooms (every session a user has open).
type RoomKey struct {
	Kind RoomKind
	ID   string
}

func ConversationRoom(id string) RoomKey { return RoomKey{Kind: KindConversation, ID: id} }
func UserRoom(id string) RoomKey         { return RoomKey{Kind: KindUser, ID: id} }

type PublishOptions struct {
	// ExcludeSessionID skips the publishing session, which already holds
	// the optimistic copy.
	ExcludeSessionID string
}

// Router owns the room membership tables. Nothing else mutates them.
// It never returns errors to publishers: publishing into an empty or
// unknown room is a no-op, and invalid joins are logged and ignored.
type Router struct {
	log    *zap.SugaredLogger
	mirror PresenceMirror

	mu     sync.RWMutex
	rooms  map[RoomKey]map[string]Session
	counts map[string]int // userID -> live session count
	away   map[string]bool

	typing *typingTable
}

func NewRouter(log *zap.SugaredLogger, mirror PresenceMirror, opts ...Option) *Router {
	r := &Router{
		log:    log,
		mirror: mirror,
		rooms:  make(map[RoomKey]map[string]Session),
		counts: make(map[string]int),
		away:   make(map[string]bool),
	}
	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}
	r.typing = newTypingTable(r, cfg.typingTTL)
	return r
}

// Join adds the session to a room. Idempotent. Empty or foreign room keys
// are rejected and logged, never silently joined to a wildcard room.
func (r *Router) Join(s Session, room RoomKey) {
	if s == nil || room.ID == "" {
		r.log.Warnw("rejecting join with empty room key", "kind", room.Kind)
		return
	}
	if room.Kind == KindUser && room.ID != s.UserID() {
		r.log.Warnw("rejecting join to foreign user room",
			"session", s.ID(), "user", s.UserID(), "room", room.ID)
		return
	}

	r.mu.Lock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Session)
		r.rooms[room] = members
	}
	if _, already := members[s.ID()]; already {
		r.mu.Unlock()
		return
	}
	members[s.ID()] = s

	wentOnline := false
	if room.Kind == KindUser {
		r.counts[s.UserID()]++
		if r.counts[s.UserID()] == 1 {
			wentOnline = true
			delete(r.away, s.UserID())
		}
	}
	r.mu.Unlock()

	if wentOnline {
		r.announcePresence(s.UserID(), presenceOnline)
	}
}

func (r *Router) Leave(s Session, room RoomKey) {
	if s == nil || room.ID == "" {
		return
	}
	r.mu.Lock()
	wentOffline := r.removeLocked(s, room)
	r.mu.Unlock()

	if wentOffline {
		r.announcePresence(s.UserID(), presenceOffline)
	}
}

// Disconnect removes the session from every room it joined.
func (r *Router) Disconnect(s Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	wentOffline := false
	for room, members := range r.rooms {
		if _, ok := members[s.ID()]; !ok {
			continue
		}
		if r.removeLocked(s, room) {
			wentOffline = true
		}
	}
	r.mu.Unlock()

	if wentOffline {
		r.announcePresence(s.UserID(), presenceOffline)
	}
}

// EvictUser removes every session of a user from one room. Used when a
// membership revocation must take effect on live connections, not just
// on the next join.
func (r *Router) EvictUser(room RoomKey, userID string) {
	if room.ID == "" || userID == "" {
		return
	}
	r.mu.Lock()
	wentOffline := false
	for _, s := range r.rooms[room] {
		if s.UserID() != userID {
			continue
		}
		if r.removeLocked(s, room) {
			wentOffline = true
		}
	}
	r.mu.Unlock()

	if wentOffline {
		r.announcePresence(userID, presenceOffline)
	}
}

// removeLocked drops the session from one room and reports whether the
// user's last session just left its user room.
func (r *Router) removeLocked(s Session, room RoomKey) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[s.ID()]; !ok {
		return false
	}
	delete(members, s.ID())
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if room.Kind != KindUser {
		return false
	}
	r.counts[s.UserID()]--
	if r.counts[s.UserID()] > 0 {
		return false
	}
	delete(r.counts, s.UserID())
	delete(r.away, s.UserID())
	return true
}

// Publish delivers the event to every current member of the room.
// Best-effort, at-most-once: sessions that are offline now never receive
// it retroactively; slow sessions have the event dropped rather than
// blocking the router.
func (r *Router) Publish(room RoomKey, t EventType, payload any, opts PublishOptions) {
	if room.ID == "" {
		r.log.Warnw("dropping publish with empty room key", "type", t)
		return
	}
	env := Envelope{Type: t, Payload: payload}

	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	if len(members) == 0 {
		return
	}
	metrics.EventsPublished.WithLabelValues(string(t)).Inc()
	for id, s := range members {
		if id == opts.ExcludeSessionID {
			continue
		}
		if !s.Deliver(env) {
			metrics.EventsDropped.Inc()
			r.log.Warnw("dropped event for slow session", "session", id, "type", t)
		}
	}
}

// BroadcastToUsers publishes once into each user's personal room. Used
// for side-channel notifications (sidebar, unread counts) distinct from
// the in-room live event.
func (r *Router) BroadcastToUsers(userIDs []string, t EventType, payload any, opts PublishOptions) {
	for _, uid := range userIDs {
		r.Publish(UserRoom(uid), t, payload, opts)
	}
}

// Members returns the session ids currently joined to a room.
func (r *Router) Members(room RoomKey) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	return out
}

func (r *Router) StartTyping(from Session, conversationID, userName string) {
	if from == nil || conversationID == "" {
		return
	}
	r.typing.start(from, conversationID, userName)
}

func (r *Router) StopTyping(from Session, conversationID, userName string) {
	if from == nil || conversationID == "" {
		return
	}
	r.typing.stop(from, conversationID, userName)
}

// Close releases router-owned timers.
func (r *Router) Close() {
	r.typing.closeAll()
}
