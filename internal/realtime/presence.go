package realtime

import (
	"context"
	"time"

	"github.com/pranab56/TradeLog-sub000/internal/models"
)

const (
	presenceOnline  = models.PresenceOnline
	presenceOffline = models.PresenceOffline
	presenceAway    = models.PresenceAway
)

// PresenceMirror receives best-effort write-throughs of presence
// transitions. Failures are logged, never fatal, and the mirror is
// allowed to lag the router's live session table.
type PresenceMirror interface {
	Set(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error
}

// announcePresence broadcasts a transition to every session of every
// other user and mirrors it asynchronously.
func (r *Router) announcePresence(userID string, status models.PresenceStatus) {
	payload := PresencePayload{UserID: userID, Status: status}
	env := Envelope{Type: EventPresenceChanged, Payload: payload}

	r.mu.RLock()
	for room, members := range r.rooms {
		if room.Kind != KindUser || room.ID == userID {
			continue
		}
		for _, s := range members {
			s.Deliver(env)
		}
	}
	r.mu.RUnlock()

	if r.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.mirror.Set(ctx, userID, status, time.Now().UTC()); err != nil {
			r.log.Warnw("presence mirror write failed", "user", userID, "err", err)
		}
	}()
}

// SetAway marks a still-connected user away; any reconnect or explicit
// online envelope clears it.
func (r *Router) SetAway(s Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	if r.counts[s.UserID()] == 0 {
		r.mu.Unlock()
		return
	}
	r.away[s.UserID()] = true
	r.mu.Unlock()
	r.announcePresence(s.UserID(), presenceAway)
}

func (r *Router) SetBack(s Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	if r.counts[s.UserID()] == 0 || !r.away[s.UserID()] {
		r.mu.Unlock()
		return
	}
	delete(r.away, s.UserID())
	r.mu.Unlock()
	r.announcePresence(s.UserID(), presenceOnline)
}

// Online reports whether the user has at least one live session.
func (r *Router) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[userID] > 0
}

// StatusOf returns the live status as the router sees it.
func (r *Router) StatusOf(userID string) models.PresenceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.counts[userID] == 0:
		return presenceOffline
	case r.away[userID]:
		return presenceAway
	default:
		return presenceOnline
	}
}

// SessionCount returns the user's live session count. Presence is
// reference-counted: a user with two open tabs stays online until both
// close.
func (r *Router) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[userID]
}
