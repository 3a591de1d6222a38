package realtime

import (
	"sync"
	"time"
)

type typingKey struct {
	conversationID string
	userID         string
}

// typingTable clears typing indicators after a bounded timeout so a
// client that disconnects mid-typing never leaves peers with a stuck
// "is typing" state.
type typingTable struct {
	router *Router
	ttl    time.Duration

	mu     sync.Mutex
	timers map[typingKey]*time.Timer
	closed bool
}

func newTypingTable(r *Router, ttl time.Duration) *typingTable {
	return &typingTable{
		router: r,
		ttl:    ttl,
		timers: make(map[typingKey]*time.Timer),
	}
}

func (t *typingTable) start(from Session, conversationID, userName string) {
	payload := TypingPayload{
		ConversationID: conversationID,
		UserID:         from.UserID(),
		UserName:       userName,
	}
	t.router.Publish(ConversationRoom(conversationID), EventTypingStarted, payload,
		PublishOptions{ExcludeSessionID: from.ID()})

	key := typingKey{conversationID: conversationID, userID: from.UserID()}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.ttl)
		return
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.expire(key, payload)
	})
}

func (t *typingTable) stop(from Session, conversationID, userName string) {
	key := typingKey{conversationID: conversationID, userID: from.UserID()}
	t.mu.Lock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()

	t.router.Publish(ConversationRoom(conversationID), EventTypingStopped,
		TypingPayload{ConversationID: conversationID, UserID: from.UserID(), UserName: userName},
		PublishOptions{ExcludeSessionID: from.ID()})
}

func (t *typingTable) expire(key typingKey, payload TypingPayload) {
	t.mu.Lock()
	if _, ok := t.timers[key]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.timers, key)
	t.mu.Unlock()

	t.router.Publish(ConversationRoom(key.conversationID), EventTypingStopped, payload, PublishOptions{})
}

func (t *typingTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
