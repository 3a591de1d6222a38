package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSession struct {
	id     string
	userID string
	full   bool

	mu  sync.Mutex
	got []Envelope
}

func newFakeSession(id, userID string) *fakeSession {
	return &fakeSession{id: id, userID: userID}
}

func (f *fakeSession) ID() string     { return f.id }
func (f *fakeSession) UserID() string { return f.userID }

func (f *fakeSession) Deliver(e Envelope) bool {
	if f.full {
		return false
	}
	f.mu.Lock()
	f.got = append(f.got, e)
	f.mu.Unlock()
	return true
}

func (f *fakeSession) events() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.got))
	copy(out, f.got)
	return out
}

func (f *fakeSession) count(t EventType) int {
	n := 0
	for _, e := range f.events() {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newTestRouter(t *testing.T, opts ...Option) *Router {
	t.Helper()
	r := NewRouter(zap.NewNop().Sugar(), nil, opts...)
	t.Cleanup(r.Close)
	return r
}

func TestPublishReachesRoomMembersOnly(t *testing.T) {
	r := newTestRouter(t)
	a := newFakeSession("s1", "alice")
	b := newFakeSession("s2", "bob")
	out := newFakeSession("s3", "carol")

	room := ConversationRoom("conv-1")
	r.Join(a, room)
	r.Join(b, room)
	r.Join(out, ConversationRoom("conv-2"))

	r.Publish(room, EventMessageSent, "hello", PublishOptions{})

	require.Equal(t, 1, a.count(EventMessageSent))
	require.Equal(t, 1, b.count(EventMessageSent))
	require.Empty(t, out.events())
}

func TestPublishExcludesSenderSession(t *testing.T) {
	r := newTestRouter(t)
	sender := newFakeSession("s1", "alice")
	peer := newFakeSession("s2", "bob")
	secondDevice := newFakeSession("s3", "alice")

	room := ConversationRoom("conv-1")
	r.Join(sender, room)
	r.Join(peer, room)
	r.Join(secondDevice, room)

	r.Publish(room, EventMessageSent, "hi", PublishOptions{ExcludeSessionID: sender.ID()})

	require.Empty(t, sender.events(), "publishing session holds the optimistic copy")
	require.Equal(t, 1, peer.count(EventMessageSent))
	require.Equal(t, 1, secondDevice.count(EventMessageSent),
		"the sender's other devices still need the event")
}

func TestEvictUserRemovesAllTheirSessions(t *testing.T) {
	r := newTestRouter(t)
	phone := newFakeSession("s1", "bob")
	laptop := newFakeSession("s2", "bob")
	peer := newFakeSession("s3", "alice")

	room := ConversationRoom("conv-1")
	r.Join(phone, room)
	r.Join(laptop, room)
	r.Join(peer, room)
	r.Join(phone, UserRoom("bob"))
	r.Join(laptop, UserRoom("bob"))

	r.EvictUser(room, "bob")
	r.Publish(room, EventMessageSent, "after eviction", PublishOptions{})

	require.Zero(t, phone.count(EventMessageSent))
	require.Zero(t, laptop.count(EventMessageSent))
	require.Equal(t, 1, peer.count(EventMessageSent))
	require.True(t, r.Online("bob"), "eviction from a conversation room leaves presence untouched")

	r.Publish(UserRoom("bob"), EventConversationUpsert, nil, PublishOptions{})
	require.Equal(t, 1, phone.count(EventConversationUpsert), "personal room still delivers")
}

func TestJoinIsIdempotent(t *testing.T) {
	r := newTestRouter(t)
	s := newFakeSession("s1", "alice")
	room := ConversationRoom("conv-1")

	r.Join(s, room)
	r.Join(s, room)
	r.Publish(room, EventMessageSent, nil, PublishOptions{})

	require.Equal(t, 1, s.count(EventMessageSent))
	require.Len(t, r.Members(room), 1)
}

func TestJoinRejectsEmptyRoomKey(t *testing.T) {
	r := newTestRouter(t)
	s := newFakeSession("s1", "alice")

	r.Join(s, ConversationRoom(""))
	r.Join(s, UserRoom(""))

	require.Empty(t, r.Members(ConversationRoom("")))
	require.False(t, r.Online("alice"))
}

func TestJoinRejectsForeignUserRoom(t *testing.T) {
	r := newTestRouter(t)
	s := newFakeSession("s1", "alice")

	r.Join(s, UserRoom("bob"))

	require.Empty(t, r.Members(UserRoom("bob")))
	require.False(t, r.Online("bob"))
}

func TestPublishIntoEmptyRoomIsNoop(t *testing.T) {
	r := newTestRouter(t)
	r.Publish(ConversationRoom("nobody-here"), EventMessageSent, nil, PublishOptions{})
	r.Publish(ConversationRoom(""), EventMessageSent, nil, PublishOptions{})
}

func TestSlowSessionDoesNotBlockOthers(t *testing.T) {
	r := newTestRouter(t)
	slow := newFakeSession("s1", "alice")
	slow.full = true
	ok := newFakeSession("s2", "bob")

	room := ConversationRoom("conv-1")
	r.Join(slow, room)
	r.Join(ok, room)

	r.Publish(room, EventMessageSent, nil, PublishOptions{})

	require.Empty(t, slow.events())
	require.Equal(t, 1, ok.count(EventMessageSent))
}

func TestDisconnectLeavesEveryRoom(t *testing.T) {
	r := newTestRouter(t)
	s := newFakeSession("s1", "alice")

	r.Join(s, UserRoom("alice"))
	r.Join(s, ConversationRoom("conv-1"))
	r.Join(s, ConversationRoom("conv-2"))

	r.Disconnect(s)

	require.Empty(t, r.Members(UserRoom("alice")))
	require.Empty(t, r.Members(ConversationRoom("conv-1")))
	require.Empty(t, r.Members(ConversationRoom("conv-2")))
	require.False(t, r.Online("alice"))
}

func TestBroadcastToUsers(t *testing.T) {
	r := newTestRouter(t)
	a := newFakeSession("s1", "alice")
	b := newFakeSession("s2", "bob")
	c := newFakeSession("s3", "carol")
	r.Join(a, UserRoom("alice"))
	r.Join(b, UserRoom("bob"))
	r.Join(c, UserRoom("carol"))

	r.BroadcastToUsers([]string{"alice", "bob"}, EventConversationUpsert, nil, PublishOptions{})

	require.Equal(t, 1, a.count(EventConversationUpsert))
	require.Equal(t, 1, b.count(EventConversationUpsert))
	require.Equal(t, 0, c.count(EventConversationUpsert))
}

func TestConcurrentJoinPublish(t *testing.T) {
	r := newTestRouter(t)
	room := ConversationRoom("conv-1")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newFakeSession(fmt.Sprintf("s%d", i), fmt.Sprintf("u%d", i))
			r.Join(s, room)
			r.Publish(room, EventMessageSent, i, PublishOptions{})
			r.Leave(s, room)
		}(i)
	}
	wg.Wait()

	require.Empty(t, r.Members(room))
}
