package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

// recordedPublish is one fan-out the service asked for.
type recordedPublish struct {
	Room    realtime.RoomKey
	Users   []string
	Type    realtime.EventType
	Payload any
	Opts    realtime.PublishOptions
}

type recordedEviction struct {
	Room   realtime.RoomKey
	UserID string
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	sent    []recordedPublish
	evicted []recordedEviction
}

func (b *fakeBroadcaster) Publish(room realtime.RoomKey, t realtime.EventType, payload any, opts realtime.PublishOptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, recordedPublish{Room: room, Type: t, Payload: payload, Opts: opts})
}

func (b *fakeBroadcaster) BroadcastToUsers(userIDs []string, t realtime.EventType, payload any, opts realtime.PublishOptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, recordedPublish{Users: userIDs, Type: t, Payload: payload, Opts: opts})
}

func (b *fakeBroadcaster) EvictUser(room realtime.RoomKey, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evicted = append(b.evicted, recordedEviction{Room: room, UserID: userID})
}

func (b *fakeBroadcaster) evictions() []recordedEviction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]recordedEviction, len(b.evicted))
	copy(out, b.evicted)
	return out
}

func (b *fakeBroadcaster) byType(t realtime.EventType) []recordedPublish {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedPublish
	for _, p := range b.sent {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func (b *fakeBroadcaster) reset() {
	b.mu.Lock()
	b.sent = nil
	b.evicted = nil
	b.mu.Unlock()
}

type memMessages struct {
	mu   sync.Mutex
	rows map[string]*models.Message
}

func newMemMessages() *memMessages {
	return &memMessages{rows: make(map[string]*models.Message)}
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	c.ReadBy = append([]models.ReadReceipt(nil), m.ReadBy...)
	c.Reactions = append([]models.Reaction(nil), m.Reactions...)
	return &c
}

func (r *memMessages) Insert(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[m.ID]; ok {
		return apperr.Conflict("message already exists")
	}
	r.rows[m.ID] = copyMessage(m)
	return nil
}

func (r *memMessages) GetByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	return copyMessage(m), nil
}

func (r *memMessages) List(_ context.Context, conversationID string, limit int64, before time.Time) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.rows {
		if m.ConversationID != conversationID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, copyMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (r *memMessages) MarkRead(_ context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.rows {
		if m.ConversationID != conversationID || m.SenderID == readerID || m.ReadByUser(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, models.ReadReceipt{UserID: readerID, ReadAt: at})
		m.Status = models.StatusRead
		n++
	}
	return n, nil
}

func (r *memMessages) SetReaction(_ context.Context, messageID string, reaction models.Reaction) (*models.Message, error) {
	return r.update(messageID, func(m *models.Message) {
		m.Reactions = withoutReaction(m.Reactions, reaction.UserID)
		m.Reactions = append(m.Reactions, reaction)
	})
}

func (r *memMessages) RemoveReaction(_ context.Context, messageID, userID string) (*models.Message, error) {
	return r.update(messageID, func(m *models.Message) {
		m.Reactions = withoutReaction(m.Reactions, userID)
	})
}

func withoutReaction(rs []models.Reaction, userID string) []models.Reaction {
	out := rs[:0]
	for _, x := range rs {
		if x.UserID != userID {
			out = append(out, x)
		}
	}
	return out
}

func (r *memMessages) Edit(_ context.Context, messageID, content string, at time.Time) (*models.Message, error) {
	return r.update(messageID, func(m *models.Message) {
		m.Content = content
		m.IsEdited = true
		m.EditedAt = &at
	})
}

func (r *memMessages) Tombstone(_ context.Context, messageID string) (*models.Message, error) {
	return r.update(messageID, func(m *models.Message) {
		m.Content = models.DeletedMarker
		m.MediaURL = ""
		m.MediaName = ""
		m.IsDeleted = true
	})
}

func (r *memMessages) SetPinned(_ context.Context, messageID string, pinned bool) (*models.Message, error) {
	return r.update(messageID, func(m *models.Message) { m.IsPinned = pinned })
}

func (r *memMessages) update(id string, fn func(*models.Message)) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	fn(m)
	return copyMessage(m), nil
}

type memConversations struct {
	mu   sync.Mutex
	rows map[string]*models.Conversation
}

func newMemConversations() *memConversations {
	return &memConversations{rows: make(map[string]*models.Conversation)}
}

func copyConversation(c *models.Conversation) *models.Conversation {
	d := *c
	d.Participants = append([]string(nil), c.Participants...)
	d.Admins = append([]string(nil), c.Admins...)
	d.MutedBy = append([]string(nil), c.MutedBy...)
	d.BlockedBy = append([]string(nil), c.BlockedBy...)
	d.PinnedBy = append([]string(nil), c.PinnedBy...)
	d.DeletedBy = append([]string(nil), c.DeletedBy...)
	return &d
}

func (r *memConversations) Create(_ context.Context, c *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DirectKey != "" {
		for _, existing := range r.rows {
			if existing.DirectKey == c.DirectKey {
				return apperr.Conflict("conversation already exists")
			}
		}
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Participants = models.Dedupe(c.Participants)
	c.Admins = models.Dedupe(c.Admins)
	r.rows[c.ID] = copyConversation(c)
	return nil
}

func (r *memConversations) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	return copyConversation(c), nil
}

func (r *memConversations) GetOrCreateDirect(_ context.Context, userA, userB string) (*models.Conversation, bool, error) {
	key := models.DirectKeyFor(userA, userB)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.DirectKey == key {
			c.DeletedBy = without(c.DeletedBy, userA)
			c.DeletedBy = without(c.DeletedBy, userB)
			c.UpdatedAt = time.Now().UTC()
			return copyConversation(c), false, nil
		}
	}
	now := time.Now().UTC()
	c := &models.Conversation{
		ID:           uuid.NewString(),
		Participants: []string{userA, userB},
		MutedBy:      []string{},
		BlockedBy:    []string{},
		PinnedBy:     []string{},
		DeletedBy:    []string{},
		DirectKey:    key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.rows[c.ID] = c
	return copyConversation(c), true, nil
}

func without(set []string, v string) []string {
	out := set[:0]
	for _, s := range set {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func (r *memConversations) ListForUser(_ context.Context, userID string, limit int64) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Conversation
	for _, c := range r.rows {
		if !c.HasParticipant(userID) || c.DeletedFor(userID) {
			continue
		}
		out = append(out, copyConversation(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memConversations) TouchLastMessage(_ context.Context, conversationID, messageID string, at time.Time) error {
	_, err := r.update(conversationID, func(c *models.Conversation) {
		c.LastMessageID = messageID
		c.UpdatedAt = at
	})
	return err
}

func (r *memConversations) AddToSet(_ context.Context, conversationID, field, userID string) error {
	_, err := r.update(conversationID, func(c *models.Conversation) {
		set := r.overlay(c, field)
		for _, s := range *set {
			if s == userID {
				return
			}
		}
		*set = append(*set, userID)
	})
	return err
}

func (r *memConversations) PullFromSet(_ context.Context, conversationID, field, userID string) error {
	_, err := r.update(conversationID, func(c *models.Conversation) {
		set := r.overlay(c, field)
		*set = without(*set, userID)
	})
	return err
}

func (r *memConversations) overlay(c *models.Conversation, field string) *[]string {
	switch field {
	case "muted_by":
		return &c.MutedBy
	case "blocked_by":
		return &c.BlockedBy
	case "pinned_by":
		return &c.PinnedBy
	case "deleted_by":
		return &c.DeletedBy
	}
	panic("unknown overlay field " + field)
}

func (r *memConversations) UpdateGroupMeta(_ context.Context, conversationID string, name, description, groupImage *string) (*models.Conversation, error) {
	return r.update(conversationID, func(c *models.Conversation) {
		if name != nil {
			c.Name = *name
		}
		if description != nil {
			c.Description = *description
		}
		if groupImage != nil {
			c.GroupImage = *groupImage
		}
		c.UpdatedAt = time.Now().UTC()
	})
}

func (r *memConversations) AddMember(_ context.Context, conversationID, userID string) (*models.Conversation, error) {
	return r.update(conversationID, func(c *models.Conversation) {
		c.Participants = models.Dedupe(append(c.Participants, userID))
	})
}

func (r *memConversations) RemoveMember(_ context.Context, conversationID, userID string) (*models.Conversation, error) {
	return r.update(conversationID, func(c *models.Conversation) {
		c.Participants = without(c.Participants, userID)
		c.Admins = without(c.Admins, userID)
	})
}

func (r *memConversations) update(id string, fn func(*models.Conversation)) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	fn(c)
	return copyConversation(c), nil
}

type memRequests struct {
	mu   sync.Mutex
	rows map[string]*models.MessageRequest
}

func newMemRequests() *memRequests {
	return &memRequests{rows: make(map[string]*models.MessageRequest)}
}

func (r *memRequests) Create(_ context.Context, req *models.MessageRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.SenderID == req.SenderID && existing.ReceiverID == req.ReceiverID {
			return apperr.Conflict("request already exists for this pair")
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.Status = models.RequestPending
	req.CreatedAt = now
	req.UpdatedAt = now
	cp := *req
	r.rows[req.ID] = &cp
	return nil
}

func (r *memRequests) GetByID(_ context.Context, id string) (*models.MessageRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("request not found")
	}
	cp := *req
	return &cp, nil
}

func (r *memRequests) UpdateStatus(_ context.Context, id string, from, to models.RequestStatus) (*models.MessageRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("request not found")
	}
	if req.Status != from {
		return nil, apperr.Conflict("request is not " + string(from))
	}
	req.Status = to
	req.UpdatedAt = time.Now().UTC()
	cp := *req
	return &cp, nil
}

type testEnv struct {
	svc   *ChatService
	bcast *fakeBroadcaster
	msgs  *memMessages
	convs *memConversations
	reqs  *memRequests
}

func newTestEnv() *testEnv {
	env := &testEnv{
		bcast: &fakeBroadcaster{},
		msgs:  newMemMessages(),
		convs: newMemConversations(),
		reqs:  newMemRequests(),
	}
	env.svc = New(Deps{
		Messages:      env.msgs,
		Conversations: env.convs,
		Requests:      env.reqs,
		Router:        env.bcast,
		Log:           zap.NewNop().Sugar(),
	})
	return env
}

// direct seeds an alice/bob direct conversation.
func (e *testEnv) direct(userA, userB string) *models.Conversation {
	c, _, err := e.convs.GetOrCreateDirect(context.Background(), userA, userB)
	if err != nil {
		panic(err)
	}
	return c
}
