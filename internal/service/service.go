package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/internal/repository"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

// Broadcaster is the slice of the room router the service drives. The
// router is only notified after a mutation commits.
type Broadcaster interface {
	Publish(room realtime.RoomKey, t realtime.EventType, payload any, opts realtime.PublishOptions)
	BroadcastToUsers(userIDs []string, t realtime.EventType, payload any, opts realtime.PublishOptions)
	EvictUser(room realtime.RoomKey, userID string)
}

// EventSink receives canonical post-commit records (Kafka in production).
type EventSink interface {
	Publish(ctx context.Context, key, event string, payload any) error
}

// RecentCache is the hot tail of each conversation's history.
type RecentCache interface {
	Push(ctx context.Context, m *models.Message) error
	List(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error)
	Invalidate(ctx context.Context, conversationID string) error
}

type Deps struct {
	Messages      repository.Messages
	Conversations repository.Conversations
	Requests      repository.Requests
	Router        Broadcaster
	Bus           EventSink   // optional
	Recent        RecentCache // optional
	Log           *zap.SugaredLogger
}

type ChatService struct {
	msgs   repository.Messages
	convs  repository.Conversations
	reqs   repository.Requests
	router Broadcaster
	bus    EventSink
	recent RecentCache
	log    *zap.SugaredLogger
}

func New(d Deps) *ChatService {
	return &ChatService{
		msgs:   d.Messages,
		convs:  d.Conversations,
		reqs:   d.Requests,
		router: d.Router,
		bus:    d.Bus,
		recent: d.Recent,
		log:    d.Log,
	}
}

// memberConversation resolves a conversation and enforces membership.
func (s *ChatService) memberConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, apperr.Validation("conversation id is required")
	}
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.NotAMember("user is not a participant of this conversation")
	}
	return conv, nil
}

// emit publishes a post-commit record to the bus, fire-and-forget.
func (s *ChatService) emit(ctx context.Context, key, event string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, key, event, payload); err != nil {
		s.log.Warnw("event bus publish failed", "event", event, "err", err)
	}
}

func (s *ChatService) dropRecent(ctx context.Context, conversationID string) {
	if s.recent == nil {
		return
	}
	if err := s.recent.Invalidate(ctx, conversationID); err != nil {
		s.log.Warnw("recent cache invalidate failed", "conversation", conversationID, "err", err)
	}
}
