package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Type           models.MessageType
	Content        string
	MediaURL       string
	MediaName      string
	ReplyTo        string
	// SessionID identifies the sender's live session so fan-out can skip
	// the device that already holds the optimistic copy.
	SessionID string
}

// SendMessage persists the message, advances the conversation's last
// message pointer, and only then notifies the router, so every client
// that receives the live event can rely on it being durable.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if in.SenderID == "" {
		return nil, apperr.Validation("sender id is required")
	}
	if in.Type == "" {
		in.Type = models.MessageTypeText
	}
	if !in.Type.Valid() {
		return nil, apperr.Validation("unknown message type")
	}
	if in.Type == models.MessageTypeText && in.Content == "" {
		return nil, apperr.Validation("content is required for text messages")
	}
	if in.Type != models.MessageTypeText && in.Type != models.MessageTypeSystem && in.MediaURL == "" {
		return nil, apperr.Validation("media_url is required for media messages")
	}

	conv, err := s.memberConversation(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup && len(conv.BlockedBy) > 0 {
		return nil, apperr.NotAMember("conversation is blocked")
	}
	if in.ReplyTo != "" {
		target, err := s.msgs.GetByID(ctx, in.ReplyTo)
		if err != nil {
			if apperr.IsCode(err, apperr.CodeNotFound) {
				return nil, apperr.Validation("reply target not found")
			}
			return nil, err
		}
		if target.ConversationID != conv.ID {
			return nil, apperr.Validation("reply target is in another conversation")
		}
	}

	now := time.Now().UTC()
	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Type:           in.Type,
		Content:        in.Content,
		MediaURL:       in.MediaURL,
		MediaName:      in.MediaName,
		Status:         models.StatusSent,
		ReadBy:         []models.ReadReceipt{},
		ReplyTo:        in.ReplyTo,
		Reactions:      []models.Reaction{},
		CreatedAt:      now,
	}
	if err := s.msgs.Insert(ctx, m); err != nil {
		return nil, err
	}
	if err := s.convs.TouchLastMessage(ctx, conv.ID, m.ID, now); err != nil {
		s.log.Warnw("touch last message failed", "conversation", conv.ID, "err", err)
	}
	if s.recent != nil {
		if err := s.recent.Push(ctx, m); err != nil {
			s.log.Warnw("recent cache push failed", "conversation", conv.ID, "err", err)
		}
	}

	payload := realtime.MessagePayload{Message: m, Participants: conv.Participants}
	opts := realtime.PublishOptions{ExcludeSessionID: in.SessionID}
	s.router.Publish(realtime.ConversationRoom(conv.ID), realtime.EventMessageSent, payload, opts)
	s.router.BroadcastToUsers(conv.Participants, realtime.EventMessageSent, payload, opts)
	s.emit(ctx, m.ID, "message.sent", m)
	return m, nil
}

// MarkRead appends a receipt to every unread message in the conversation
// not authored by the reader. Idempotent: re-invoking changes nothing and
// re-broadcasts nothing.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, readerID, sessionID string) (int64, error) {
	conv, err := s.memberConversation(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	n, err := s.msgs.MarkRead(ctx, conv.ID, readerID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	s.dropRecent(ctx, conv.ID)
	payload := realtime.ReadReceiptPayload{ConversationID: conv.ID, ReaderID: readerID}
	s.router.Publish(realtime.ConversationRoom(conv.ID), realtime.EventReadReceiptUpdated, payload,
		realtime.PublishOptions{ExcludeSessionID: sessionID})
	s.emit(ctx, conv.ID, "message.read", payload)
	return n, nil
}

// React upserts the user's reaction: re-reacting replaces the previous
// one, so a user holds at most one active reaction per message.
func (s *ChatService) React(ctx context.Context, messageID, userID, emoji, sessionID string) (*models.Message, error) {
	if emoji == "" {
		return nil, apperr.Validation("emoji is required")
	}
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, apperr.Validation("cannot react to a deleted message")
	}
	conv, err := s.memberConversation(ctx, m.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	updated, err := s.msgs.SetReaction(ctx, messageID, models.Reaction{UserID: userID, Emoji: emoji})
	if err != nil {
		return nil, err
	}
	s.dropRecent(ctx, conv.ID)
	payload := realtime.MessagePayload{Message: updated, Participants: conv.Participants}
	s.router.Publish(realtime.ConversationRoom(conv.ID), realtime.EventMessageReacted, payload,
		realtime.PublishOptions{ExcludeSessionID: sessionID})
	s.emit(ctx, updated.ID, "message.reacted", updated)
	return updated, nil
}

func (s *ChatService) Unreact(ctx context.Context, messageID, userID, sessionID string) (*models.Message, error) {
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conv, err := s.memberConversation(ctx, m.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	updated, err := s.msgs.RemoveReaction(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	s.dropRecent(ctx, conv.ID)
	payload := realtime.MessagePayload{Message: updated, Participants: conv.Participants}
	s.router.Publish(realtime.ConversationRoom(conv.ID), realtime.EventMessageReacted, payload,
		realtime.PublishOptions{ExcludeSessionID: sessionID})
	return updated, nil
}

func (s *ChatService) EditMessage(ctx context.Context, messageID, senderID, newContent, sessionID string) (*models.Message, error) {
	if newContent == "" {
		return nil, apperr.Validation("content is required")
	}
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != senderID {
		return nil, apperr.NotOwner("only the sender can edit a message")
	}
	if m.IsDeleted {
		return nil, apperr.Validation("cannot edit a deleted message")
	}
	conv, err := s.convs.GetByID(ctx, m.ConversationID)
	if err != nil {
		return nil, err
	}
	updated, err := s.msgs.Edit(ctx, messageID, newContent, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.dropRecent(ctx, conv.ID)
	payload := realtime.MessagePayload{Message: updated, Participants: conv.Participants}
	opts := realtime.PublishOptions{ExcludeSessionID: sessionID}
	s.router.Publish(realtime.ConversationRoom(conv.ID), realtime.EventMessageEdited, payload, opts)
	s.router.BroadcastToUsers(conv.Participants, realtime.EventMessageEdited, payload, opts)
	s.emit(ctx, updated.ID, "message.edited", updated)
	return updated, nil
}

// DeleteMessage tombstones: the row stays, content becomes the deletion
// marker. There is no per-user delete; the tombstone is global.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, senderID, sessionID string) (*models.Message, error) {
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != senderID {
		return nil, apperr.NotOwner("only the sender can delete a message")
	}
	if m.IsDeleted {
		return m, nil
	}
	conv, err := s.convs.GetByID(ctx, m.ConversationID)
	if err != nil {
		return nil, err
	}
	updated, err := s.msgs.Tombstone(ctx, messageID)
	if err != nil {
		return nil, err
	}
	s.dropRecent(ctx, conv.ID)
	payload := realtime.MessagePayload{Message: updated, Participants: conv.Participants}
	opts := realtime.PublishOptions{ExcludeSessionID: sessionID}
	s.router.Publish(realtime.ConversationRoom(conv.ID), realtime.EventMessageDeleted, payload, opts)
	s.router.BroadcastToUsers(conv.Participants, realtime.EventMessageDeleted, payload, opts)
	s.emit(ctx, updated.ID, "message.deleted", updated)
	return updated, nil
}

// PinMessage toggles the pin flag; any participant may pin.
func (s *ChatService) PinMessage(ctx context.Context, messageID, userID string, pinned bool, sessionID string) (*models.Message, error) {
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conv, err := s.memberConversation(ctx, m.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	updated, err := s.msgs.SetPinned(ctx, messageID, pinned)
	if err != nil {
		return nil, err
	}
	s.dropRecent(ctx, conv.ID)
	payload := realtime.MessagePayload{Message: updated, Participants: conv.Participants}
	s.router.Publish(realtime.ConversationRoom(conv.ID), realtime.EventMessageEdited, payload,
		realtime.PublishOptions{ExcludeSessionID: sessionID})
	return updated, nil
}

// GetMessages returns chronological history, newest page first via
// `before`. The recent cache answers the common open-the-chat fetch.
func (s *ChatService) GetMessages(ctx context.Context, conversationID, userID string, limit int64, before time.Time) ([]*models.Message, error) {
	conv, err := s.memberConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if before.IsZero() && s.recent != nil {
		cached, err := s.recent.List(ctx, conv.ID, limit)
		if err != nil {
			s.log.Warnw("recent cache read failed", "conversation", conv.ID, "err", err)
		} else if int64(len(cached)) == limit {
			return cached, nil
		}
	}
	return s.msgs.List(ctx, conv.ID, limit, before)
}
