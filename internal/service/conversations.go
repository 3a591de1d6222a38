package service

import (
	"context"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/internal/repository"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

// CreateOrGetDirect resolves the direct conversation for an unordered
// pair, creating it if missing and reviving it from soft deletion for
// both sides. Safe under concurrent calls from both users.
func (s *ChatService) CreateOrGetDirect(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, apperr.Validation("both user ids are required")
	}
	if userA == userB {
		return nil, apperr.Validation("cannot open a conversation with yourself")
	}
	conv, created, err := s.convs.GetOrCreateDirect(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	payload := realtime.ConversationPayload{Conversation: conv}
	s.router.BroadcastToUsers(conv.Participants, realtime.EventConversationUpsert, payload, realtime.PublishOptions{})
	if created {
		s.emit(ctx, conv.ID, "conversation.created", conv)
	}
	return conv, nil
}

func (s *ChatService) CreateGroup(ctx context.Context, creatorID, name, description string, members []string) (*models.Conversation, error) {
	if creatorID == "" {
		return nil, apperr.Validation("creator id is required")
	}
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}
	members = models.Dedupe(append(members, creatorID))
	if len(members) < 2 {
		return nil, apperr.Validation("a group needs at least two participants")
	}
	conv := &models.Conversation{
		IsGroup:      true,
		Participants: members,
		Admins:       []string{creatorID},
		Name:         name,
		Description:  description,
		MutedBy:      []string{},
		BlockedBy:    []string{},
		PinnedBy:     []string{},
		DeletedBy:    []string{},
	}
	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, err
	}
	payload := realtime.ConversationPayload{Conversation: conv}
	s.router.BroadcastToUsers(conv.Participants, realtime.EventConversationUpsert, payload, realtime.PublishOptions{})
	s.emit(ctx, conv.ID, "conversation.created", conv)
	return conv, nil
}

func (s *ChatService) UpdateGroupMeta(ctx context.Context, conversationID, actorID string, name, description, groupImage *string) (*models.Conversation, error) {
	conv, err := s.memberConversation(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, apperr.Validation("not a group conversation")
	}
	if !conv.HasAdmin(actorID) {
		return nil, apperr.NotOwner("only a group admin can edit group metadata")
	}
	updated, err := s.convs.UpdateGroupMeta(ctx, conv.ID, name, description, groupImage)
	if err != nil {
		return nil, err
	}
	s.publishGroupUpdate(ctx, updated)
	return updated, nil
}

func (s *ChatService) AddMember(ctx context.Context, conversationID, actorID, userID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	conv, err := s.memberConversation(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, apperr.Validation("cannot add members to a direct conversation")
	}
	if !conv.HasAdmin(actorID) {
		return nil, apperr.NotOwner("only a group admin can add members")
	}
	updated, err := s.convs.AddMember(ctx, conv.ID, userID)
	if err != nil {
		return nil, err
	}
	s.publishGroupUpdate(ctx, updated)
	return updated, nil
}

// RemoveMember removes a participant; admins can remove anyone, a member
// can remove only themselves (leave).
func (s *ChatService) RemoveMember(ctx context.Context, conversationID, actorID, userID string) (*models.Conversation, error) {
	conv, err := s.memberConversation(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, apperr.Validation("cannot remove members from a direct conversation")
	}
	if actorID != userID && !conv.HasAdmin(actorID) {
		return nil, apperr.NotOwner("only a group admin can remove other members")
	}
	updated, err := s.convs.RemoveMember(ctx, conv.ID, userID)
	if err != nil {
		return nil, err
	}
	// live sessions of the removed user must stop receiving room events
	// immediately, not on their next reconnect
	s.router.EvictUser(realtime.ConversationRoom(conv.ID), userID)
	s.publishGroupUpdate(ctx, updated)
	// the removed user's sidebar needs the update too
	s.router.BroadcastToUsers([]string{userID}, realtime.EventGroupMetaUpdated,
		realtime.ConversationPayload{Conversation: updated}, realtime.PublishOptions{})
	return updated, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID string, limit int64) ([]*models.Conversation, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.convs.ListForUser(ctx, userID, limit)
}

func (s *ChatService) GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	return s.memberConversation(ctx, conversationID, userID)
}

// Per-user overlays. These change only the caller's view of the
// conversation, never the conversation itself.

func (s *ChatService) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	return s.setOverlay(ctx, conversationID, userID, repository.FieldMutedBy, muted)
}

func (s *ChatService) SetConversationPinned(ctx context.Context, conversationID, userID string, pinned bool) error {
	return s.setOverlay(ctx, conversationID, userID, repository.FieldPinnedBy, pinned)
}

func (s *ChatService) SetBlocked(ctx context.Context, conversationID, userID string, blocked bool) error {
	return s.setOverlay(ctx, conversationID, userID, repository.FieldBlockedBy, blocked)
}

// SoftDelete hides the conversation from one user. It still exists for
// everyone else and is revived when a request between the pair is
// accepted.
func (s *ChatService) SoftDelete(ctx context.Context, conversationID, userID, sessionID string) error {
	conv, err := s.memberConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.convs.AddToSet(ctx, conv.ID, repository.FieldDeletedBy, userID); err != nil {
		return err
	}
	s.router.BroadcastToUsers([]string{userID}, realtime.EventConversationDeleted,
		realtime.ConversationPayload{Conversation: conv},
		realtime.PublishOptions{ExcludeSessionID: sessionID})
	return nil
}

func (s *ChatService) setOverlay(ctx context.Context, conversationID, userID, field string, on bool) error {
	conv, err := s.memberConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if on {
		return s.convs.AddToSet(ctx, conv.ID, field, userID)
	}
	return s.convs.PullFromSet(ctx, conv.ID, field, userID)
}

func (s *ChatService) publishGroupUpdate(ctx context.Context, conv *models.Conversation) {
	payload := realtime.ConversationPayload{Conversation: conv}
	s.router.Publish(realtime.ConversationRoom(conv.ID), realtime.EventGroupMetaUpdated, payload, realtime.PublishOptions{})
	s.router.BroadcastToUsers(conv.Participants, realtime.EventGroupMetaUpdated, payload, realtime.PublishOptions{})
	s.emit(ctx, conv.ID, "conversation.updated", conv)
}
