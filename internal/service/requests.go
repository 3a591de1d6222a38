package service

import (
	"context"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

func (s *ChatService) SendRequest(ctx context.Context, senderID, receiverID string) (*models.MessageRequest, error) {
	if senderID == "" || receiverID == "" {
		return nil, apperr.Validation("sender and receiver ids are required")
	}
	if senderID == receiverID {
		return nil, apperr.Validation("cannot send a request to yourself")
	}
	req := &models.MessageRequest{SenderID: senderID, ReceiverID: receiverID}
	if err := s.reqs.Create(ctx, req); err != nil {
		return nil, err
	}
	s.router.BroadcastToUsers([]string{receiverID}, realtime.EventMessageRequest,
		realtime.RequestPayload{MessageRequest: req}, realtime.PublishOptions{})
	s.emit(ctx, req.ID, "request.sent", req)
	return req, nil
}

// AcceptRequest transitions the request and resolves the direct
// conversation, creating it or reviving a soft-deleted one.
func (s *ChatService) AcceptRequest(ctx context.Context, requestID, userID string) (*models.Conversation, error) {
	req, err := s.reqs.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != userID {
		return nil, apperr.NotOwner("only the receiver can accept a request")
	}
	accepted, err := s.reqs.UpdateStatus(ctx, requestID, models.RequestPending, models.RequestAccepted)
	if err != nil {
		return nil, err
	}
	conv, err := s.CreateOrGetDirect(ctx, accepted.SenderID, accepted.ReceiverID)
	if err != nil {
		return nil, err
	}
	s.router.BroadcastToUsers([]string{accepted.SenderID}, realtime.EventMessageRequest,
		realtime.RequestPayload{MessageRequest: accepted}, realtime.PublishOptions{})
	s.emit(ctx, accepted.ID, "request.accepted", accepted)
	return conv, nil
}

func (s *ChatService) RejectRequest(ctx context.Context, requestID, userID string) (*models.MessageRequest, error) {
	return s.resolveRequest(ctx, requestID, userID, models.RequestRejected, "request.rejected")
}

func (s *ChatService) BlockRequest(ctx context.Context, requestID, userID string) (*models.MessageRequest, error) {
	return s.resolveRequest(ctx, requestID, userID, models.RequestBlocked, "request.blocked")
}

func (s *ChatService) resolveRequest(ctx context.Context, requestID, userID string, to models.RequestStatus, event string) (*models.MessageRequest, error) {
	req, err := s.reqs.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != userID {
		return nil, apperr.NotOwner("only the receiver can resolve a request")
	}
	updated, err := s.reqs.UpdateStatus(ctx, requestID, models.RequestPending, to)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, updated.ID, event, updated)
	return updated, nil
}
