package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/internal/service"
	"github.com/pranab56/TradeLog-sub000/internal/ws"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

func sessionID(c *fiber.Ctx) string {
	return c.Get(ws.SessionIDHeader)
}

type directReq struct {
	UserID string `json:"user_id"`
}

func (s *Server) createDirect(c *fiber.Ctx) error {
	var req directReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	conv, err := s.svc.CreateOrGetDirect(c.Context(), currentUser(c), req.UserID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(conv)
}

type groupReq struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

func (s *Server) createGroup(c *fiber.Ctx) error {
	var req groupReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	conv, err := s.svc.CreateGroup(c.Context(), currentUser(c), req.Name, req.Description, req.Members)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	convs, err := s.svc.ListConversations(c.Context(), currentUser(c), int64(c.QueryInt("limit", 100)))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

func (s *Server) getConversation(c *fiber.Ctx) error {
	conv, err := s.svc.GetConversation(c.Context(), c.Params("conv_id"), currentUser(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(conv)
}

type groupMetaReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	GroupImage  *string `json:"group_image"`
}

func (s *Server) updateGroupMeta(c *fiber.Ctx) error {
	var req groupMetaReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	conv, err := s.svc.UpdateGroupMeta(c.Context(), c.Params("conv_id"), currentUser(c),
		req.Name, req.Description, req.GroupImage)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(conv)
}

type memberReq struct {
	UserID string `json:"user_id"`
}

func (s *Server) addMember(c *fiber.Ctx) error {
	var req memberReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	conv, err := s.svc.AddMember(c.Context(), c.Params("conv_id"), currentUser(c), req.UserID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(conv)
}

func (s *Server) removeMember(c *fiber.Ctx) error {
	conv, err := s.svc.RemoveMember(c.Context(), c.Params("conv_id"), currentUser(c), c.Params("user_id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(conv)
}

// overlay toggles: each changes only the caller's view.

func (s *Server) mute(c *fiber.Ctx) error {
	return s.overlayResult(c, s.svc.SetMuted(c.Context(), c.Params("conv_id"), currentUser(c), true))
}

func (s *Server) unmute(c *fiber.Ctx) error {
	return s.overlayResult(c, s.svc.SetMuted(c.Context(), c.Params("conv_id"), currentUser(c), false))
}

func (s *Server) pinConversation(c *fiber.Ctx) error {
	return s.overlayResult(c, s.svc.SetConversationPinned(c.Context(), c.Params("conv_id"), currentUser(c), true))
}

func (s *Server) unpinConversation(c *fiber.Ctx) error {
	return s.overlayResult(c, s.svc.SetConversationPinned(c.Context(), c.Params("conv_id"), currentUser(c), false))
}

func (s *Server) block(c *fiber.Ctx) error {
	return s.overlayResult(c, s.svc.SetBlocked(c.Context(), c.Params("conv_id"), currentUser(c), true))
}

func (s *Server) unblock(c *fiber.Ctx) error {
	return s.overlayResult(c, s.svc.SetBlocked(c.Context(), c.Params("conv_id"), currentUser(c), false))
}

func (s *Server) softDelete(c *fiber.Ctx) error {
	return s.overlayResult(c, s.svc.SoftDelete(c.Context(), c.Params("conv_id"), currentUser(c), sessionID(c)))
}

func (s *Server) overlayResult(c *fiber.Ctx, err error) error {
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type sendMessageReq struct {
	Type      string `json:"message_type"`
	Content   string `json:"content"`
	MediaURL  string `json:"media_url"`
	MediaName string `json:"media_name"`
	ReplyTo   string `json:"reply_to"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	msg, err := s.svc.SendMessage(c.Context(), service.SendMessageInput{
		ConversationID: c.Params("conv_id"),
		SenderID:       currentUser(c),
		Type:           models.MessageType(req.Type),
		Content:        req.Content,
		MediaURL:       req.MediaURL,
		MediaName:      req.MediaName,
		ReplyTo:        req.ReplyTo,
		SessionID:      sessionID(c),
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	var before time.Time
	if b := c.Query("before"); b != "" {
		t, err := time.Parse(time.RFC3339, b)
		if err != nil {
			return respondErr(c, apperr.Validation("before must be RFC3339"))
		}
		before = t
	}
	msgs, err := s.svc.GetMessages(c.Context(), c.Params("conv_id"), currentUser(c),
		int64(c.QueryInt("limit", 50)), before)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	n, err := s.svc.MarkRead(c.Context(), c.Params("conv_id"), currentUser(c), sessionID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

type reactReq struct {
	Emoji string `json:"emoji"`
}

func (s *Server) react(c *fiber.Ctx) error {
	var req reactReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	msg, err := s.svc.React(c.Context(), c.Params("msg_id"), currentUser(c), req.Emoji, sessionID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(msg)
}

func (s *Server) unreact(c *fiber.Ctx) error {
	msg, err := s.svc.Unreact(c.Context(), c.Params("msg_id"), currentUser(c), sessionID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(msg)
}

type editReq struct {
	Content string `json:"content"`
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	var req editReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	msg, err := s.svc.EditMessage(c.Context(), c.Params("msg_id"), currentUser(c), req.Content, sessionID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(msg)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	msg, err := s.svc.DeleteMessage(c.Context(), c.Params("msg_id"), currentUser(c), sessionID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(msg)
}

type pinReq struct {
	Pinned bool `json:"pinned"`
}

func (s *Server) pinMessage(c *fiber.Ctx) error {
	var req pinReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	msg, err := s.svc.PinMessage(c.Context(), c.Params("msg_id"), currentUser(c), req.Pinned, sessionID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(msg)
}

type requestReq struct {
	ReceiverID string `json:"receiver_id"`
}

func (s *Server) sendRequest(c *fiber.Ctx) error {
	var req requestReq
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid payload"))
	}
	r, err := s.svc.SendRequest(c.Context(), currentUser(c), req.ReceiverID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (s *Server) acceptRequest(c *fiber.Ctx) error {
	conv, err := s.svc.AcceptRequest(c.Context(), c.Params("req_id"), currentUser(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(conv)
}

func (s *Server) rejectRequest(c *fiber.Ctx) error {
	r, err := s.svc.RejectRequest(c.Context(), c.Params("req_id"), currentUser(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(r)
}

func (s *Server) blockRequest(c *fiber.Ctx) error {
	r, err := s.svc.BlockRequest(c.Context(), c.Params("req_id"), currentUser(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(r)
}

// getPresence answers from the live session table first and falls back
// to the (possibly stale) mirror.
func (s *Server) getPresence(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if s.router.Online(userID) {
		return c.JSON(models.Presence{
			UserID:   userID,
			Status:   s.router.StatusOf(userID),
			LastSeen: time.Now().UTC(),
		})
	}
	p, err := s.mirror.Get(c.Context(), userID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return c.JSON(models.Presence{UserID: userID, Status: models.PresenceOffline})
		}
		return respondErr(c, err)
	}
	return c.JSON(p)
}
