package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pranab56/TradeLog-sub000/internal/cache"
	"github.com/pranab56/TradeLog-sub000/internal/config"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/internal/service"
	"github.com/pranab56/TradeLog-sub000/internal/ws"
)

type Server struct {
	svc    *service.ChatService
	router *realtime.Router
	mirror *cache.PresenceMirror
	sock   *ws.Server
	rdb    *redis.Client
	cfg    *config.Config
	log    *zap.SugaredLogger
}

func NewServer(svc *service.ChatService, router *realtime.Router, mirror *cache.PresenceMirror,
	sock *ws.Server, rdb *redis.Client, cfg *config.Config, log *zap.SugaredLogger) *Server {
	return &Server{svc: svc, router: router, mirror: mirror, sock: sock, rdb: rdb, cfg: cfg, log: log}
}

// App builds the fiber application with all routes mounted.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "tradelog-chat",
		DisableStartupMessage: s.cfg.App.Env != "development",
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use("/ws", s.sock.Upgrade())
	app.Get("/ws", websocket.New(s.sock.Handle()))

	v1 := app.Group("/api/v1",
		JWTAuth(s.cfg.JWT.Secret),
		RateLimit(s.rdb, s.cfg.Redis.Prefix, s.cfg.RateLimit.Requests, s.cfg.RateLimitWindow),
	)

	v1.Post("/conversations/direct", s.createDirect)
	v1.Post("/conversations/group", s.createGroup)
	v1.Get("/conversations", s.listConversations)
	v1.Get("/conversations/:conv_id", s.getConversation)
	v1.Patch("/conversations/:conv_id", s.updateGroupMeta)
	v1.Delete("/conversations/:conv_id", s.softDelete)
	v1.Post("/conversations/:conv_id/members", s.addMember)
	v1.Delete("/conversations/:conv_id/members/:user_id", s.removeMember)

	v1.Post("/conversations/:conv_id/mute", s.mute)
	v1.Delete("/conversations/:conv_id/mute", s.unmute)
	v1.Post("/conversations/:conv_id/pin", s.pinConversation)
	v1.Delete("/conversations/:conv_id/pin", s.unpinConversation)
	v1.Post("/conversations/:conv_id/block", s.block)
	v1.Delete("/conversations/:conv_id/block", s.unblock)

	v1.Get("/conversations/:conv_id/messages", s.listMessages)
	v1.Post("/conversations/:conv_id/messages", s.sendMessage)
	v1.Post("/conversations/:conv_id/read", s.markRead)

	v1.Patch("/messages/:msg_id", s.editMessage)
	v1.Delete("/messages/:msg_id", s.deleteMessage)
	v1.Put("/messages/:msg_id/pin", s.pinMessage)
	v1.Put("/messages/:msg_id/reactions", s.react)
	v1.Delete("/messages/:msg_id/reactions", s.unreact)

	v1.Post("/requests", s.sendRequest)
	v1.Post("/requests/:req_id/accept", s.acceptRequest)
	v1.Post("/requests/:req_id/reject", s.rejectRequest)
	v1.Post("/requests/:req_id/block", s.blockRequest)

	v1.Get("/presence/:user_id", s.getPresence)

	return app
}
