package ws

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pranab56/TradeLog-sub000/internal/auth"
	"github.com/pranab56/TradeLog-sub000/internal/config"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/pkg/metrics"
)

type Server struct {
	router *realtime.Router
	gw     *Gateway
	cfg    *config.Config
	log    *zap.SugaredLogger
}

func NewServer(router *realtime.Router, gw *Gateway, cfg *config.Config, log *zap.SugaredLogger) *Server {
	return &Server{router: router, gw: gw, cfg: cfg, log: log}
}

// Upgrade gates the route so only websocket upgrade requests reach the
// handler.
func (s *Server) Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Handle runs one session's lifecycle: authenticate, join the personal
// room, pump, and tear everything down on disconnect. The personal room
// join happens on every connect, so a reconnecting client gets it
// re-established without asking.
func (s *Server) Handle() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		token := conn.Query("token")
		if token == "" {
			_ = conn.Close()
			return
		}
		claims, err := auth.ParseAndValidate(s.cfg.JWT.Secret, token)
		if err != nil {
			s.log.Debugw("rejecting unauthenticated socket", "err", err)
			_ = conn.Close()
			return
		}

		sess := newSession(uuid.NewString(), claims.UserID, conn, s.cfg.WS.SendBufferSize, s.log)
		metrics.ConnectedSessions.Inc()
		s.log.Infow("session connected", "session", sess.ID(), "user", sess.UserID())

		s.router.Join(sess, realtime.UserRoom(sess.UserID()))
		go sess.writePump(s.cfg.PingInterval, s.cfg.WriteDeadline)

		readTimeout := s.cfg.PingInterval*2 + time.Second
		sess.readLoop(s.cfg.WS.MaxMessageSizeBytes, readTimeout, func(sess *Session, in Inbound) {
			s.gw.Dispatch(sess, in)
		})

		s.router.Disconnect(sess)
		sess.Close()
		metrics.ConnectedSessions.Dec()
		s.log.Infow("session disconnected", "session", sess.ID(), "user", sess.UserID())
	}
}

// SessionID is the header REST calls use to point back at their live
// session so fan-out can skip the originating device.
const SessionIDHeader = "X-Session-ID"
