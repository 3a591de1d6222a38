package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/pranab56/TradeLog-sub000/internal/realtime"
)

// Session is one physical websocket connection. The write pump is the
// only goroutine touching the connection for writes; the router reaches
// it through the buffered send channel.
type Session struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan realtime.Envelope
	log    *zap.SugaredLogger

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id, userID string, conn *websocket.Conn, bufSize int, log *zap.SugaredLogger) *Session {
	return &Session{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan realtime.Envelope, bufSize),
		log:    log,
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Deliver enqueues without blocking; a full buffer drops the event.
func (s *Session) Deliver(env realtime.Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) writePump(pingInterval, writeDeadline time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case env := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteJSON(env); err != nil {
				s.log.Debugw("session write failed", "session", s.id, "err", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// readLoop parses inbound envelopes and hands them to the dispatcher
// until the connection drops. Malformed frames are skipped, not fatal.
func (s *Session) readLoop(maxMsgSize int64, readTimeout time.Duration, dispatch func(*Session, Inbound)) {
	s.conn.SetReadLimit(maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.log.Debugw("skipping malformed frame", "session", s.id, "err", err)
			continue
		}
		dispatch(s, in)
	}
}
