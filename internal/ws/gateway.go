package ws

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/internal/service"
)

// Inbound is the tagged variant clients send over the socket. Everything
// that mutates durable state goes through the REST contracts instead;
// the socket carries room membership, typing, presence and call
// signalling.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	inJoinConversation  = "join-conversation"
	inLeaveConversation = "leave-conversation"
	inTypingStarted     = "typing-started"
	inTypingStopped     = "typing-stopped"
	inPresence          = "presence"
	inCallInvite        = "call-invite"
	inCallAccept        = "call-accept"
	inCallHangup        = "call-hangup"
)

type roomPayload struct {
	ConversationID string `json:"conversation_id"`
}

type typingInbound struct {
	ConversationID string `json:"conversation_id"`
	UserName       string `json:"user_name"`
}

type presenceInbound struct {
	Status string `json:"status"`
}

type callInbound struct {
	ConversationID string `json:"conversation_id"`
	CallType       string `json:"call_type"`
	Signal         any    `json:"signal"`
}

// Gateway routes each inbound envelope through one typed handler table.
type Gateway struct {
	router   *realtime.Router
	svc      *service.ChatService
	log      *zap.SugaredLogger
	handlers map[string]func(realtime.Session, json.RawMessage)
}

func NewGateway(router *realtime.Router, svc *service.ChatService, log *zap.SugaredLogger) *Gateway {
	g := &Gateway{router: router, svc: svc, log: log}
	g.handlers = map[string]func(realtime.Session, json.RawMessage){
		inJoinConversation:  g.joinConversation,
		inLeaveConversation: g.leaveConversation,
		inTypingStarted:     g.typingStarted,
		inTypingStopped:     g.typingStopped,
		inPresence:          g.presence,
		inCallInvite:        g.call(realtime.EventCallInvite),
		inCallAccept:        g.call(realtime.EventCallAccept),
		inCallHangup:        g.call(realtime.EventCallHangup),
	}
	return g
}

func (g *Gateway) Dispatch(s realtime.Session, in Inbound) {
	h, ok := g.handlers[in.Type]
	if !ok {
		g.log.Debugw("ignoring unknown inbound type", "type", in.Type, "session", s.ID())
		return
	}
	h(s, in.Payload)
}

// joinConversation verifies membership against the directory before
// joining: a session may only enter rooms for conversations it belongs
// to, and an empty key is rejected by the router.
func (g *Gateway) joinConversation(s realtime.Session, raw json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ConversationID == "" {
		g.log.Warnw("rejecting join with unresolvable conversation id", "session", s.ID())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := g.svc.GetConversation(ctx, p.ConversationID, s.UserID()); err != nil {
		g.log.Warnw("rejecting join", "session", s.ID(), "conversation", p.ConversationID, "err", err)
		return
	}
	g.router.Join(s, realtime.ConversationRoom(p.ConversationID))
}

func (g *Gateway) leaveConversation(s realtime.Session, raw json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ConversationID == "" {
		return
	}
	g.router.Leave(s, realtime.ConversationRoom(p.ConversationID))
}

func (g *Gateway) typingStarted(s realtime.Session, raw json.RawMessage) {
	var p typingInbound
	if err := json.Unmarshal(raw, &p); err != nil || p.ConversationID == "" {
		return
	}
	g.router.StartTyping(s, p.ConversationID, p.UserName)
}

func (g *Gateway) typingStopped(s realtime.Session, raw json.RawMessage) {
	var p typingInbound
	if err := json.Unmarshal(raw, &p); err != nil || p.ConversationID == "" {
		return
	}
	g.router.StopTyping(s, p.ConversationID, p.UserName)
}

func (g *Gateway) presence(s realtime.Session, raw json.RawMessage) {
	var p presenceInbound
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	switch p.Status {
	case "away":
		g.router.SetAway(s)
	case "online":
		g.router.SetBack(s)
	}
}

// call relays signalling into the conversation room; the router is a
// dumb pipe for these, no state is kept.
func (g *Gateway) call(event realtime.EventType) func(realtime.Session, json.RawMessage) {
	return func(s realtime.Session, raw json.RawMessage) {
		var p callInbound
		if err := json.Unmarshal(raw, &p); err != nil || p.ConversationID == "" {
			return
		}
		payload := realtime.CallPayload{
			ConversationID: p.ConversationID,
			CallerID:       s.UserID(),
			CallType:       p.CallType,
			Signal:         p.Signal,
		}
		g.router.Publish(realtime.ConversationRoom(p.ConversationID), event, payload,
			realtime.PublishOptions{ExcludeSessionID: s.ID()})
	}
}
