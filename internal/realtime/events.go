package realtime

import (
	"github.com/pranab56/TradeLog-sub000/internal/models"
)

type EventType string

const (
	EventMessageSent         EventType = "message-sent"
	EventMessageEdited       EventType = "message-edited"
	EventMessageDeleted      EventType = "message-deleted"
	EventMessageReacted      EventType = "message-reacted"
	EventTypingStarted       EventType = "typing-started"
	EventTypingStopped       EventType = "typing-stopped"
	EventReadReceiptUpdated  EventType = "read-receipt-updated"
	EventPresenceChanged     EventType = "presence-changed"
	EventConversationUpsert  EventType = "conversation-created-or-updated"
	EventConversationDeleted EventType = "conversation-deleted"
	EventGroupMetaUpdated    EventType = "group-metadata-updated"
	EventMessageRequest      EventType = "message-request"
	EventCallInvite          EventType = "call-invite"
	EventCallAccept          EventType = "call-accept"
	EventCallHangup          EventType = "call-hangup"
)

// Envelope is the one wire shape every routed event travels in.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type MessagePayload struct {
	*models.Message
	Participants []string `json:"participants"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
}

type ReadReceiptPayload struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
}

type PresencePayload struct {
	UserID string                `json:"user_id"`
	Status models.PresenceStatus `json:"status"`
}

type ConversationPayload struct {
	*models.Conversation
}

type RequestPayload struct {
	*models.MessageRequest
}

type CallPayload struct {
	ConversationID string `json:"conversation_id"`
	CallerID       string `json:"caller_id"`
	CallType       string `json:"call_type,omitempty"`
	Signal         any    `json:"signal,omitempty"`
}
