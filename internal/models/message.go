package models

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeVideo  MessageType = "video"
	MessageTypeFile   MessageType = "file"
	MessageTypeVoice  MessageType = "voice"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo,
		MessageTypeFile, MessageTypeVoice, MessageTypeSystem:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// DeletedMarker replaces the content of a tombstoned message. The row is
// kept so reply_to references stay resolvable.
const DeletedMarker = "This message was deleted"

type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

type Reaction struct {
	UserID string `bson:"user_id" json:"user_id"`
	Emoji  string `bson:"emoji" json:"emoji"`
}

type Message struct {
	ID             string        `bson:"_id,omitempty" json:"id"`
	ConversationID string        `bson:"conversation_id" json:"conversation_id"`
	SenderID       string        `bson:"sender_id" json:"sender_id"`
	Type           MessageType   `bson:"message_type" json:"message_type"`
	Content        string        `bson:"content" json:"content"`
	MediaURL       string        `bson:"media_url,omitempty" json:"media_url,omitempty"`
	MediaName      string        `bson:"media_name,omitempty" json:"media_name,omitempty"`
	Status         MessageStatus `bson:"status" json:"status"`
	ReadBy         []ReadReceipt `bson:"read_by" json:"read_by"`
	ReplyTo        string        `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Reactions      []Reaction    `bson:"reactions" json:"reactions"`
	IsEdited       bool          `bson:"is_edited" json:"is_edited"`
	IsDeleted      bool          `bson:"is_deleted" json:"is_deleted"`
	IsPinned       bool          `bson:"is_pinned" json:"is_pinned"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	EditedAt       *time.Time    `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
}

// ReadBy returns whether the user already has a receipt on the message.
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
