package models

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
	RequestBlocked  RequestStatus = "blocked"
)

// MessageRequest is the pending social link before a direct conversation
// exists. Unique per ordered (sender, receiver) pair.
type MessageRequest struct {
	ID         string        `bson:"_id,omitempty" json:"id"`
	SenderID   string        `bson:"sender_id" json:"sender_id"`
	ReceiverID string        `bson:"receiver_id" json:"receiver_id"`
	Status     RequestStatus `bson:"status" json:"status"`
	CreatedAt  time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at" json:"updated_at"`
}
