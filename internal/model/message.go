package model

import (
	"encoding/json"
	"time"
)

type Message struct {
	ID             int64      `db:"id" json:"id"`
	ConversationID int64      `db:"conversation_id" json:"conversationId"`
	SenderID       *int64     `db:"sender_id" json:"senderId,omitempty"`
	SenderRole     SenderRole `db:"sender_role" json:"senderRole"`
	Body           string     `db:"body" json:"body"`
	Read           bool       `db:"read" json:"read"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// ToFeedEventData returns the JSON payload published on the change feed.
func (m *Message) ToFeedEventData() json.RawMessage {
	data, _ := json.Marshal(m)
	return data
}

type CreateMessageParams struct {
	ConversationID int64      `json:"conversationId"`
	SenderID       *int64     `json:"senderId,omitempty"`
	SenderRole     SenderRole `json:"senderRole"`
	Body           string     `json:"body"`
}
