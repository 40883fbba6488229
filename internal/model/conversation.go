package model

import (
	"time"
)

type Conversation struct {
	ID             int64              `db:"id" json:"id"`
	CustomerID     *int64             `db:"customer_id" json:"customerId,omitempty"`
	CustomerName   string             `db:"customer_name" json:"customerName"`
	AgentID        *int64             `db:"agent_id" json:"agentId,omitempty"`
	AgentName      *string            `db:"agent_name" json:"agentName,omitempty"`
	Status         ConversationStatus `db:"status" json:"status"`
	CreatedAt      time.Time          `db:"created_at" json:"createdAt"`
	LastActivityAt time.Time          `db:"last_activity_at" json:"lastActivityAt"`
}

// Open reports whether the conversation still accepts message delivery.
// Closure is terminal.
func (c *Conversation) Open() bool {
	return c.Status != ConversationStatusClosed
}

type CreateConversationParams struct {
	CustomerID   *int64 `json:"customerId,omitempty"`
	CustomerName string `json:"customerName"`
}

type AssignConversationParams struct {
	ConversationID int64  `json:"conversationId"`
	AgentID        int64  `json:"agentId"`
	AgentName      string `json:"agentName"`
}
