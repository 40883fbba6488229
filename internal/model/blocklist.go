package model

import (
	"time"
)

type BlockedEntity struct {
	ID         int64      `db:"id" json:"id"`
	Identifier string     `db:"identifier" json:"identifier"`
	Reason     *string    `db:"reason" json:"reason,omitempty"`
	State      BlockState `db:"state" json:"state"`
	BlockedAt  time.Time  `db:"blocked_at" json:"blockedAt"`
	LiftedAt   *time.Time `db:"lifted_at" json:"liftedAt,omitempty"`
}

type BlockedAttempt struct {
	ID             int64     `db:"id" json:"id"`
	Identifier     string    `db:"identifier" json:"identifier"`
	ConversationID *int64    `db:"conversation_id" json:"conversationId,omitempty"`
	Detail         string    `db:"detail" json:"detail"`
	AttemptedAt    time.Time `db:"attempted_at" json:"attemptedAt"`
}
