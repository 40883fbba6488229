package model

type ConversationStatus string

const (
	ConversationStatusActive  ConversationStatus = "active"
	ConversationStatusPending ConversationStatus = "pending"
	ConversationStatusClosed  ConversationStatus = "closed"
)

type SenderRole string

const (
	SenderRoleCustomer SenderRole = "customer"
	SenderRoleAgent    SenderRole = "agent"
	SenderRoleBot      SenderRole = "bot"
)

type BlockState string

const (
	BlockStateActive BlockState = "active"
	BlockStateLifted BlockState = "lifted"
)
