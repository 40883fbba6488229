package transport

import (
	"encoding/json"

	"github.com/freshlane/realtime-go/internal/model"
)

// Outbound events (client -> gateway)
const (
	EventCustomerJoin       = "customer:join"
	EventAgentJoin          = "agent:join"
	EventDriverJoin         = "driver:join"
	EventDriverLocation     = "driver:location"
	EventOrderTrack         = "order:track"
	EventOrderUntrack       = "order:untrack"
	EventMessageSend        = "message:send"
	EventTypingStart        = "typing:start"
	EventTypingStop         = "typing:stop"
	EventConversationAssign = "conversation:assign"
	EventMessagesMarkRead   = "messages:markRead"
)

// Inbound events (gateway -> client)
const (
	EventMessageNew           = "message:new"
	EventTypingIndicator      = "typing:indicator"
	EventDriverLocationUpdate = "driver:location:update"
	EventDriversAllLocations  = "drivers:all:locations"
	EventDriverDisconnected   = "driver:disconnected"
)

// Frame is the wire envelope for every event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type CustomerJoinPayload struct {
	ConversationID int64  `json:"conversationId"`
	CustomerName   string `json:"customerName"`
}

type AgentJoinPayload struct {
	AgentID   int64  `json:"agentId"`
	AgentName string `json:"agentName"`
}

type DriverJoinPayload struct {
	DriverID string `json:"driverId"`
	UserID   int64  `json:"userId"`
}

type DriverLocationPayload struct {
	DriverID string  `json:"driverId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	OrderID  *string `json:"orderId,omitempty"`
}

type OrderTrackPayload struct {
	OrderID string `json:"orderId"`
	UserID  int64  `json:"userId"`
}

type MessageSendPayload struct {
	ConversationID int64            `json:"conversationId"`
	SenderID       *int64           `json:"senderId,omitempty"`
	SenderType     model.SenderRole `json:"senderType"`
	Message        string           `json:"message"`
}

type TypingPayload struct {
	ConversationID int64            `json:"conversationId"`
	UserType       model.SenderRole `json:"userType"`
	UserName       *string          `json:"userName,omitempty"`
}

type ConversationAssignPayload struct {
	ConversationID int64  `json:"conversationId"`
	AgentID        int64  `json:"agentId"`
	AgentName      string `json:"agentName"`
}

type MarkReadPayload struct {
	ConversationID int64 `json:"conversationId"`
}

type TypingIndicatorPayload struct {
	UserType model.SenderRole `json:"userType"`
	IsTyping bool             `json:"isTyping"`
}

type DriverDisconnectedPayload struct {
	DriverID string `json:"driverId"`
}
