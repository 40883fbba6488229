package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// ConversationChannel is the change-feed channel carrying message events for
// one conversation.
func ConversationChannel(conversationID int64) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

// ReceiverChannel targets a single participant directly.
func ReceiverChannel(receiverID int64) string {
	return fmt.Sprintf("receiver:%d", receiverID)
}
