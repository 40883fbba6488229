package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/model"
)

// Client is the REST surface of the storefront backend. The realtime layer
// uses it for everything that must be durable before it is live: conversation
// lookup and creation, history loads, and assignment.
type Client interface {
	CreateConversation(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	FindConversation(ctx context.Context, id int64) (*model.Conversation, error)
	ActiveConversationByCustomer(ctx context.Context, customerID int64) (*model.Conversation, error)
	ConversationsByStatus(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error)
	AssignConversation(ctx context.Context, params model.AssignConversationParams) (*model.Conversation, error)
	Messages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	PostMessage(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
}

type restClient struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &restClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
	}
}

func (c *restClient) CreateConversation(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", params, &conv); err != nil {
		return nil, err
	}
	log.Debug().Int64("conversationId", conv.ID).Msg("conversation created")
	return &conv, nil
}

func (c *restClient) FindConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	var conv model.Conversation
	path := fmt.Sprintf("/conversations/%d", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *restClient) ActiveConversationByCustomer(ctx context.Context, customerID int64) (*model.Conversation, error) {
	var conv model.Conversation
	path := fmt.Sprintf("/conversations/active?customerId=%d", customerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *restClient) ConversationsByStatus(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error) {
	var convs []model.Conversation
	path := "/conversations?status=" + url.QueryEscape(string(status))
	if err := c.do(ctx, http.MethodGet, path, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *restClient) AssignConversation(ctx context.Context, params model.AssignConversationParams) (*model.Conversation, error) {
	var conv model.Conversation
	path := fmt.Sprintf("/conversations/%d/assign", params.ConversationID)
	if err := c.do(ctx, http.MethodPost, path, params, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *restClient) Messages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	var msgs []model.Message
	path := fmt.Sprintf("/conversations/%d/messages?limit=%d", conversationID, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *restClient) PostMessage(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	path := fmt.Sprintf("/conversations/%d/messages", params.ConversationID)
	if err := c.do(ctx, http.MethodPost, path, params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *restClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.External("storefront api", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NotFound("resource")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return apperrors.External("storefront api",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.External("storefront api", fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}
