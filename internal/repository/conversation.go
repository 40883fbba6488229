package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/freshlane/realtime-go/internal/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Conversation, error)
	FindActiveByCustomerID(ctx context.Context, customerID int64) (*model.Conversation, error)
	FindByStatus(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error)
	Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	Assign(ctx context.Context, params model.AssignConversationParams) (*model.Conversation, error)
	Close(ctx context.Context, id int64) error
	TouchActivity(ctx context.Context, id int64) error
}

type conversationRepo struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE id = $1`, id)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) FindActiveByCustomerID(ctx context.Context, customerID int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations
		WHERE customer_id = $1 AND status = 'active'
		ORDER BY last_activity_at DESC
		LIMIT 1
	`, customerID)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) FindByStatus(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		WHERE status = $1
		ORDER BY last_activity_at DESC
	`, status)
	return convs, err
}

func (r *conversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		INSERT INTO conversations (customer_id, customer_name, status)
		VALUES ($1, $2, 'active')
		RETURNING *
	`, params.CustomerID, params.CustomerName)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) Assign(ctx context.Context, params model.AssignConversationParams) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		UPDATE conversations SET
			agent_id = $2,
			agent_name = $3,
			last_activity_at = NOW()
		WHERE id = $1
		RETURNING *
	`, params.ConversationID, params.AgentID, params.AgentName)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) Close(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET status = 'closed' WHERE id = $1
	`, id)
	return err
}

func (r *conversationRepo) TouchActivity(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET last_activity_at = NOW() WHERE id = $1
	`, id)
	return err
}
