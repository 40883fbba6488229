package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/freshlane/realtime-go/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Message, error)
	FindByConversationID(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID int64) error
	CountByConversationID(ctx context.Context, conversationID int64) (int, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindByConversationID(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, conversationID, limit)
	return msgs, err
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (conversation_id, sender_id, sender_role, body)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.ConversationID, params.SenderID, params.SenderRole, params.Body)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) MarkRead(ctx context.Context, conversationID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET read = TRUE
		WHERE conversation_id = $1 AND read = FALSE
	`, conversationID)
	return err
}

func (r *messageRepo) CountByConversationID(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1
	`, conversationID)
	return count, err
}
