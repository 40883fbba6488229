package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/freshlane/realtime-go/internal/model"
)

type BlocklistRepository interface {
	FindActiveByIdentifier(ctx context.Context, identifier string) (*model.BlockedEntity, error)
	Block(ctx context.Context, identifier string, reason *string) (*model.BlockedEntity, error)
	Unblock(ctx context.Context, identifier string) error
	History(ctx context.Context, identifier string, limit int) ([]model.BlockedEntity, error)
	LogAttempt(ctx context.Context, identifier string, conversationID *int64, detail string) error
	Attempts(ctx context.Context, identifier string, limit int) ([]model.BlockedAttempt, error)
}

type blocklistRepo struct {
	db *sqlx.DB
}

func NewBlocklistRepository(db *sqlx.DB) BlocklistRepository {
	return &blocklistRepo{db: db}
}

func (r *blocklistRepo) FindActiveByIdentifier(ctx context.Context, identifier string) (*model.BlockedEntity, error) {
	var entity model.BlockedEntity
	err := r.db.GetContext(ctx, &entity, `
		SELECT * FROM blocked_entities
		WHERE identifier = $1 AND state = 'active'
		ORDER BY blocked_at DESC
		LIMIT 1
	`, identifier)
	return HandleNotFound(&entity, err)
}

func (r *blocklistRepo) Block(ctx context.Context, identifier string, reason *string) (*model.BlockedEntity, error) {
	var entity model.BlockedEntity
	err := r.db.GetContext(ctx, &entity, `
		INSERT INTO blocked_entities (identifier, reason, state)
		VALUES ($1, $2, 'active')
		RETURNING *
	`, identifier, reason)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *blocklistRepo) Unblock(ctx context.Context, identifier string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE blocked_entities SET
			state = 'lifted',
			lifted_at = NOW()
		WHERE identifier = $1 AND state = 'active'
	`, identifier)
	return err
}

func (r *blocklistRepo) History(ctx context.Context, identifier string, limit int) ([]model.BlockedEntity, error) {
	var entities []model.BlockedEntity
	err := r.db.SelectContext(ctx, &entities, `
		SELECT * FROM blocked_entities
		WHERE identifier = $1
		ORDER BY blocked_at DESC
		LIMIT $2
	`, identifier, limit)
	return entities, err
}

func (r *blocklistRepo) LogAttempt(ctx context.Context, identifier string, conversationID *int64, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blocked_attempts (identifier, conversation_id, detail)
		VALUES ($1, $2, $3)
	`, identifier, conversationID, detail)
	return err
}

func (r *blocklistRepo) Attempts(ctx context.Context, identifier string, limit int) ([]model.BlockedAttempt, error) {
	var attempts []model.BlockedAttempt
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT * FROM blocked_attempts
		WHERE identifier = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`, identifier, limit)
	return attempts, err
}
