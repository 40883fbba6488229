package moderation

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/repository"
)

// Service answers block-status questions for the messaging layer and keeps
// the audit trail of blocked participants and their attempts.
type Service struct {
	blocklist repository.BlocklistRepository
}

func NewService(blocklist repository.BlocklistRepository) *Service {
	return &Service{blocklist: blocklist}
}

// IsBlocked reports whether the identifier currently has an active block.
func (s *Service) IsBlocked(ctx context.Context, identifier string) (bool, error) {
	if identifier == "" {
		return false, apperrors.MissingRequired("identifier")
	}
	entity, err := s.blocklist.FindActiveByIdentifier(ctx, identifier)
	if err != nil {
		return false, apperrors.Database(err)
	}
	return entity != nil, nil
}

func (s *Service) Block(ctx context.Context, identifier string, reason *string) (*model.BlockedEntity, error) {
	if identifier == "" {
		return nil, apperrors.MissingRequired("identifier")
	}

	existing, err := s.blocklist.FindActiveByIdentifier(ctx, identifier)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		return existing, nil
	}

	entity, err := s.blocklist.Block(ctx, identifier, reason)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("identifier", identifier).Msg("participant blocked")
	return entity, nil
}

func (s *Service) Unblock(ctx context.Context, identifier string) error {
	if identifier == "" {
		return apperrors.MissingRequired("identifier")
	}
	if err := s.blocklist.Unblock(ctx, identifier); err != nil {
		return apperrors.Database(err)
	}
	log.Info().Str("identifier", identifier).Msg("participant unblocked")
	return nil
}

func (s *Service) History(ctx context.Context, identifier string, limit int) ([]model.BlockedEntity, error) {
	if limit <= 0 {
		limit = 50
	}
	entities, err := s.blocklist.History(ctx, identifier, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return entities, nil
}

// LogAttempt records that a blocked participant tried to send. Best effort;
// callers treat failures as non-fatal.
func (s *Service) LogAttempt(ctx context.Context, identifier string, conversationID *int64, detail string) error {
	if err := s.blocklist.LogAttempt(ctx, identifier, conversationID, detail); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *Service) Attempts(ctx context.Context, identifier string, limit int) ([]model.BlockedAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	attempts, err := s.blocklist.Attempts(ctx, identifier, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return attempts, nil
}
