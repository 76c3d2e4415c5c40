package response

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
)

// Invalidator is the timeline cache hook called after every response
// write
type Invalidator interface {
	Invalidate(ctx context.Context, subjectID string, studyID uint64) error
}

// Service defines the response business surface
type Service interface {
	ForSubject(ctx context.Context, subjectID string, studyID uint64) ([]domain.QuestionnaireResponse, error)
	Record(ctx context.Context, response *domain.QuestionnaireResponse) error
	Remove(ctx context.Context, id uint64) error
}

// DefaultService implements Service
type DefaultService struct {
	repository  Repository
	invalidator Invalidator
	log         zerolog.Logger
}

// NewService creates a new response service
func NewService(repository Repository, invalidator Invalidator, log zerolog.Logger) Service {
	return &DefaultService{
		repository:  repository,
		invalidator: invalidator,
		log:         log.With().Str("component", "response").Logger(),
	}
}

func (s *DefaultService) ForSubject(ctx context.Context, subjectID string, studyID uint64) ([]domain.QuestionnaireResponse, error) {
	return s.repository.ForSubject(ctx, subjectID, studyID)
}

// Record persists a submitted response and marks the subject's timeline
// stale. Responses arrive unlinked; the next build links them.
func (s *DefaultService) Record(ctx context.Context, response *domain.QuestionnaireResponse) error {
	if response.SubjectID == "" || response.Instrument == "" {
		return errors.InputShape("response missing subject or instrument")
	}
	if response.AuthoredAt.IsZero() {
		return errors.InputShape("response missing authored time")
	}

	if err := s.repository.Create(ctx, response); err != nil {
		return err
	}
	s.invalidate(ctx, response.SubjectID, response.StudyID)
	return nil
}

// Remove soft-deletes a response and invalidates the owning timeline
func (s *DefaultService) Remove(ctx context.Context, id uint64) error {
	response, err := s.repository.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, response.SubjectID, response.StudyID)
	return nil
}

func (s *DefaultService) invalidate(ctx context.Context, subjectID string, studyID uint64) {
	if err := s.invalidator.Invalidate(ctx, subjectID, studyID); err != nil {
		s.log.Error().Err(err).
			Str("subject", subjectID).
			Uint64("study", studyID).
			Msg("response write recorded but invalidation failed")
	}
}
