package consent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
)

// Invalidator is the timeline cache hook called after every consent
// write
type Invalidator interface {
	Invalidate(ctx context.Context, subjectID string, studyID uint64) error
}

// Service defines the consent business surface
type Service interface {
	History(ctx context.Context, subjectID string, studyID uint64) ([]domain.ConsentEvent, error)
	RecordEvent(ctx context.Context, event *domain.ConsentEvent) error
}

// DefaultService implements Service
type DefaultService struct {
	repository  Repository
	invalidator Invalidator
	log         zerolog.Logger
}

// NewService creates a new consent service
func NewService(repository Repository, invalidator Invalidator, log zerolog.Logger) Service {
	return &DefaultService{
		repository:  repository,
		invalidator: invalidator,
		log:         log.With().Str("component", "consent").Logger(),
	}
}

func (s *DefaultService) History(ctx context.Context, subjectID string, studyID uint64) ([]domain.ConsentEvent, error) {
	return s.repository.History(ctx, subjectID, studyID)
}

// RecordEvent appends a consent event and marks the subject's timeline
// stale. The rebuild itself is lazy; the next read pays for it.
func (s *DefaultService) RecordEvent(ctx context.Context, event *domain.ConsentEvent) error {
	switch event.Status {
	case domain.ConsentConsented, domain.ConsentSuspended, domain.ConsentWithdrawn, domain.ConsentDeleted:
	default:
		return errors.InputShape("unknown consent status %q", event.Status)
	}
	if event.SubjectID == "" {
		return errors.InputShape("consent event missing subject id")
	}

	if err := s.repository.Create(ctx, event); err != nil {
		return err
	}

	if err := s.invalidator.Invalidate(ctx, event.SubjectID, event.StudyID); err != nil {
		// The write stands; the stale flag will be retried by the next
		// mutation or an administrative invalidation.
		s.log.Error().Err(err).
			Str("subject", event.SubjectID).
			Uint64("study", event.StudyID).
			Msg("consent write recorded but invalidation failed")
	}
	return nil
}
