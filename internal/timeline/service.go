package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/redis"
)

// Provider is what the query API needs from the coordinator
type Provider interface {
	Get(ctx context.Context, subjectID string, studyID uint64) ([]domain.TimelineRow, uint64, error)
	ForcesRebuild(ctx context.Context, subjectID string, studyID uint64) (bool, error)
}

// Service is the read-only query surface over the materialized
// timeline. Every accessor funnels through Provider.Get, so results
// always reflect the latest known inputs.
type Service interface {
	HistoryRows(ctx context.Context, subjectID string, studyID uint64, statuses []string) ([]domain.TimelineRow, uint64, error)
	NextDue(ctx context.Context, subjectID string, studyID uint64) (*domain.TimelineRow, error)
	StatusAt(ctx context.Context, subjectID string, studyID uint64, instrument string, when time.Time) (string, error)
}

// DefaultService implements Service
type DefaultService struct {
	provider Provider
	cache    *redis.Cache
	log      zerolog.Logger
}

// NewService creates a new timeline query service
func NewService(provider Provider, cache *redis.Cache, log zerolog.Logger) Service {
	return &DefaultService{
		provider: provider,
		cache:    cache,
		log:      log.With().Str("component", "timeline-query").Logger(),
	}
}

type cachedTimeline struct {
	Rows       []domain.TimelineRow `json:"rows"`
	Generation uint64               `json:"generation"`
}

// HistoryRows returns the ordered timeline, optionally filtered to a
// status set. Payloads cache under a version-counter key that every
// invalidation bumps, so a stale payload key simply stops matching.
func (s *DefaultService) HistoryRows(ctx context.Context, subjectID string, studyID uint64, statuses []string) ([]domain.TimelineRow, uint64, error) {
	forced, err := s.provider.ForcesRebuild(ctx, subjectID, studyID)
	if err != nil {
		return nil, 0, err
	}

	var payloadKey string
	if !forced {
		v := s.cache.GetVersion(ctx, versionKey(subjectID, studyID))
		payloadKey = fmt.Sprintf("qbt:s:%s:st:%d:v:%d", subjectID, studyID, v)

		var cached cachedTimeline
		if found, _ := s.cache.Get(ctx, payloadKey, &cached); found {
			return filterByStatus(cached.Rows, statuses), cached.Generation, nil
		}
	}

	rows, generation, err := s.provider.Get(ctx, subjectID, studyID)
	if err != nil {
		return nil, 0, err
	}

	if !forced {
		payload := cachedTimeline{Rows: rows, Generation: generation}
		go s.cache.Set(context.Background(), payloadKey, payload, 24*time.Hour)
	}

	return filterByStatus(rows, statuses), generation, nil
}

// NextDue returns the earliest due row, or nil when nothing is pending
func (s *DefaultService) NextDue(ctx context.Context, subjectID string, studyID uint64) (*domain.TimelineRow, error) {
	rows, _, err := s.provider.Get(ctx, subjectID, studyID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Status == domain.StatusDue {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// StatusAt reports the instrument's status in the window covering
// `when`; empty when no window covers it. An unknown subject yields
// empty, never an error.
func (s *DefaultService) StatusAt(ctx context.Context, subjectID string, studyID uint64, instrument string, when time.Time) (string, error) {
	rows, _, err := s.provider.Get(ctx, subjectID, studyID)
	if err != nil {
		return "", err
	}

	status := ""
	for _, r := range rows {
		if r.Instrument != instrument {
			continue
		}
		if r.At.After(when) || !when.Before(r.ExpiresAt) {
			continue
		}
		// rows are ordered by At; keep the latest covering window
		status = r.Status
	}
	return status, nil
}

func filterByStatus(rows []domain.TimelineRow, statuses []string) []domain.TimelineRow {
	if len(statuses) == 0 {
		return rows
	}
	wanted := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	filtered := make([]domain.TimelineRow, 0, len(rows))
	for _, r := range rows {
		if wanted[r.Status] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
