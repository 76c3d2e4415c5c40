package consent

import (
	"context"

	"gorm.io/gorm"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
)

// Repository defines the interface for consent history access. History
// is append-only; there is no update or delete surface.
type Repository interface {
	History(ctx context.Context, subjectID string, studyID uint64) ([]domain.ConsentEvent, error)
	Create(ctx context.Context, event *domain.ConsentEvent) error
	SubjectsForStudy(ctx context.Context, studyID uint64) ([]string, error)
}

// RepositoryImpl implements Repository
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new consent repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// History returns the subject's consent events for a study, ascending
// by acceptance date then insertion order. Undated rows sort last so a
// dated consent always anchors before legacy stragglers.
func (r *RepositoryImpl) History(ctx context.Context, subjectID string, studyID uint64) ([]domain.ConsentEvent, error) {
	var events []domain.ConsentEvent
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND study_id = ?", subjectID, studyID).
		Order("acceptance_date ASC NULLS LAST").
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// Create appends a consent event
func (r *RepositoryImpl) Create(ctx context.Context, event *domain.ConsentEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// SubjectsForStudy lists every subject with consent history for the
// study; coarse invalidations enumerate through this.
func (r *RepositoryImpl) SubjectsForStudy(ctx context.Context, studyID uint64) ([]string, error) {
	var subjects []string
	err := r.db.WithContext(ctx).
		Model(&domain.ConsentEvent{}).
		Where("study_id = ?", studyID).
		Distinct("subject_id").
		Order("subject_id ASC").
		Pluck("subject_id", &subjects).Error
	return subjects, err
}
