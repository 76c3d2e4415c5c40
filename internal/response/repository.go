package response

import (
	"context"

	"gorm.io/gorm"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
)

// Repository defines the interface for questionnaire response access
type Repository interface {
	ForSubject(ctx context.Context, subjectID string, studyID uint64) ([]domain.QuestionnaireResponse, error)
	Create(ctx context.Context, response *domain.QuestionnaireResponse) error
	UpdateLink(ctx context.Context, id uint64, bankID *uint64, iteration *int) error
	Delete(ctx context.Context, id uint64) (*domain.QuestionnaireResponse, error)
}

// RepositoryImpl implements Repository
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new response repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// ForSubject returns the subject's responses for a study, ascending by
// authored time then insertion order
func (r *RepositoryImpl) ForSubject(ctx context.Context, subjectID string, studyID uint64) ([]domain.QuestionnaireResponse, error) {
	var responses []domain.QuestionnaireResponse
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND study_id = ? AND deleted_at IS NULL", subjectID, studyID).
		Order("authored_at ASC").
		Order("id ASC").
		Find(&responses).Error
	return responses, err
}

// Create inserts a response
func (r *RepositoryImpl) Create(ctx context.Context, response *domain.QuestionnaireResponse) error {
	return r.db.WithContext(ctx).Create(response).Error
}

// UpdateLink rewrites a response's occurrence link; nil values unlink
func (r *RepositoryImpl) UpdateLink(ctx context.Context, id uint64, bankID *uint64, iteration *int) error {
	return r.db.WithContext(ctx).
		Model(&domain.QuestionnaireResponse{}).
		Where("id = ?", id).
		Updates(map[string]any{"bank_id": bankID, "qb_iteration": iteration}).Error
}

// Delete soft-deletes a response and returns it so callers can
// invalidate the owning subject's timeline
func (r *RepositoryImpl) Delete(ctx context.Context, id uint64) (*domain.QuestionnaireResponse, error) {
	var response domain.QuestionnaireResponse
	if err := r.db.WithContext(ctx).First(&response, id).Error; err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).
		Model(&domain.QuestionnaireResponse{}).
		Where("id = ?", id).
		Update("deleted_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	return &response, err
}
