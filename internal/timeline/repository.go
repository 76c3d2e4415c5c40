package timeline

import (
	"context"

	"gorm.io/gorm"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
)

// Store persists timeline rows and the per-(subject, study) generation
// state
type Store interface {
	State(ctx context.Context, subjectID string, studyID uint64) (*domain.TimelineState, error)
	Reserve(ctx context.Context, subjectID string, studyID uint64) (uint64, error)
	Rows(ctx context.Context, subjectID string, studyID uint64) ([]domain.TimelineRow, error)
	Replace(ctx context.Context, subjectID string, studyID uint64, generation uint64, rows []domain.TimelineRow) error
}

// StoreImpl implements Store on gorm
type StoreImpl struct {
	db *gorm.DB
}

// NewStore creates a new timeline store
func NewStore(db *gorm.DB) Store {
	return &StoreImpl{db: db}
}

// State loads the generation state, creating the initial record on
// first contact. A fresh entry starts invalid with generation 1
// reserved, so the first build always runs.
func (s *StoreImpl) State(ctx context.Context, subjectID string, studyID uint64) (*domain.TimelineState, error) {
	state := domain.TimelineState{
		SubjectID:          subjectID,
		StudyID:            studyID,
		CurrentGeneration:  0,
		ReservedGeneration: 1,
		Valid:              false,
	}
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND study_id = ?", subjectID, studyID).
		FirstOrCreate(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Reserve marks the entry stale and bumps the reserved generation.
// Idempotent in effect: repeated calls keep the entry stale; each bump
// just moves the target any in-flight build must hit.
func (s *StoreImpl) Reserve(ctx context.Context, subjectID string, studyID uint64) (uint64, error) {
	var reserved uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state := domain.TimelineState{
			SubjectID:          subjectID,
			StudyID:            studyID,
			ReservedGeneration: 1,
		}
		if err := tx.Where("subject_id = ? AND study_id = ?", subjectID, studyID).
			FirstOrCreate(&state).Error; err != nil {
			return err
		}

		if err := tx.Model(&domain.TimelineState{}).
			Where("subject_id = ? AND study_id = ?", subjectID, studyID).
			Updates(map[string]any{
				"valid":               false,
				"reserved_generation": gorm.Expr("reserved_generation + 1"),
			}).Error; err != nil {
			return err
		}

		return tx.Model(&domain.TimelineState{}).
			Where("subject_id = ? AND study_id = ?", subjectID, studyID).
			Select("reserved_generation").
			Scan(&reserved).Error
	})
	return reserved, err
}

// Rows returns the rows of the current generation, in timeline order
func (s *StoreImpl) Rows(ctx context.Context, subjectID string, studyID uint64) ([]domain.TimelineRow, error) {
	state, err := s.State(ctx, subjectID, studyID)
	if err != nil {
		return nil, err
	}

	var rows []domain.TimelineRow
	err = s.db.WithContext(ctx).
		Where("subject_id = ? AND study_id = ? AND generation = ?",
			subjectID, studyID, state.CurrentGeneration).
		Order("at ASC").
		Order("bank_id ASC").
		Order("instrument ASC").
		Order("qb_iteration ASC").
		Find(&rows).Error
	return rows, err
}

// Replace atomically swaps the persisted timeline for a new
// generation. The compare-and-swap on reserved_generation rejects
// builds whose reservation was superseded while they ran; the caller
// discards the output and schedules a fresh build.
func (s *StoreImpl) Replace(ctx context.Context, subjectID string, studyID uint64, generation uint64, rows []domain.TimelineRow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.TimelineState{}).
			Where("subject_id = ? AND study_id = ? AND reserved_generation = ?",
				subjectID, studyID, generation).
			Updates(map[string]any{
				"current_generation": generation,
				"valid":              true,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrBuildSuperseded
		}

		if err := tx.Where("subject_id = ? AND study_id = ?", subjectID, studyID).
			Delete(&domain.TimelineRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}
