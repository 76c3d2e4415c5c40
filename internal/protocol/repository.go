package protocol

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
)

// Repository reads the research-protocol catalog. Read-mostly: the
// builder never mutates protocol rows, so results sit in a short TTL
// cache that coarse invalidations flush.
type Repository interface {
	BanksFor(ctx context.Context, studyID uint64, asOf time.Time) ([]domain.QuestionnaireBank, error)
	FlushCache()
}

// RepositoryImpl implements Repository
type RepositoryImpl struct {
	db    *gorm.DB
	cache *gocache.Cache
}

// NewRepository creates a new protocol catalog repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{
		db:    db,
		cache: gocache.New(10*time.Minute, 15*time.Minute),
	}
}

// BanksFor returns the bank definitions, with instruments and
// recurrence resolved, of every protocol effective for the study at
// asOf, ordered by bank id.
func (r *RepositoryImpl) BanksFor(ctx context.Context, studyID uint64, asOf time.Time) ([]domain.QuestionnaireBank, error) {
	key := fmt.Sprintf("banks:%d:%s", studyID, asOf.Format("2006-01-02"))
	if cached, found := r.cache.Get(key); found {
		return cached.([]domain.QuestionnaireBank), nil
	}

	var protocolIDs []uint64
	err := r.db.WithContext(ctx).
		Model(&domain.ResearchProtocol{}).
		Where("study_id = ?", studyID).
		Where("retired_as_of IS NULL OR retired_as_of > ?", asOf).
		Order("id ASC").
		Pluck("id", &protocolIDs).Error
	if err != nil {
		return nil, err
	}
	if len(protocolIDs) == 0 {
		return nil, nil
	}

	var banks []domain.QuestionnaireBank
	err = r.db.WithContext(ctx).
		Where("research_protocol_id IN ?", protocolIDs).
		Preload("Recurrence").
		Preload("Instruments").
		Order("id ASC").
		Find(&banks).Error
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, banks, gocache.DefaultExpiration)
	return banks, nil
}

// FlushCache drops every cached catalog entry. Protocol mutations are
// rare and coarse, so flushing the whole cache is fine.
func (r *RepositoryImpl) FlushCache() {
	r.cache.Flush()
}
