package timeline

import (
	"context"
	defError "errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/uwcirg/truenth-portal-sub002/internal/clock"
	"github.com/uwcirg/truenth-portal-sub002/internal/consent"
	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
	"github.com/uwcirg/truenth-portal-sub002/redis"
)

// How often a build loses the generation race before we give up and
// leave the entry stale for the next read
const maxSupersededRebuilds = 3

// buildLockTTL bounds the cross-process advisory lock
const buildLockTTL = 30 * time.Second

// ConsentSource feeds consent history into builds
type ConsentSource interface {
	History(ctx context.Context, subjectID string, studyID uint64) ([]domain.ConsentEvent, error)
	SubjectsForStudy(ctx context.Context, studyID uint64) ([]string, error)
}

// BankSource feeds protocol bank definitions into builds
type BankSource interface {
	BanksFor(ctx context.Context, studyID uint64, asOf time.Time) ([]domain.QuestionnaireBank, error)
	FlushCache()
}

// ResponseSource feeds submitted responses into builds
type ResponseSource interface {
	ForSubject(ctx context.Context, subjectID string, studyID uint64) ([]domain.QuestionnaireResponse, error)
}

// Coordinator owns cache invalidation and rebuild scheduling. At most
// one build runs per (subject, study) in this process; concurrent
// readers of a stale entry share the single build's result.
type Coordinator struct {
	store      Store
	consents   ConsentSource
	banks      BankSource
	responses  ResponseSource
	clock      clock.Clock
	cache      *redis.Cache
	group      singleflight.Group
	log        zerolog.Logger
	maxRetries uint64
	workers    int
}

// NewCoordinator creates a rebuild coordinator
func NewCoordinator(
	store Store,
	consents ConsentSource,
	banks BankSource,
	responses ResponseSource,
	clk clock.Clock,
	cache *redis.Cache,
	log zerolog.Logger,
	maxRetries int,
	workers int,
) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Coordinator{
		store:      store,
		consents:   consents,
		banks:      banks,
		responses:  responses,
		clock:      clk,
		cache:      cache,
		log:        log.With().Str("component", "timeline").Logger(),
		maxRetries: uint64(maxRetries),
		workers:    workers,
	}
}

type buildResult struct {
	rows       []domain.TimelineRow
	generation uint64
}

// Get returns the current timeline rows and their generation,
// rebuilding first when the entry is stale. Subjects with multiple
// trailing active consents rebuild from scratch on every call.
func (c *Coordinator) Get(ctx context.Context, subjectID string, studyID uint64) ([]domain.TimelineRow, uint64, error) {
	state, err := c.store.State(ctx, subjectID, studyID)
	if err != nil {
		return nil, 0, err
	}

	forced, err := c.ForcesRebuild(ctx, subjectID, studyID)
	if err != nil {
		return nil, 0, err
	}

	if state.Valid && !forced {
		rows, err := c.store.Rows(ctx, subjectID, studyID)
		return rows, state.CurrentGeneration, err
	}

	v, err, _ := c.group.Do(cacheKey(subjectID, studyID), func() (any, error) {
		if forced {
			if _, err := c.store.Reserve(ctx, subjectID, studyID); err != nil {
				return nil, err
			}
		}
		return c.rebuild(ctx, subjectID, studyID)
	})
	if err != nil {
		return nil, 0, err
	}
	result := v.(buildResult)
	return result.rows, result.generation, nil
}

// ForcesRebuild reports whether the subject carries multiple trailing
// active consents, the data-repair condition that bypasses the cache
func (c *Coordinator) ForcesRebuild(ctx context.Context, subjectID string, studyID uint64) (bool, error) {
	events, err := c.consents.History(ctx, subjectID, studyID)
	if err != nil {
		return false, err
	}
	return consent.ActiveCount(events) > 1, nil
}

// Invalidate marks one (subject, study) entry stale. Idempotent; the
// rebuild is paid for by the next Get.
func (c *Coordinator) Invalidate(ctx context.Context, subjectID string, studyID uint64) error {
	reserved, err := c.store.Reserve(ctx, subjectID, studyID)
	if err != nil {
		return err
	}
	c.cache.IncrementVersion(ctx, versionKey(subjectID, studyID))
	c.log.Debug().
		Str("subject", subjectID).
		Uint64("study", studyID).
		Uint64("reserved", reserved).
		Msg("timeline invalidated")
	return nil
}

// InvalidateStudy coarsely invalidates every subject consented to the
// study, e.g. after a protocol or recurrence mutation. Returns the
// number of subjects marked stale.
func (c *Coordinator) InvalidateStudy(ctx context.Context, studyID uint64) (int, error) {
	c.banks.FlushCache()

	subjects, err := c.consents.SubjectsForStudy(ctx, studyID)
	if err != nil {
		return 0, err
	}
	for _, subjectID := range subjects {
		if err := c.Invalidate(ctx, subjectID, studyID); err != nil {
			return 0, err
		}
	}
	c.log.Info().Uint64("study", studyID).Int("subjects", len(subjects)).
		Msg("study timeline invalidated")
	return len(subjects), nil
}

// Warmup eagerly rebuilds every stale entry for a study, bounded by the
// configured worker count
func (c *Coordinator) Warmup(ctx context.Context, studyID uint64) error {
	subjects, err := c.consents.SubjectsForStudy(ctx, studyID)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, subjectID := range subjects {
		subjectID := subjectID
		g.Go(func() error {
			_, _, err := c.Get(ctx, subjectID, studyID)
			return err
		})
	}
	return g.Wait()
}

// rebuild runs builds until one lands or its reservation race is
// clearly lost. Each iteration reads its target generation before
// touching inputs, so an invalidation arriving mid-build is detected at
// replace time.
func (c *Coordinator) rebuild(ctx context.Context, subjectID string, studyID uint64) (buildResult, error) {
	release := c.acquireBuildLock(ctx, subjectID, studyID)
	defer release()

	for attempt := 0; attempt < maxSupersededRebuilds; attempt++ {
		result, err := c.buildOnce(ctx, subjectID, studyID)
		if err == nil {
			return result, nil
		}
		if defError.Is(err, errors.ErrBuildSuperseded) {
			c.log.Debug().
				Str("subject", subjectID).
				Uint64("study", studyID).
				Int("attempt", attempt+1).
				Msg("build superseded, retrying with fresh generation")
			continue
		}
		return buildResult{}, err
	}
	return buildResult{}, errors.Transient(
		fmt.Errorf("timeline for %s study %d: %w", subjectID, studyID, errors.ErrBuildSuperseded))
}

func (c *Coordinator) buildOnce(ctx context.Context, subjectID string, studyID uint64) (buildResult, error) {
	state, err := c.store.State(ctx, subjectID, studyID)
	if err != nil {
		return buildResult{}, err
	}
	generation := state.ReservedGeneration

	events, err := c.consents.History(ctx, subjectID, studyID)
	if err != nil {
		return buildResult{}, err
	}

	asOf := c.clock.Now()
	if anchor := consent.Anchor(events); anchor != nil {
		asOf = *anchor
	}
	banks, err := c.banks.BanksFor(ctx, studyID, asOf)
	if err != nil {
		return buildResult{}, err
	}

	responses, err := c.responses.ForSubject(ctx, subjectID, studyID)
	if err != nil {
		return buildResult{}, err
	}

	rows, err := Build(BuildInput{
		SubjectID:  subjectID,
		StudyID:    studyID,
		Consents:   events,
		Banks:      banks,
		Responses:  responses,
		Now:        c.clock.Now(),
		Generation: generation,
	})
	if err != nil {
		c.log.Error().Err(err).
			Str("subject", subjectID).
			Uint64("study", studyID).
			Msg("timeline build aborted; cache left stale")
		return buildResult{}, err
	}

	// Transient store failures retry with exponential backoff; a lost
	// generation race is final for this attempt.
	replace := func() error {
		err := c.store.Replace(ctx, subjectID, studyID, generation, rows)
		if defError.Is(err, errors.ErrBuildSuperseded) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(replace, policy); err != nil {
		if defError.Is(err, errors.ErrBuildSuperseded) {
			return buildResult{}, err
		}
		return buildResult{}, errors.Transient(err)
	}

	return buildResult{rows: rows, generation: generation}, nil
}

// acquireBuildLock takes the cross-process advisory lock, polling
// briefly when another process holds it. Correctness never depends on
// the lock; the replace CAS settles races.
func (c *Coordinator) acquireBuildLock(ctx context.Context, subjectID string, studyID uint64) func() {
	key := "qbt:lock:" + cacheKey(subjectID, studyID)
	for i := 0; i < 20; i++ {
		acquired, release := c.cache.TryLock(ctx, key, buildLockTTL)
		if acquired {
			return release
		}
		select {
		case <-ctx.Done():
			return func() {}
		case <-time.After(250 * time.Millisecond):
		}
	}
	return func() {}
}

func cacheKey(subjectID string, studyID uint64) string {
	return fmt.Sprintf("%s:%d", subjectID, studyID)
}

func versionKey(subjectID string, studyID uint64) string {
	return fmt.Sprintf("qbt:%s:%d:version", subjectID, studyID)
}
