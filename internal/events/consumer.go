package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Mutation kinds carried on the event stream
const (
	KindConsent  = "consent"
	KindResponse = "response"
	KindProtocol = "protocol"
)

// Mutation is the wire shape of one upstream write. Consent and
// response mutations name a subject; protocol mutations invalidate the
// whole study.
type Mutation struct {
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id,omitempty"`
	StudyID   uint64 `json:"study_id"`
}

// Invalidator is the timeline hook the consumer drives
type Invalidator interface {
	Invalidate(ctx context.Context, subjectID string, studyID uint64) error
	InvalidateStudy(ctx context.Context, studyID uint64) (int, error)
}

// Consumer turns mutation events from the portal's kafka topic into
// cache invalidations
type Consumer struct {
	reader      *kafka.Reader
	invalidator Invalidator
	log         zerolog.Logger
}

// NewConsumer builds a consumer over the configured brokers
func NewConsumer(brokers, topic, groupID string, invalidator Invalidator, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:      reader,
		invalidator: invalidator,
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Run consumes until the context is cancelled
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("could not read mutation event")
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

// Close releases the underlying reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	var mutation Mutation
	if err := json.Unmarshal(msg.Value, &mutation); err != nil {
		c.log.Warn().Err(err).Str("key", string(msg.Key)).Msg("dropping undecodable mutation event")
		return
	}

	switch mutation.Kind {
	case KindProtocol:
		count, err := c.invalidator.InvalidateStudy(ctx, mutation.StudyID)
		if err != nil {
			c.log.Error().Err(err).Uint64("study", mutation.StudyID).Msg("coarse invalidation failed")
			return
		}
		c.log.Info().Uint64("study", mutation.StudyID).Int("subjects", count).Msg("protocol mutation applied")
	case KindConsent, KindResponse:
		if mutation.SubjectID == "" {
			c.log.Warn().Str("kind", mutation.Kind).Msg("dropping mutation event without subject")
			return
		}
		if err := c.invalidator.Invalidate(ctx, mutation.SubjectID, mutation.StudyID); err != nil {
			c.log.Error().Err(err).
				Str("subject", mutation.SubjectID).
				Uint64("study", mutation.StudyID).
				Msg("invalidation failed")
		}
	default:
		c.log.Warn().Str("kind", mutation.Kind).Msg("dropping mutation event of unknown kind")
	}
}
