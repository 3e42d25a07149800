package ranker

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

// Publisher publishes one typed message. Satisfied by broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, msg any) error
}

// eventPatcher is the store slice the ranker needs.
type eventPatcher interface {
	PatchEvent(ctx context.Context, originalID string, fields map[string]any) error
}

// Ranker is the scoring worker.
type Ranker struct {
	scorer *Scorer
	store  eventPatcher
	events Publisher
	log    *zap.Logger
}

func New(scorer *Scorer, store eventPatcher, events Publisher, logger *zap.Logger) *Ranker {
	return &Ranker{scorer: scorer, store: store, events: events, log: logger}
}

// HandleFilteredEvent scores one filtered event, persists the scores and
// forwards the ranked message. Store and broker failures are returned for
// redelivery; scoring the same event twice overwrites the same fields, so
// redelivery is harmless.
func (r *Ranker) HandleFilteredEvent(ctx context.Context, msg *nats.Msg) error {
	var filtered event.FilteredEvent
	if err := json.Unmarshal(msg.Data, &filtered); err != nil {
		return broker.Dropf("malformed FilteredEvent payload: %v", err)
	}
	if filtered.ID == "" {
		return broker.Dropf("FilteredEvent without id")
	}

	importance := r.scorer.ImportanceScore(filtered.Categories)
	recency := r.scorer.RecencyScore(filtered.Timestamp)
	final := r.scorer.FinalScore(importance, recency)

	patch := map[string]any{
		"importance_score": importance,
		"recency_score":    recency,
		"final_score":      final,
	}
	if err := r.store.PatchEvent(ctx, filtered.ID, patch); err != nil {
		return err
	}

	ranked := event.RankedEvent{
		ID:              filtered.ID,
		Title:           filtered.Title,
		Timestamp:       filtered.Timestamp,
		Source:          filtered.Source,
		Categories:      filtered.Categories,
		IsRelevant:      filtered.IsRelevant,
		ImportanceScore: importance,
		RecencyScore:    recency,
		FinalScore:      final,
	}
	if err := r.events.Publish(ctx, ranked); err != nil {
		return err
	}

	r.log.Info("event ranked",
		zap.String("event_id", filtered.ID),
		zap.Float64("final_score", final),
	)
	return nil
}
