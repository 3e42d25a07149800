// Package filter classifies raw events with an LLM: first a relevance
// verdict, then, for relevant events, a category list. Relevant events are
// the only ones that reach the vector store; the record is written before
// the filtered message goes out, so the ranker always finds it in place.
package filter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/llm"
)

// fallbackCategory labels relevant events the model could not categorise.
const fallbackCategory = "Other"

// Publisher publishes one typed message. Satisfied by broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, msg any) error
}

// eventUpserter is the store slice the filter needs.
type eventUpserter interface {
	UpsertEvent(ctx context.Context, payload map[string]any) error
}

// Filter is the relevance-classification worker.
type Filter struct {
	llm             llm.Client
	store           eventUpserter
	events          Publisher
	relevancePrompt string
	categoryPrompt  string
	log             *zap.Logger
}

func New(client llm.Client, store eventUpserter, events Publisher, relevancePrompt, categoryPrompt string, logger *zap.Logger) *Filter {
	return &Filter{
		llm:             client,
		store:           store,
		events:          events,
		relevancePrompt: relevancePrompt,
		categoryPrompt:  categoryPrompt,
		log:             logger,
	}
}

// HandleRawEvent classifies one raw event. Model, store and publish
// failures are returned for redelivery; irrelevant events are acked and
// dropped without touching the store.
func (f *Filter) HandleRawEvent(ctx context.Context, msg *nats.Msg) error {
	var raw event.RawEvent
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		return broker.Dropf("malformed RawEvent payload: %v", err)
	}
	if raw.ID == "" {
		return broker.Dropf("RawEvent without id")
	}

	verdict, err := f.llm.Complete(ctx, renderPrompt(f.relevancePrompt, raw))
	if err != nil {
		return err
	}
	if !parseRelevance(verdict) {
		f.log.Info("event discarded as irrelevant",
			zap.String("event_id", raw.ID),
			zap.String("title", raw.Title),
		)
		return nil
	}

	answer, err := f.llm.Complete(ctx, renderPrompt(f.categoryPrompt, raw))
	if err != nil {
		return err
	}
	categories := parseCategories(answer)

	payload := map[string]any{
		"original_id": raw.ID,
		"title":       raw.Title,
		"content":     raw.Content,
		"timestamp":   raw.Timestamp,
		"source":      raw.Source,
		"categories":  categories,
		"is_relevant": true,
	}
	if err := f.store.UpsertEvent(ctx, payload); err != nil {
		return err
	}

	filtered := event.FilteredEvent{
		ID:         raw.ID,
		Title:      raw.Title,
		Timestamp:  raw.Timestamp,
		Source:     raw.Source,
		Categories: categories,
		IsRelevant: true,
	}
	if err := f.events.Publish(ctx, filtered); err != nil {
		return err
	}

	f.log.Info("event passed filter",
		zap.String("event_id", raw.ID),
		zap.Strings("categories", categories),
	)
	return nil
}

// renderPrompt substitutes the {title} and {content} placeholders.
func renderPrompt(template string, ev event.RawEvent) string {
	out := strings.ReplaceAll(template, "{title}", ev.Title)
	return strings.ReplaceAll(out, "{content}", ev.Content)
}

// parseRelevance reads the model's verdict: any answer containing RELEVANT
// or POTENTIALLY_RELEVANT, case-insensitive, counts as relevant. Negative
// labels that embed the word (IRRELEVANT, NOT_RELEVANT) are checked first
// so they do not false-positive on the substring match.
func parseRelevance(verdict string) bool {
	v := strings.ToUpper(verdict)
	for _, negative := range []string{"IRRELEVANT", "NOT_RELEVANT", "NOT RELEVANT"} {
		if strings.Contains(v, negative) {
			return false
		}
	}
	return strings.Contains(v, "RELEVANT")
}

// parseCategories splits the model's comma-separated list, dropping blanks.
// An unusable answer falls back to the catch-all category.
func parseCategories(answer string) []string {
	var categories []string
	for _, c := range strings.Split(answer, ",") {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	if len(categories) == 0 {
		return []string{fallbackCategory}
	}
	return categories
}
