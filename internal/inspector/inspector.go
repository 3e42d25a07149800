package inspector

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/store"
)

// eventStore is the store slice the inspector needs.
type eventStore interface {
	RetrieveEvent(ctx context.Context, originalID string) (*store.Record, error)
	PatchEvent(ctx context.Context, originalID string, fields map[string]any) error
}

// Inspector is the anomaly-screening worker.
type Inspector struct {
	detectors []Detector
	store     eventStore
	log       *zap.Logger
}

func New(detectors []Detector, store eventStore, logger *zap.Logger) *Inspector {
	return &Inspector{detectors: detectors, store: store, log: logger}
}

// HandleRankedEvent screens one ranked event. The stored payload is the
// unit under inspection, with the message's final score merged in since a
// racing patch may not have landed yet. A missing record is skipped with
// an ack; the pipeline did not store the event, there is nothing to flag.
// Clean events are not patched at all.
func (i *Inspector) HandleRankedEvent(ctx context.Context, msg *nats.Msg) error {
	var ranked event.RankedEvent
	if err := json.Unmarshal(msg.Data, &ranked); err != nil {
		return broker.Dropf("malformed RankedEvent payload: %v", err)
	}
	if ranked.ID == "" {
		return broker.Dropf("RankedEvent without id")
	}

	rec, err := i.store.RetrieveEvent(ctx, ranked.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		i.log.Warn("ranked event has no stored record, skipping",
			zap.String("event_id", ranked.ID),
		)
		return nil
	}

	payload := rec.Payload
	payload["final_score"] = ranked.FinalScore

	for _, d := range i.detectors {
		tripped, err := d.Evaluate(ctx, payload)
		if err != nil {
			return err
		}
		if !tripped {
			continue
		}

		i.log.Warn("anomaly detected",
			zap.String("event_id", ranked.ID),
			zap.String("detector", d.Name()),
		)
		if err := i.store.PatchEvent(ctx, ranked.ID, map[string]any{"is_anomaly": true}); err != nil {
			return err
		}
		return nil
	}

	i.log.Debug("event passed inspection", zap.String("event_id", ranked.ID))
	return nil
}
