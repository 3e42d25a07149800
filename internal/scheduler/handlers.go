package scheduler

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/registry"
)

// HandleNewSource consumes a source announcement and schedules it.
func (s *Scheduler) HandleNewSource(_ context.Context, msg *nats.Msg) error {
	var announced event.NewSource
	if err := json.Unmarshal(msg.Data, &announced); err != nil {
		return broker.Dropf("malformed NewSource payload: %v", err)
	}
	if announced.ID == 0 {
		return broker.Dropf("NewSource without id")
	}
	if !announced.IsActive {
		s.log.Debug("ignoring inactive source announcement", zap.Int64("source_id", announced.ID))
		return nil
	}

	s.Schedule(registry.Source{
		ID:         announced.ID,
		Name:       announced.Name,
		Type:       announced.Type,
		ConfigJSON: announced.ConfigJSON,
		IsActive:   announced.IsActive,
	})
	return nil
}

// HandleRemovedSource consumes a removal announcement and drops the job.
func (s *Scheduler) HandleRemovedSource(_ context.Context, msg *nats.Msg) error {
	var removed event.RemovedSource
	if err := json.Unmarshal(msg.Data, &removed); err != nil {
		return broker.Dropf("malformed RemovedSource payload: %v", err)
	}
	if removed.ID == 0 {
		return broker.Dropf("RemovedSource without id")
	}

	s.Unschedule(removed.ID)
	s.log.Info("source removed from schedule", zap.Int64("source_id", removed.ID))
	return nil
}
