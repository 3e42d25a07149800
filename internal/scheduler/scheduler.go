// Package scheduler turns the source catalog into a steady stream of poll
// commands. Every active source gets a recurring job; each tick re-reads
// the source row so a deactivation or deletion takes effect on the next
// tick even if the lifecycle message was lost.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/registry"
)

// tickTimeout bounds the db read and publish of one tick.
const tickTimeout = 15 * time.Second

// Publisher publishes one typed message. Satisfied by broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, msg any) error
}

// sourceReader is the registry slice the scheduler needs.
type sourceReader interface {
	GetSource(ctx context.Context, id int64) (registry.Source, error)
	ListActiveSources(ctx context.Context) ([]registry.Source, error)
}

// Scheduler maintains one cron entry per active source.
type Scheduler struct {
	store           sourceReader
	poll            Publisher
	cron            *cron.Cron
	defaultInterval time.Duration
	log             *zap.Logger

	mu   sync.Mutex
	jobs map[int64]cron.EntryID
}

// New builds a stopped scheduler; call Bootstrap then Start.
func New(store sourceReader, poll Publisher, defaultInterval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:           store,
		poll:            poll,
		cron:            cron.New(),
		defaultInterval: defaultInterval,
		log:             logger,
		jobs:            make(map[int64]cron.EntryID),
	}
}

// Bootstrap schedules every currently active source. Run once at startup,
// before consuming lifecycle messages, so a restart recovers the full job
// set without replaying history.
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	sources, err := s.store.ListActiveSources(ctx)
	if err != nil {
		return err
	}
	for _, src := range sources {
		s.Schedule(src)
	}
	s.log.Info("scheduler bootstrapped", zap.Int("sources", len(sources)))
	return nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Schedule adds or replaces the polling job for a source.
func (s *Scheduler) Schedule(src registry.Source) {
	interval := s.pollInterval(src)
	id := src.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.jobs[id]; ok {
		s.cron.Remove(prev)
	}
	s.jobs[id] = s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.tick(id)
	}))

	s.log.Info("source scheduled",
		zap.Int64("source_id", id),
		zap.String("name", src.Name),
		zap.Duration("interval", interval),
	)
}

// Unschedule drops the polling job for a source id. Unknown ids are a
// no-op.
func (s *Scheduler) Unschedule(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[id]
	if !ok {
		return
	}
	s.cron.Remove(entry)
	delete(s.jobs, id)
	s.log.Info("source unscheduled", zap.Int64("source_id", id))
}

// JobCount reports how many sources are currently scheduled.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// tick reads the source fresh and publishes a poll command. A missing row
// unschedules the job; an inactive row skips the tick but keeps the job,
// the removal message will clean it up.
func (s *Scheduler) tick(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	src, err := s.store.GetSource(ctx, id)
	if errors.Is(err, registry.ErrSourceNotFound) {
		s.log.Warn("scheduled source vanished", zap.Int64("source_id", id))
		s.Unschedule(id)
		return
	}
	if err != nil {
		s.log.Error("tick read failed", zap.Int64("source_id", id), zap.Error(err))
		return
	}
	if !src.IsActive {
		s.log.Debug("skipping inactive source", zap.Int64("source_id", id))
		return
	}

	msg := event.PollSource{
		ID:         src.ID,
		Name:       src.Name,
		Type:       src.Type,
		ConfigJSON: src.ConfigJSON,
		IsActive:   src.IsActive,
	}
	if err := s.poll.Publish(ctx, msg); err != nil {
		s.log.Error("poll publish failed", zap.Int64("source_id", id), zap.Error(err))
		return
	}
	s.log.Debug("poll command published", zap.Int64("source_id", id))
}

// pollInterval reads poll_interval_seconds from the source config, falling
// back to the platform default.
func (s *Scheduler) pollInterval(src registry.Source) time.Duration {
	var cfg struct {
		PollIntervalSeconds int `json:"poll_interval_seconds"`
	}
	if err := json.Unmarshal([]byte(src.ConfigJSON), &cfg); err == nil && cfg.PollIntervalSeconds > 0 {
		return time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	return s.defaultInterval
}
