package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

// Publisher publishes one typed message. Satisfied by broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, msg any) error
}

// sourceStore is the slice of Store the service needs; tests substitute a
// fake.
type sourceStore interface {
	CreateSource(ctx context.Context, src Source) (Source, error)
	GetSource(ctx context.Context, id int64) (Source, error)
	UpdateSource(ctx context.Context, src Source) (Source, error)
	DeleteSource(ctx context.Context, id int64) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)
}

// Service layers source lifecycle announcements on top of the store. The
// rule: whenever a source becomes pollable a NewSource goes out, whenever
// it stops being pollable a RemovedSource goes out. The scheduler is the
// only consumer of either.
type Service struct {
	store         sourceStore
	newSource     Publisher
	removedSource Publisher
	log           *zap.Logger
}

// NewService wires the store to the two lifecycle publishers.
func NewService(store sourceStore, newSource, removedSource Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:         store,
		newSource:     newSource,
		removedSource: removedSource,
		log:           logger,
	}
}

// Create inserts the source and, when active, announces it.
func (s *Service) Create(ctx context.Context, src Source) (Source, error) {
	created, err := s.store.CreateSource(ctx, src)
	if err != nil {
		return Source{}, err
	}
	if created.IsActive {
		if err := s.announceNew(ctx, created); err != nil {
			return Source{}, err
		}
	}
	return created, nil
}

// Get fetches one source.
func (s *Service) Get(ctx context.Context, id int64) (Source, error) {
	return s.store.GetSource(ctx, id)
}

// List returns all sources.
func (s *Service) List(ctx context.Context) ([]Source, error) {
	return s.store.ListSources(ctx)
}

// Update overwrites the source and announces activation flips: an inactive
// source turning active is announced as new, an active one turning
// inactive as removed.
func (s *Service) Update(ctx context.Context, src Source) (Source, error) {
	prev, err := s.store.GetSource(ctx, src.ID)
	if err != nil {
		return Source{}, err
	}

	updated, err := s.store.UpdateSource(ctx, src)
	if err != nil {
		return Source{}, err
	}

	switch {
	case !prev.IsActive && updated.IsActive:
		if err := s.announceNew(ctx, updated); err != nil {
			return Source{}, err
		}
	case prev.IsActive && !updated.IsActive:
		if err := s.announceRemoved(ctx, updated.ID); err != nil {
			return Source{}, err
		}
	}
	return updated, nil
}

// Delete removes the source and, when it was active, announces its removal.
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteSource(ctx, id)
	if err != nil {
		return err
	}
	if deleted.IsActive {
		return s.announceRemoved(ctx, deleted.ID)
	}
	return nil
}

func (s *Service) announceNew(ctx context.Context, src Source) error {
	msg := event.NewSource{
		ID:         src.ID,
		Name:       src.Name,
		Type:       src.Type,
		ConfigJSON: src.ConfigJSON,
		IsActive:   src.IsActive,
	}
	if err := s.newSource.Publish(ctx, msg); err != nil {
		return fmt.Errorf("announce new source %d: %w", src.ID, err)
	}
	s.log.Info("source announced", zap.Int64("source_id", src.ID), zap.String("name", src.Name))
	return nil
}

func (s *Service) announceRemoved(ctx context.Context, id int64) error {
	if err := s.removedSource.Publish(ctx, event.RemovedSource{ID: id}); err != nil {
		return fmt.Errorf("announce removed source %d: %w", id, err)
	}
	s.log.Info("source removal announced", zap.Int64("source_id", id))
	return nil
}
