package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/registry"
)

type fakeReader struct {
	mu      sync.Mutex
	sources map[int64]registry.Source
}

func newFakeReader(sources ...registry.Source) *fakeReader {
	f := &fakeReader{sources: make(map[int64]registry.Source)}
	for _, s := range sources {
		f.sources[s.ID] = s
	}
	return f
}

func (f *fakeReader) GetSource(_ context.Context, id int64) (registry.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[id]
	if !ok {
		return registry.Source{}, registry.ErrSourceNotFound
	}
	return src, nil
}

func (f *fakeReader) ListActiveSources(_ context.Context) ([]registry.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []registry.Source
	for _, s := range f.sources {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []any
}

func (f *fakePublisher) Publish(_ context.Context, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) messages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.published...)
}

func newTestScheduler(t *testing.T, reader *fakeReader) (*Scheduler, *fakePublisher) {
	pub := &fakePublisher{}
	return New(reader, pub, 5*time.Minute, zaptest.NewLogger(t)), pub
}

func TestBootstrapSchedulesActiveSources(t *testing.T) {
	reader := newFakeReader(
		registry.Source{ID: 1, Name: "hn", IsActive: true},
		registry.Source{ID: 2, Name: "bbc", IsActive: true},
	)
	s, _ := newTestScheduler(t, reader)

	require.NoError(t, s.Bootstrap(context.Background()))
	assert.Equal(t, 2, s.JobCount())
}

func TestScheduleReplacesExistingJob(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeReader())

	s.Schedule(registry.Source{ID: 1, Name: "hn", IsActive: true})
	s.Schedule(registry.Source{ID: 1, Name: "hn", ConfigJSON: `{"poll_interval_seconds":60}`, IsActive: true})

	assert.Equal(t, 1, s.JobCount())
}

func TestUnscheduleUnknownIsNoop(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeReader())
	s.Unschedule(99)
	assert.Equal(t, 0, s.JobCount())
}

func TestTickPublishesPollCommand(t *testing.T) {
	src := registry.Source{ID: 7, Name: "hn", Type: "web", ConfigJSON: `{"url":"https://x"}`, IsActive: true}
	reader := newFakeReader(src)
	s, pub := newTestScheduler(t, reader)
	s.Schedule(src)

	s.tick(7)

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	poll := msgs[0].(event.PollSource)
	assert.Equal(t, int64(7), poll.ID)
	assert.Equal(t, "hn", poll.Name)
	assert.Equal(t, `{"url":"https://x"}`, poll.ConfigJSON)
}

func TestTickSkipsInactiveSource(t *testing.T) {
	src := registry.Source{ID: 7, Name: "hn", IsActive: false}
	s, pub := newTestScheduler(t, newFakeReader(src))
	s.Schedule(registry.Source{ID: 7, Name: "hn", IsActive: true})

	s.tick(7)

	assert.Empty(t, pub.messages())
	// the job stays, removal is the lifecycle message's job
	assert.Equal(t, 1, s.JobCount())
}

func TestTickUnschedulesVanishedSource(t *testing.T) {
	s, pub := newTestScheduler(t, newFakeReader())
	s.Schedule(registry.Source{ID: 7, Name: "hn", IsActive: true})

	s.tick(7)

	assert.Empty(t, pub.messages())
	assert.Equal(t, 0, s.JobCount())
}

func TestPollIntervalFromConfig(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeReader())

	tests := []struct {
		name   string
		config string
		want   time.Duration
	}{
		{name: "explicit interval", config: `{"poll_interval_seconds":60}`, want: time.Minute},
		{name: "missing falls back", config: `{"url":"https://x"}`, want: 5 * time.Minute},
		{name: "malformed falls back", config: `not json`, want: 5 * time.Minute},
		{name: "zero falls back", config: `{"poll_interval_seconds":0}`, want: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.pollInterval(registry.Source{ConfigJSON: tt.config})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleNewSource(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeReader())

	payload, _ := json.Marshal(event.NewSource{ID: 3, Name: "hn", IsActive: true})
	err := s.HandleNewSource(context.Background(), &nats.Msg{Data: payload})
	require.NoError(t, err)
	assert.Equal(t, 1, s.JobCount())
}

func TestHandleNewSourceMalformedIsDropped(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeReader())

	err := s.HandleNewSource(context.Background(), &nats.Msg{Data: []byte("{broken")})
	var drop *broker.DropError
	require.ErrorAs(t, err, &drop)
}

func TestHandleRemovedSource(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeReader())
	s.Schedule(registry.Source{ID: 3, Name: "hn", IsActive: true})

	payload, _ := json.Marshal(event.RemovedSource{ID: 3})
	err := s.HandleRemovedSource(context.Background(), &nats.Msg{Data: payload})
	require.NoError(t, err)
	assert.Equal(t, 0, s.JobCount())
}
