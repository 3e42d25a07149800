package ranker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/config"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

func testConfig() *config.RankerConfig {
	return &config.RankerConfig{
		RankingParameters: config.RankingParameters{
			ImportanceWeight: 0.6,
			RecencyWeight:    0.4,
		},
		CategoryImportanceScores: map[string]float64{
			"Disaster": 0.9,
			"Politics": 0.5,
			"Other":    0.2,
		},
		RecencyDecay: config.RecencyDecay{
			HalfLifeHours: 24,
			MaxScore:      1.0,
		},
	}
}

func testScorer(now time.Time) *Scorer {
	s := NewScorer(testConfig())
	s.now = func() time.Time { return now }
	return s
}

func TestImportanceScore(t *testing.T) {
	s := testScorer(time.Now())

	tests := []struct {
		name       string
		categories []string
		want       float64
	}{
		{name: "single mapped", categories: []string{"Politics"}, want: 0.5},
		{name: "sum of several", categories: []string{"Politics", "Disaster"}, want: 1.4},
		{name: "unmapped uses Other", categories: []string{"Gardening"}, want: 0.2},
		{name: "mix of mapped and unmapped", categories: []string{"Gardening", "Politics"}, want: 0.7},
		{name: "empty uses Other", categories: nil, want: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.ImportanceScore(tt.categories))
		})
	}
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	s := testScorer(now)

	tests := []struct {
		name      string
		timestamp string
		want      float64
	}{
		{name: "fresh", timestamp: "2026-08-02T00:00:00Z", want: 1.0},
		{name: "one half life", timestamp: "2026-08-01T00:00:00Z", want: 0.5},
		{name: "two half lives", timestamp: "2026-07-31T00:00:00Z", want: 0.25},
		{name: "future clamps to fresh", timestamp: "2026-08-03T00:00:00Z", want: 1.0},
		{name: "malformed counts as fresh", timestamp: "yesterday", want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.RecencyScore(tt.timestamp), 1e-9)
		})
	}
}

func TestFinalScore(t *testing.T) {
	s := testScorer(time.Now())
	assert.InDelta(t, 0.6*0.9+0.4*0.5, s.FinalScore(0.9, 0.5), 1e-9)
}

type fakePatcher struct {
	patches map[string]map[string]any
	err     error
}

func newFakePatcher() *fakePatcher {
	return &fakePatcher{patches: make(map[string]map[string]any)}
}

func (f *fakePatcher) PatchEvent(_ context.Context, id string, fields map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.patches[id] = fields
	return nil
}

type fakePublisher struct {
	published []any
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, msg any) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func filteredMsg(t *testing.T, ev event.FilteredEvent) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return &nats.Msg{Data: data}
}

func TestHandleFilteredEvent(t *testing.T) {
	now := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	patcher := newFakePatcher()
	pub := &fakePublisher{}
	r := New(testScorer(now), patcher, pub, zaptest.NewLogger(t))

	err := r.HandleFilteredEvent(context.Background(), filteredMsg(t, event.FilteredEvent{
		ID:         "ev-1",
		Title:      "Quake hits coast",
		Timestamp:  "2026-08-01T00:00:00Z",
		Source:     "example",
		Categories: []string{"Disaster"},
		IsRelevant: true,
	}))
	require.NoError(t, err)

	patch := patcher.patches["ev-1"]
	require.NotNil(t, patch)
	assert.Equal(t, 0.9, patch["importance_score"])
	assert.InDelta(t, 0.5, patch["recency_score"].(float64), 1e-9)
	assert.InDelta(t, 0.6*0.9+0.4*0.5, patch["final_score"].(float64), 1e-9)

	require.Len(t, pub.published, 1)
	ranked := pub.published[0].(event.RankedEvent)
	assert.Equal(t, "ev-1", ranked.ID)
	assert.Equal(t, patch["final_score"], ranked.FinalScore)
	assert.True(t, ranked.IsRelevant)
}

func TestHandleFilteredEventStoreFailureRetries(t *testing.T) {
	patcher := newFakePatcher()
	patcher.err = errors.New("store down")
	r := New(testScorer(time.Now()), patcher, &fakePublisher{}, zaptest.NewLogger(t))

	err := r.HandleFilteredEvent(context.Background(), filteredMsg(t, event.FilteredEvent{
		ID: "ev-1", Timestamp: "2026-08-01T00:00:00Z",
	}))
	require.Error(t, err)
	var drop *broker.DropError
	assert.False(t, errors.As(err, &drop))
}

func TestHandleFilteredEventPublishFailureRetries(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	r := New(testScorer(time.Now()), newFakePatcher(), pub, zaptest.NewLogger(t))

	err := r.HandleFilteredEvent(context.Background(), filteredMsg(t, event.FilteredEvent{
		ID: "ev-1", Timestamp: "2026-08-01T00:00:00Z",
	}))
	require.Error(t, err)
}

func TestHandleFilteredEventDrops(t *testing.T) {
	r := New(testScorer(time.Now()), newFakePatcher(), &fakePublisher{}, zaptest.NewLogger(t))
	var drop *broker.DropError

	err := r.HandleFilteredEvent(context.Background(), &nats.Msg{Data: []byte("{broken")})
	require.ErrorAs(t, err, &drop)

	err = r.HandleFilteredEvent(context.Background(), filteredMsg(t, event.FilteredEvent{Title: "no id"}))
	require.ErrorAs(t, err, &drop)
}
