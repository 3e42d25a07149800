package filter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

const (
	relevancePrompt = "Is this relevant? {title} / {content}"
	categoryPrompt  = "Categorize: {title}"
)

// scriptedLLM returns canned answers in order.
type scriptedLLM struct {
	answers []string
	prompts []string
	err     error
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return "", errors.New("no scripted answer left")
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

type fakeUpserter struct {
	upserts []map[string]any
	err     error
}

func (f *fakeUpserter) UpsertEvent(_ context.Context, payload map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, payload)
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

func rawMsg(t *testing.T, ev event.RawEvent) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return &nats.Msg{Data: data}
}

func sampleRaw() event.RawEvent {
	return event.RawEvent{
		ID:        "ev-1",
		Source:    "example",
		Title:     "Severe flooding hits the capital",
		Content:   "Severe flooding hits the capital",
		Timestamp: "2026-08-01T12:00:00Z",
	}
}

func TestRelevantEventIsStoredAndPublished(t *testing.T) {
	model := &scriptedLLM{answers: []string{"RELEVANT", "Disaster, Weather"}}
	upserter := &fakeUpserter{}
	pub := &fakePublisher{}
	f := New(model, upserter, pub, relevancePrompt, categoryPrompt, zaptest.NewLogger(t))

	err := f.HandleRawEvent(context.Background(), rawMsg(t, sampleRaw()))
	require.NoError(t, err)

	require.Len(t, upserter.upserts, 1)
	payload := upserter.upserts[0]
	assert.Equal(t, "ev-1", payload["original_id"])
	assert.Equal(t, "Severe flooding hits the capital", payload["content"])
	assert.Equal(t, true, payload["is_relevant"])
	assert.Equal(t, []string{"Disaster", "Weather"}, payload["categories"])

	require.Len(t, pub.published, 1)
	filtered := pub.published[0].(event.FilteredEvent)
	assert.Equal(t, "ev-1", filtered.ID)
	assert.True(t, filtered.IsRelevant)
	assert.Equal(t, []string{"Disaster", "Weather"}, filtered.Categories)

	// prompts carry the event text
	require.Len(t, model.prompts, 2)
	assert.True(t, strings.Contains(model.prompts[0], "Severe flooding hits the capital"))
}

func TestIrrelevantEventIsDropped(t *testing.T) {
	model := &scriptedLLM{answers: []string{"NOT_RELEVANT"}}
	upserter := &fakeUpserter{}
	pub := &fakePublisher{}
	f := New(model, upserter, pub, relevancePrompt, categoryPrompt, zaptest.NewLogger(t))

	err := f.HandleRawEvent(context.Background(), rawMsg(t, sampleRaw()))
	require.NoError(t, err)

	assert.Empty(t, upserter.upserts)
	assert.Empty(t, pub.published)
}

func TestModelFailureRetries(t *testing.T) {
	model := &scriptedLLM{err: errors.New("rate limited")}
	f := New(model, &fakeUpserter{}, &fakePublisher{}, relevancePrompt, categoryPrompt, zaptest.NewLogger(t))

	err := f.HandleRawEvent(context.Background(), rawMsg(t, sampleRaw()))
	require.Error(t, err)
	var drop *broker.DropError
	assert.False(t, errors.As(err, &drop))
}

func TestStoreFailureRetries(t *testing.T) {
	model := &scriptedLLM{answers: []string{"RELEVANT", "Disaster"}}
	upserter := &fakeUpserter{err: errors.New("store unavailable")}
	f := New(model, upserter, &fakePublisher{}, relevancePrompt, categoryPrompt, zaptest.NewLogger(t))

	err := f.HandleRawEvent(context.Background(), rawMsg(t, sampleRaw()))
	require.Error(t, err)
}

func TestPublishFailureRetries(t *testing.T) {
	model := &scriptedLLM{answers: []string{"RELEVANT", "Disaster"}}
	pub := &fakePublisher{err: errors.New("broker down")}
	f := New(model, &fakeUpserter{}, pub, relevancePrompt, categoryPrompt, zaptest.NewLogger(t))

	err := f.HandleRawEvent(context.Background(), rawMsg(t, sampleRaw()))
	require.Error(t, err)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	f := New(&scriptedLLM{}, &fakeUpserter{}, &fakePublisher{}, relevancePrompt, categoryPrompt, zaptest.NewLogger(t))

	err := f.HandleRawEvent(context.Background(), &nats.Msg{Data: []byte("{broken")})
	var drop *broker.DropError
	require.ErrorAs(t, err, &drop)

	err = f.HandleRawEvent(context.Background(), rawMsg(t, event.RawEvent{Title: "no id"}))
	require.ErrorAs(t, err, &drop)
}

func TestParseRelevance(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{verdict: "RELEVANT", want: true},
		{verdict: "relevant", want: true},
		{verdict: "This article is RELEVANT.", want: true},
		{verdict: "POTENTIALLY_RELEVANT", want: true},
		{verdict: "NOT_RELEVANT", want: false},
		{verdict: "NOT RELEVANT", want: false},
		{verdict: "IRRELEVANT", want: false},
		{verdict: "no idea", want: false},
		{verdict: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.verdict, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRelevance(tt.verdict))
		})
	}
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   []string
	}{
		{name: "plain list", answer: "Politics, Economy", want: []string{"Politics", "Economy"}},
		{name: "extra whitespace", answer: " Politics ,  Economy ", want: []string{"Politics", "Economy"}},
		{name: "empty entries dropped", answer: "Politics,,", want: []string{"Politics"}},
		{name: "empty answer falls back", answer: "", want: []string{"Other"}},
		{name: "only separators falls back", answer: ", ,", want: []string{"Other"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCategories(tt.answer))
		})
	}
}
