package connector

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

const samplePage = `
<html><body>
  <a href="https://example.com/a">Global markets rally as central banks signal rate cuts</a>
  <a href="https://example.com/b">Short link</a>
  <a href="/relative/path">A relative link with a perfectly long headline text</a>
  <a href="https://example.com/c">Volcanic eruption forces evacuation of coastal towns</a>
  <a href="https://example.com/a">Global markets rally as central banks signal rate cuts</a>
  <a>Anchor without href that still has quite a long text in it</a>
</body></html>`

func TestExtractItems(t *testing.T) {
	items, err := extractItems(strings.NewReader(samplePage))
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "https://example.com/a", items[0].URL)
	assert.Equal(t, "Global markets rally as central banks signal rate cuts", items[0].Title)
	assert.Equal(t, "https://example.com/c", items[1].URL)
}

func TestExtractItemsCollapsesWhitespace(t *testing.T) {
	page := `<a href="https://example.com/x">Headline   with
		broken    spacing that is long enough to pass</a>`
	items, err := extractItems(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Headline with broken spacing that is long enough to pass", items[0].Title)
}

type fakeScraper struct {
	items []Item
	err   error
}

func (f *fakeScraper) Scrape(_ context.Context, _ string) ([]Item, error) {
	return f.items, f.err
}

type fakeDedup struct {
	seen      map[string]struct{}
	marked    [][]string
	filterErr error
	markErr   error
}

func newFakeDedup(seen ...string) *fakeDedup {
	f := &fakeDedup{seen: make(map[string]struct{})}
	for _, s := range seen {
		f.seen[s] = struct{}{}
	}
	return f
}

func (f *fakeDedup) FilterNewItems(_ context.Context, _ int64, itemIDs []string) ([]string, error) {
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	var fresh []string
	for _, id := range itemIDs {
		if _, ok := f.seen[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func (f *fakeDedup) MarkProcessed(_ context.Context, _ int64, itemIDs []string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, itemIDs)
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

func pollMsg(t *testing.T, cmd event.PollSource) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &nats.Msg{Data: data}
}

func newTestConnector(t *testing.T, scraper Scraper, dedup *fakeDedup, pub *fakePublisher) *Connector {
	c := New(scraper, dedup, pub, zaptest.NewLogger(t))
	c.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	ids := 0
	c.newID = func() string { ids++; return string(rune('a' + ids - 1)) }
	return c
}

func TestHandlePollSourceEmitsFreshItems(t *testing.T) {
	scraper := &fakeScraper{items: []Item{
		{URL: "https://example.com/a", Title: "Fresh headline about markets"},
		{URL: "https://example.com/b", Title: "Already seen headline text here"},
	}}
	dedup := newFakeDedup("https://example.com/b")
	pub := &fakePublisher{}
	c := newTestConnector(t, scraper, dedup, pub)

	err := c.HandlePollSource(context.Background(), pollMsg(t, event.PollSource{
		ID: 1, Name: "example", Type: "web", ConfigJSON: `{"url":"https://example.com"}`,
	}))
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	raw := pub.published[0].(event.RawEvent)
	assert.Equal(t, "example", raw.Source)
	assert.Equal(t, "Fresh headline about markets", raw.Title)
	assert.Equal(t, raw.Title, raw.Content)
	assert.Equal(t, "2026-08-01T12:00:00Z", raw.Timestamp)
	assert.NotEmpty(t, raw.ID)

	require.Len(t, dedup.marked, 1)
	assert.Equal(t, []string{"https://example.com/a"}, dedup.marked[0])
}

func TestHandlePollSourceTruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("x", 300)
	scraper := &fakeScraper{items: []Item{{URL: "https://example.com/a", Title: long}}}
	pub := &fakePublisher{}
	c := newTestConnector(t, scraper, newFakeDedup(), pub)

	err := c.HandlePollSource(context.Background(), pollMsg(t, event.PollSource{
		ID: 1, Name: "example", Type: "web", ConfigJSON: `{"url":"https://example.com"}`,
	}))
	require.NoError(t, err)

	raw := pub.published[0].(event.RawEvent)
	assert.Len(t, raw.Title, 200)
}

func TestHandlePollSourceNothingNew(t *testing.T) {
	scraper := &fakeScraper{items: []Item{{URL: "https://example.com/a", Title: "Already seen headline text"}}}
	dedup := newFakeDedup("https://example.com/a")
	pub := &fakePublisher{}
	c := newTestConnector(t, scraper, dedup, pub)

	err := c.HandlePollSource(context.Background(), pollMsg(t, event.PollSource{
		ID: 1, Name: "example", Type: "web", ConfigJSON: `{"url":"https://example.com"}`,
	}))
	require.NoError(t, err)
	assert.Empty(t, pub.published)
	assert.Empty(t, dedup.marked)
}

func TestHandlePollSourceScrapeFailureRetries(t *testing.T) {
	scraper := &fakeScraper{err: errors.New("connection refused")}
	c := newTestConnector(t, scraper, newFakeDedup(), &fakePublisher{})

	err := c.HandlePollSource(context.Background(), pollMsg(t, event.PollSource{
		ID: 1, Name: "example", Type: "web", ConfigJSON: `{"url":"https://example.com"}`,
	}))
	require.Error(t, err)
	var drop *broker.DropError
	assert.False(t, errors.As(err, &drop))
}

func TestHandlePollSourceMarksBeforePublishing(t *testing.T) {
	scraper := &fakeScraper{items: []Item{{URL: "https://example.com/a", Title: "Fresh headline about markets"}}}
	dedup := newFakeDedup()
	pub := &fakePublisher{err: errors.New("broker down")}
	c := newTestConnector(t, scraper, dedup, pub)

	err := c.HandlePollSource(context.Background(), pollMsg(t, event.PollSource{
		ID: 1, Name: "example", Type: "web", ConfigJSON: `{"url":"https://example.com"}`,
	}))
	require.Error(t, err)

	// the ledger commit happens first: losing an item beats duplicating it
	require.Len(t, dedup.marked, 1)
	assert.Equal(t, []string{"https://example.com/a"}, dedup.marked[0])
}

func TestHandlePollSourceMalformedPayloadIsDropped(t *testing.T) {
	c := newTestConnector(t, &fakeScraper{}, newFakeDedup(), &fakePublisher{})

	err := c.HandlePollSource(context.Background(), &nats.Msg{Data: []byte("{broken")})
	var drop *broker.DropError
	require.ErrorAs(t, err, &drop)
}

func TestHandlePollSourceNonHTTPTargetAcks(t *testing.T) {
	scraper := &fakeScraper{err: errors.New("scraper must not be called")}
	pub := &fakePublisher{}
	c := newTestConnector(t, scraper, newFakeDedup(), pub)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  event.PollSource
	}{
		{name: "empty config", cmd: event.PollSource{ID: 1, Name: "not-a-url", Type: "web", ConfigJSON: `{}`}},
		{name: "malformed config", cmd: event.PollSource{ID: 1, Name: "not-a-url", Type: "web", ConfigJSON: `nope`}},
		{name: "ftp url", cmd: event.PollSource{ID: 1, Name: "x", Type: "web", ConfigJSON: `{"url":"ftp://example.com"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, c.HandlePollSource(ctx, pollMsg(t, tt.cmd)))
			assert.Empty(t, pub.published)
		})
	}
}

func TestHandlePollSourceFallsBackToNameAsURL(t *testing.T) {
	scraper := &fakeScraper{items: []Item{{URL: "https://example.com/a", Title: "Fresh headline about markets"}}}
	pub := &fakePublisher{}
	c := newTestConnector(t, scraper, newFakeDedup(), pub)

	err := c.HandlePollSource(context.Background(), pollMsg(t, event.PollSource{
		ID: 1, Name: "https://example.com", Type: "web", ConfigJSON: `{}`,
	}))
	require.NoError(t, err)
	assert.Len(t, pub.published, 1)
}
