package connector

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

// maxTitleLen caps stored titles; pages occasionally put paragraphs inside
// anchors.
const maxTitleLen = 200

// Publisher publishes one typed message. Satisfied by broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, msg any) error
}

// dedupStore is the registry slice the connector needs.
type dedupStore interface {
	FilterNewItems(ctx context.Context, sourceID int64, itemIDs []string) ([]string, error)
	MarkProcessed(ctx context.Context, sourceID int64, itemIDs []string) error
}

// Connector handles poll commands: scrape, dedup, emit raw events.
type Connector struct {
	scraper Scraper
	store   dedupStore
	events  Publisher
	log     *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(scraper Scraper, store dedupStore, events Publisher, logger *zap.Logger) *Connector {
	return &Connector{
		scraper: scraper,
		store:   store,
		events:  events,
		log:     logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// HandlePollSource processes one poll command. Scrape and publish failures
// are returned for redelivery; a malformed command or a non-http target is
// acked since retrying cannot fix it. Fresh items are committed to the
// dedup ledger before they are emitted, so no (source, href) pair ever
// produces two raw events.
func (c *Connector) HandlePollSource(ctx context.Context, msg *nats.Msg) error {
	var cmd event.PollSource
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		return broker.Dropf("malformed PollSource payload: %v", err)
	}

	var srcCfg struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal([]byte(cmd.ConfigJSON), &srcCfg)
	target := srcCfg.URL
	if target == "" {
		target = cmd.Name
	}
	if !strings.HasPrefix(target, "http") {
		c.log.Warn("source has no http target, skipping",
			zap.Int64("source_id", cmd.ID),
			zap.String("target", target),
		)
		return nil
	}

	items, err := c.scraper.Scrape(ctx, target)
	if err != nil {
		return err
	}

	urls := make([]string, 0, len(items))
	byURL := make(map[string]Item, len(items))
	for _, item := range items {
		urls = append(urls, item.URL)
		byURL[item.URL] = item
	}

	fresh, err := c.store.FilterNewItems(ctx, cmd.ID, urls)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		c.log.Debug("no new items", zap.Int64("source_id", cmd.ID), zap.Int("scraped", len(items)))
		return nil
	}

	// commit the dedup ledger first: a crash between commit and publish
	// loses those items, a crash in the other order would emit duplicates
	if err := c.store.MarkProcessed(ctx, cmd.ID, fresh); err != nil {
		return err
	}

	timestamp := c.now().UTC().Format(time.RFC3339)
	for _, url := range fresh {
		item := byURL[url]
		title := truncate(item.Title, maxTitleLen)
		raw := event.RawEvent{
			ID:        c.newID(),
			Source:    cmd.Name,
			Title:     title,
			Content:   title,
			Timestamp: timestamp,
		}
		if err := c.events.Publish(ctx, raw); err != nil {
			return err
		}
	}

	c.log.Info("source polled",
		zap.Int64("source_id", cmd.ID),
		zap.Int("scraped", len(items)),
		zap.Int("emitted", len(fresh)),
	)
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
