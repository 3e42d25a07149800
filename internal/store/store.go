// Package store persists pipeline events in Qdrant. Every event keeps one
// point whose id is derived from the original event id, so each pipeline
// stage writes to the same point instead of appending new ones. Stages
// that arrive before the record exists (out-of-order redelivery) create a
// zero-vector stub that a later full upsert overwrites.
package store

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// scrollPageSize bounds one scroll page when walking the whole collection.
const scrollPageSize = 250

// Config locates the Qdrant instance and the collection to use.
type Config struct {
	Host       string
	Port       int
	Collection string
}

// Store is the Qdrant-backed event store shared by the pipeline workers and
// the retrieval API.
type Store struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
	log        *zap.Logger
}

// NewStore connects to Qdrant. It does not touch the collection; call
// InitializeCollection once at startup.
func NewStore(cfg Config, embedder Embedder, logger *zap.Logger) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &Store{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
		log:        logger,
	}, nil
}

// InitializeCollection creates the collection when it does not exist yet.
// Vector size follows the embedder; distance is cosine. Payload index
// creation failures are logged, not fatal. Safe to call from every service
// at startup.
func (s *Store) InitializeCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.embedder.Dimension()),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", s.collection, err)
		}
		s.log.Info("collection created",
			zap.String("collection", s.collection),
			zap.Int("vector_size", s.embedder.Dimension()),
		)
	}

	s.createIndexes(ctx)
	return nil
}

func (s *Store) createIndexes(ctx context.Context) {
	indexes := []*qdrant.CreateFieldIndexCollection{
		{
			CollectionName: s.collection,
			FieldName:      "source",
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		},
		{
			CollectionName: s.collection,
			FieldName:      "final_score",
			FieldType:      qdrant.FieldType_FieldTypeFloat.Enum(),
		},
		{
			CollectionName: s.collection,
			FieldName:      "timestamp",
			FieldType:      qdrant.FieldType_FieldTypeDatetime.Enum(),
		},
		{
			CollectionName: s.collection,
			FieldName:      "content",
			FieldType:      qdrant.FieldType_FieldTypeText.Enum(),
			FieldIndexParams: &qdrant.PayloadIndexParams{
				IndexParams: &qdrant.PayloadIndexParams_TextIndexParams{
					TextIndexParams: &qdrant.TextIndexParams{
						Tokenizer:   qdrant.TokenizerType_Whitespace,
						Lowercase:   qdrant.PtrOf(true),
						MinTokenLen: qdrant.PtrOf(uint64(2)),
						MaxTokenLen: qdrant.PtrOf(uint64(20)),
					},
				},
			},
		},
	}

	for _, idx := range indexes {
		if _, err := s.client.CreateFieldIndex(ctx, idx); err != nil {
			s.log.Warn("payload index creation failed",
				zap.String("field", idx.FieldName),
				zap.Error(err),
			)
		}
	}
}

// UpsertEvent writes one event payload, keyed by payload["original_id"].
// With a non-empty content the embedding is recomputed and the full point
// replaced. Without content an existing record is patched in place; a
// missing one gets a zero-vector stub carrying the payload. Writes wait
// for the store's acknowledgement so the broker ack that follows is
// honest.
func (s *Store) UpsertEvent(ctx context.Context, payload map[string]any) error {
	originalID, _ := payload["original_id"].(string)
	if originalID == "" {
		return fmt.Errorf("upsert event: payload has no original_id")
	}

	if content, _ := payload["content"].(string); content != "" {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("embed event %s: %w", originalID, err)
		}
		return s.writePoint(ctx, originalID, vec, payload)
	}

	return s.PatchEvent(ctx, originalID, payload)
}

// PatchEvent merges fields into the payload of an existing record without
// touching its vector. If the record is missing, a zero-vector stub
// carrying the fields is created so a later full upsert can fill in the
// vector.
func (s *Store) PatchEvent(ctx context.Context, originalID string, fields map[string]any) error {
	existing, err := s.RetrieveEvent(ctx, originalID)
	if err != nil {
		return err
	}

	if existing != nil {
		_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Payload:        qdrant.NewValueMap(fields),
			PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(PointID(originalID))),
		})
		if err != nil {
			return fmt.Errorf("patch event %s: %w", originalID, err)
		}
		return nil
	}

	s.log.Warn("patching unknown event, writing stub", zap.String("event_id", originalID))
	stub := map[string]any{"original_id": originalID}
	for k, v := range fields {
		stub[k] = v
	}
	return s.writePoint(ctx, originalID, make([]float32, s.embedder.Dimension()), stub)
}

func (s *Store) writePoint(ctx context.Context, originalID string, vec []float32, payload map[string]any) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(PointID(originalID)),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", originalID, err)
	}
	return nil
}

// RetrieveEvent fetches one event by its original id. A missing event
// returns (nil, nil) so callers can distinguish absence from failure.
func (s *Store) RetrieveEvent(ctx context.Context, originalID string) (*Record, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(PointID(originalID))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve event %s: %w", originalID, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	rec := toRecord(points[0])
	return &rec, nil
}

// ListEvents returns a page of all stored events, newest first.
func (s *Store) ListEvents(ctx context.Context, limit, offset int) ([]Record, error) {
	recs, err := s.scrollAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(recs)
	return page(recs, limit, offset), nil
}

// ListFilteredEvents returns events judged relevant that have not been
// ranked yet, newest first. "Not ranked" is the absence of a final score.
func (s *Store) ListFilteredEvents(ctx context.Context) ([]Record, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchBool("is_relevant", true),
			qdrant.NewIsEmpty("final_score"),
		},
	}
	recs, err := s.scrollAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(recs)
	return recs, nil
}

// rankedFilter selects events the ranker has scored. Presence of the
// final score is the predicate, not its value, so negative scores still
// count as ranked.
func rankedFilter() *qdrant.Filter {
	return &qdrant.Filter{
		MustNot: []*qdrant.Condition{
			qdrant.NewIsEmpty("final_score"),
		},
	}
}

// ListRankedEvents returns ranked events ordered by final score, best
// first. A non-positive limit returns all of them.
func (s *Store) ListRankedEvents(ctx context.Context, limit int) ([]Record, error) {
	recs, err := s.scrollAll(ctx, rankedFilter())
	if err != nil {
		return nil, err
	}
	sortByFinalScoreDesc(recs)
	return page(recs, limit, 0), nil
}

// SearchEventsByKeyword runs a full-text match on content, newest first.
func (s *Store) SearchEventsByKeyword(ctx context.Context, keyword string, limit int) ([]Record, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchText("content", keyword),
		},
	}
	recs, err := s.scrollAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(recs)
	return page(recs, limit, 0), nil
}

// SearchEventsByVector embeds the query and returns the nearest events by
// cosine similarity.
func (s *Store) SearchEventsByVector(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	recs := make([]Record, 0, len(points))
	for _, p := range points {
		recs = append(recs, Record{
			Key:     p.GetId().GetUuid(),
			Payload: payloadToMap(p.GetPayload()),
			Score:   p.GetScore(),
		})
	}
	return recs, nil
}

// DeleteEvents removes the points for the given original ids. Best effort,
// one batch.
func (s *Store) DeleteEvents(ctx context.Context, originalIDs []string) error {
	if len(originalIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(originalIDs))
	for _, id := range originalIDs {
		ids = append(ids, qdrant.NewID(PointID(id)))
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

// CountEvents returns the exact number of stored events.
func (s *Store) CountEvents(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// scrollAll walks the collection page by page using the scroll cursor and
// returns every matching record.
func (s *Store) scrollAll(ctx context.Context, filter *qdrant.Filter) ([]Record, error) {
	var (
		recs   []Record
		offset *qdrant.PointId
	)
	for {
		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			Offset:         offset,
		})
		if err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			recs = append(recs, toRecord(p))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return recs, nil
		}
	}
}

func toRecord(p *qdrant.RetrievedPoint) Record {
	return Record{
		Key:     p.GetId().GetUuid(),
		Payload: payloadToMap(p.GetPayload()),
	}
}
