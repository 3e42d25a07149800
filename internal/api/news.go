package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/store"
)

const defaultListLimit = 20

// EventReader is the read-side slice of the vector store. Satisfied by
// store.Store.
type EventReader interface {
	ListEvents(ctx context.Context, limit, offset int) ([]store.Record, error)
	ListFilteredEvents(ctx context.Context) ([]store.Record, error)
	ListRankedEvents(ctx context.Context, limit int) ([]store.Record, error)
	SearchEventsByKeyword(ctx context.Context, keyword string, limit int) ([]store.Record, error)
	SearchEventsByVector(ctx context.Context, query string, limit int) ([]store.Record, error)
	RetrieveEvent(ctx context.Context, originalID string) (*store.Record, error)
	CountEvents(ctx context.Context) (uint64, error)
}

// Publisher publishes one typed message. Satisfied by broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, msg any) error
}

// NewsHandler serves the retrieval endpoints and ingest.
type NewsHandler struct {
	reader EventReader
	ingest Publisher
	log    *zap.Logger
}

func NewNewsHandler(reader EventReader, ingest Publisher, logger *zap.Logger) *NewsHandler {
	return &NewsHandler{reader: reader, ingest: ingest, log: logger}
}

func (h *NewsHandler) Register(e *echo.Echo) {
	e.GET("/news", h.List)
	e.GET("/news/filtered", h.ListFiltered)
	e.GET("/news/ranked", h.ListRanked)
	e.GET("/news/count", h.Count)
	e.POST("/news/rerank", h.KeywordSearch)
	e.POST("/news/search", h.VectorSearch)
	e.GET("/retrieve", h.Retrieve)
	e.POST("/ingest", h.Ingest)
}

func (h *NewsHandler) List(c echo.Context) error {
	limit := queryInt(c, "limit", defaultListLimit)
	offset := queryInt(c, "offset", 0)

	recs, err := h.reader.ListEvents(c.Request().Context(), limit, offset)
	if err != nil {
		h.log.Error("list events failed", zap.Error(err))
		return errResponse(c, http.StatusInternalServerError, "store unavailable")
	}
	return c.JSON(http.StatusOK, payloads(recs))
}

func (h *NewsHandler) ListFiltered(c echo.Context) error {
	limit := queryInt(c, "limit", defaultListLimit)

	recs, err := h.reader.ListFilteredEvents(c.Request().Context())
	if err != nil {
		h.log.Error("list filtered events failed", zap.Error(err))
		return errResponse(c, http.StatusInternalServerError, "store unavailable")
	}
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return c.JSON(http.StatusOK, payloads(recs))
}

func (h *NewsHandler) ListRanked(c echo.Context) error {
	limit := queryInt(c, "limit", defaultListLimit)

	recs, err := h.reader.ListRankedEvents(c.Request().Context(), limit)
	if err != nil {
		h.log.Error("list ranked events failed", zap.Error(err))
		return errResponse(c, http.StatusInternalServerError, "store unavailable")
	}
	return c.JSON(http.StatusOK, payloads(recs))
}

func (h *NewsHandler) Count(c echo.Context) error {
	n, err := h.reader.CountEvents(c.Request().Context())
	if err != nil {
		h.log.Error("count events failed", zap.Error(err))
		return errResponse(c, http.StatusInternalServerError, "store unavailable")
	}
	return c.JSON(http.StatusOK, map[string]uint64{"count": n})
}

type searchReq struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// KeywordSearch backs POST /news/rerank: a full-text match on content.
func (h *NewsHandler) KeywordSearch(c echo.Context) error {
	var req searchReq
	if err := c.Bind(&req); err != nil || req.Query == "" {
		return errResponse(c, http.StatusBadRequest, "query is required")
	}
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	recs, err := h.reader.SearchEventsByKeyword(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		h.log.Error("keyword search failed", zap.Error(err))
		return errResponse(c, http.StatusInternalServerError, "store unavailable")
	}
	return c.JSON(http.StatusOK, payloads(recs))
}

// VectorSearch backs POST /news/search: nearest neighbours by embedding.
func (h *NewsHandler) VectorSearch(c echo.Context) error {
	var req searchReq
	if err := c.Bind(&req); err != nil || req.Query == "" {
		return errResponse(c, http.StatusBadRequest, "query is required")
	}
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	recs, err := h.reader.SearchEventsByVector(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		h.log.Error("vector search failed", zap.Error(err))
		return errResponse(c, http.StatusInternalServerError, "store unavailable")
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *NewsHandler) Retrieve(c echo.Context) error {
	id := c.QueryParam("batch_id")
	if id == "" {
		return errResponse(c, http.StatusBadRequest, "batch_id is required")
	}

	rec, err := h.reader.RetrieveEvent(c.Request().Context(), id)
	if err != nil {
		h.log.Error("retrieve event failed", zap.String("event_id", id), zap.Error(err))
		return errResponse(c, http.StatusInternalServerError, "store unavailable")
	}
	if rec == nil {
		return errResponse(c, http.StatusNotFound, "event not found")
	}
	return c.JSON(http.StatusOK, rec.Payload)
}

type ingestEvent struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Ingest accepts a batch of events and enqueues them for the pipeline.
// Events enter at the top, through raw.events, so they pass the same
// filter and ranking stages as scraped ones.
func (h *NewsHandler) Ingest(c echo.Context) error {
	var events []ingestEvent
	if err := c.Bind(&events); err != nil {
		return errResponse(c, http.StatusBadRequest, "body must be an array of events")
	}
	if len(events) == 0 {
		return errResponse(c, http.StatusBadRequest, "no events supplied")
	}

	ctx := c.Request().Context()
	for _, in := range events {
		raw := event.RawEvent{
			ID:        in.ID,
			Source:    in.Source,
			Title:     in.Title,
			Content:   in.Content,
			Timestamp: in.Timestamp,
		}
		if raw.ID == "" {
			raw.ID = uuid.NewString()
		}
		if err := h.ingest.Publish(ctx, raw); err != nil {
			h.log.Error("ingest publish failed", zap.String("event_id", raw.ID), zap.Error(err))
			return errResponse(c, http.StatusInternalServerError, "broker unavailable")
		}
	}

	h.log.Info("events ingested", zap.Int("count", len(events)))
	return c.JSON(http.StatusAccepted, map[string]int{"queued": len(events)})
}

func payloads(recs []store.Record) []map[string]any {
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Payload)
	}
	return out
}
