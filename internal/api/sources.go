package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/registry"
)

// SourceService is the registry surface the handlers need. Satisfied by
// registry.Service.
type SourceService interface {
	Create(ctx context.Context, src registry.Source) (registry.Source, error)
	Get(ctx context.Context, id int64) (registry.Source, error)
	List(ctx context.Context) ([]registry.Source, error)
	Update(ctx context.Context, src registry.Source) (registry.Source, error)
	Delete(ctx context.Context, id int64) error
}

// SourcesHandler serves the source CRUD endpoints.
type SourcesHandler struct {
	svc SourceService
	log *zap.Logger
}

func NewSourcesHandler(svc SourceService, logger *zap.Logger) *SourcesHandler {
	return &SourcesHandler{svc: svc, log: logger}
}

func (h *SourcesHandler) Register(e *echo.Echo) {
	g := e.Group("/sources")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// sourceReq accepts config either as a JSON object or omitted entirely;
// it is stored as a JSON document either way.
type sourceReq struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Config   json.RawMessage `json:"config"`
	IsActive bool            `json:"is_active"`
}

type sourceResp struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Config    json.RawMessage `json:"config"`
	IsActive  bool            `json:"is_active"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func toResp(src registry.Source) sourceResp {
	cfg := json.RawMessage(src.ConfigJSON)
	if len(cfg) == 0 {
		cfg = json.RawMessage(`{}`)
	}
	return sourceResp{
		ID:        src.ID,
		Name:      src.Name,
		Type:      src.Type,
		Config:    cfg,
		IsActive:  src.IsActive,
		CreatedAt: src.CreatedAt.Format(time.RFC3339),
		UpdatedAt: src.UpdatedAt.Format(time.RFC3339),
	}
}

func (r sourceReq) toSource() registry.Source {
	cfg := "{}"
	if len(r.Config) > 0 {
		cfg = string(r.Config)
	}
	return registry.Source{
		Name:       r.Name,
		Type:       r.Type,
		ConfigJSON: cfg,
		IsActive:   r.IsActive,
	}
}

func (h *SourcesHandler) Create(c echo.Context) error {
	var req sourceReq
	if err := c.Bind(&req); err != nil {
		return errResponse(c, http.StatusBadRequest, "malformed body")
	}
	if req.Name == "" || req.Type == "" {
		return errResponse(c, http.StatusBadRequest, "name and type are required")
	}

	created, err := h.svc.Create(c.Request().Context(), req.toSource())
	if err != nil {
		h.log.Error("create source failed", zap.String("name", req.Name), zap.Error(err))
		return handleSvcError(c, err)
	}
	return c.JSON(http.StatusCreated, toResp(created))
}

func (h *SourcesHandler) List(c echo.Context) error {
	sources, err := h.svc.List(c.Request().Context())
	if err != nil {
		h.log.Error("list sources failed", zap.Error(err))
		return handleSvcError(c, err)
	}
	out := make([]sourceResp, 0, len(sources))
	for _, s := range sources {
		out = append(out, toResp(s))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SourcesHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errResponse(c, http.StatusBadRequest, "invalid source id")
	}

	src, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return handleSvcError(c, err)
	}
	return c.JSON(http.StatusOK, toResp(src))
}

func (h *SourcesHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errResponse(c, http.StatusBadRequest, "invalid source id")
	}

	var req sourceReq
	if err := c.Bind(&req); err != nil {
		return errResponse(c, http.StatusBadRequest, "malformed body")
	}
	if req.Name == "" || req.Type == "" {
		return errResponse(c, http.StatusBadRequest, "name and type are required")
	}

	src := req.toSource()
	src.ID = id
	updated, err := h.svc.Update(c.Request().Context(), src)
	if err != nil {
		h.log.Error("update source failed", zap.Int64("source_id", id), zap.Error(err))
		return handleSvcError(c, err)
	}
	return c.JSON(http.StatusOK, toResp(updated))
}

func (h *SourcesHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errResponse(c, http.StatusBadRequest, "invalid source id")
	}

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return handleSvcError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
