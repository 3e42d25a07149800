// Package api is the HTTP surface: source CRUD backed by the registry and
// the read side of the event corpus backed by the vector store, plus the
// ingest endpoint that feeds the pipeline directly.
package api

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gsantopaolo/sentinel-AI/internal/registry"
)

type errResp struct {
	Error string `json:"error"`
}

func errResponse(c echo.Context, status int, msg string) error {
	return c.JSON(status, errResp{Error: msg})
}

func handleSvcError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, registry.ErrSourceNotFound):
		return errResponse(c, 404, "source not found")
	default:
		return errResponse(c, 500, "internal error")
	}
}

// queryInt reads an integer query parameter with a default.
func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
