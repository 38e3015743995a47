package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/david/tender-scout/internal/ingest"
)

type resolveRequest struct {
	Header []string `json:"header"`
}

// handleResolveSchema shows how a header row would be mapped, for
// diagnosing spreadsheets that import zero rows.
func (s *Server) handleResolveSchema(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil || len(req.Header) == 0 {
		return errorJSON(c, http.StatusBadRequest, "header is required")
	}
	fm := ingest.ResolveSchema(req.Header)
	return c.JSON(http.StatusOK, map[string]any{
		"field_map":  fm,
		"unmapped":   fm.Unmapped(),
		"importable": fm.Has(ingest.FieldTitle),
	})
}
