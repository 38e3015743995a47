package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/ingest"
	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/sheets"
)

func (s *Server) handleUpload(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.maxUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			return errorJSON(c, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		}
		return errorJSON(c, http.StatusBadRequest, "multipart field \"file\" is required")
	}
	if fh.Size > s.maxUpload {
		return errorJSON(c, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
	}
	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	return s.runImport(c, fh.Filename, f)
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

type importURLRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleImportURL(c echo.Context) error {
	if s.fetcher == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "import by URL is disabled")
	}
	var req importURLRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		return errorJSON(c, http.StatusBadRequest, "url is required")
	}

	file, err := s.fetcher.Fetch(c.Request().Context(), req.URL)
	if err != nil {
		logger.FromEcho(c).Warn("remote_fetch_failed", zap.String("url", req.URL), zap.Error(err))
		switch {
		case errors.Is(err, ingest.ErrInvalidURL):
			return errorJSON(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, ingest.ErrTooLarge):
			return errorJSON(c, http.StatusRequestEntityTooLarge, err.Error())
		default:
			return errorJSON(c, http.StatusBadGateway, "fetch failed: "+err.Error())
		}
	}
	return s.runImport(c, file.Name, file.Reader())
}

// runImport answers 201 with the batch, or an error body that still carries
// the batch when one was recorded.
func (s *Server) runImport(c echo.Context, fileName string, r io.Reader) error {
	batch, err := s.importer.ImportFile(c.Request().Context(), fileName, r)
	if err == nil {
		return c.JSON(http.StatusCreated, batch)
	}

	logger.FromEcho(c).Warn("import_failed", zap.String("file", fileName), zap.Error(err))
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sheets.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case batch != nil && batch.Status == models.BatchFailed && batch.CompletedAt != nil:
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, map[string]any{
		"error": err.Error(),
		"batch": batch,
	})
}

func (s *Server) handleListImports(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	batches, err := s.store.ListBatches(c.Request().Context(), limit)
	if err != nil {
		logger.FromEcho(c).Error("list_batches_failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return c.JSON(http.StatusOK, batches)
}

func (s *Server) handleGetImport(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	batch, err := s.store.GetBatch(c.Request().Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Not found")
	}
	if err != nil {
		logger.FromEcho(c).Error("get_batch_failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return c.JSON(http.StatusOK, batch)
}
