package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/models"
)

func (s *Server) handleListTenders(c echo.Context) error {
	params := models.ListParams{
		Query:     strings.TrimSpace(c.QueryParam("q")),
		SourceTag: models.SourceTag(c.QueryParam("source_tag")),
		SortBy:    c.QueryParam("sort"),
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		params.Offset = o
	}
	if v, err := strconv.Atoi(c.QueryParam("min_score")); err == nil && v > 0 {
		params.MinScore = v
	}
	if raw := c.QueryParam("batch_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid batch_id")
		}
		params.BatchID = &id
	}
	switch params.SourceTag {
	case "", models.SourceGeM, models.SourceNonGeM:
	default:
		return errorJSON(c, http.StatusBadRequest, "source_tag must be gem or non_gem")
	}

	result, err := s.store.ListTenders(c.Request().Context(), params)
	if err != nil {
		logger.FromEcho(c).Error("list_tenders_failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) loadTender(c echo.Context) (*models.Tender, error) {
	id, ok := parseID(c)
	if !ok {
		return nil, errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	t, err := s.store.GetTender(c.Request().Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, errorJSON(c, http.StatusNotFound, "Not found")
	}
	if err != nil {
		logger.FromEcho(c).Error("get_tender_failed", zap.Error(err))
		return nil, errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return t, nil
}

func (s *Server) handleGetTender(c echo.Context) error {
	t, err := s.loadTender(c)
	if t == nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// handlePatchTender applies a user edit and rescores in full when a field
// the scorer reads changed.
func (s *Server) handlePatchTender(c echo.Context) error {
	var patch models.TenderPatch
	if err := c.Bind(&patch); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return errorJSON(c, http.StatusBadRequest, "title must not be empty")
		}
		patch.Title = &title
	}
	if patch.Value != nil && *patch.Value < 0 {
		return errorJSON(c, http.StatusBadRequest, "value must not be negative")
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(s.sanitizer.Sanitize(*patch.Description))
		patch.Description = &desc
	}

	t, err := s.loadTender(c)
	if t == nil {
		return err
	}
	ctx := c.Request().Context()
	if patch.Apply(t) {
		s.rescoreTender(c, t)
	}

	err = s.store.UpdateTender(ctx, t)
	switch {
	case errors.Is(err, models.ErrDuplicate):
		return errorJSON(c, http.StatusConflict, "another tender already uses this reference number or title")
	case errors.Is(err, models.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "Not found")
	case err != nil:
		logger.FromEcho(c).Error("update_tender_failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return c.JSON(http.StatusOK, t)
}

// rescoreTender replaces t.Score when a profile exists; otherwise the tender
// stays unscored.
func (s *Server) rescoreTender(c echo.Context, t *models.Tender) bool {
	profile, err := s.store.GetProfile(c.Request().Context())
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logger.FromEcho(c).Warn("profile_unavailable", zap.Error(err))
		}
		return false
	}
	bd := s.scorer.Score(t, profile)
	now := time.Now().UTC()
	t.Score = &bd
	t.ScoredAt = &now
	return true
}

func (s *Server) handleDeleteTender(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	err := s.store.DeleteTender(c.Request().Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Not found")
	}
	if err != nil {
		logger.FromEcho(c).Error("delete_tender_failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleScoreTender(c echo.Context) error {
	t, err := s.loadTender(c)
	if t == nil {
		return err
	}
	if !s.rescoreTender(c, t) {
		return errorJSON(c, http.StatusConflict, "no company profile configured")
	}
	if err := s.store.SaveScore(c.Request().Context(), t.ID, t.Score, *t.ScoredAt); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "Not found")
		}
		logger.FromEcho(c).Error("save_score_failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return c.JSON(http.StatusOK, t.Score)
}
