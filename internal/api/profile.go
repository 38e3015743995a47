package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/scoring"
)

const (
	jobRunning   = "running"
	jobCompleted = "completed"
	jobFailed    = "failed"
	jobCancelled = "cancelled"
)

type backgroundJob struct {
	ID        string                 `json:"id"`
	Status    string                 `json:"status"`
	StartedAt time.Time              `json:"started_at"`
	EndedAt   time.Time              `json:"ended_at,omitempty"`
	Result    *scoring.RescoreResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	cancel    context.CancelFunc
}

func (s *Server) handleGetProfile(c echo.Context) error {
	p, err := s.store.GetProfile(c.Request().Context())
	if errors.Is(err, models.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "no company profile configured")
	}
	if err != nil {
		logger.FromEcho(c).Error("get_profile_failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return c.JSON(http.StatusOK, p)
}

// handlePutProfile replaces the profile and starts a background rescore of
// every tender. A rescore still running for an older profile is cancelled.
func (s *Server) handlePutProfile(c echo.Context) error {
	var p models.CompanyProfile
	if err := c.Bind(&p); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	if p.TurnoverAmount < 0 {
		return errorJSON(c, http.StatusBadRequest, "turnover_amount must not be negative")
	}
	p.Normalize()
	if err := s.store.SaveProfile(c.Request().Context(), &p); err != nil {
		logger.FromEcho(c).Error("save_profile_failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}

	job := s.startRescore(c.Request().Context(), &p)
	return c.JSON(http.StatusAccepted, map[string]any{
		"profile": p,
		"job_id":  job.ID,
		"poll":    fmt.Sprintf("/api/v1/jobs/%s", job.ID),
	})
}

func (s *Server) startRescore(reqCtx context.Context, p *models.CompanyProfile) *backgroundJob {
	// Detach from the request but keep its logger.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), s.jobTimeout)

	job := &backgroundJob{
		ID:        uuid.New().String()[:8],
		Status:    jobRunning,
		StartedAt: time.Now(),
		cancel:    cancel,
	}

	s.jobMu.Lock()
	for _, prev := range s.jobs {
		if prev.Status == jobRunning {
			prev.cancel()
		}
	}
	s.jobs = map[string]*backgroundJob{job.ID: job}
	s.jobMu.Unlock()

	profile := *p
	log := logger.FromContext(reqCtx).With(zap.String("job_id", job.ID))
	go func() {
		defer cancel()
		res, err := s.scorer.RescoreAll(jobCtx, s.store, &profile, func(r scoring.RescoreResult) {
			s.jobMu.Lock()
			job.Result = &r
			s.jobMu.Unlock()
		})
		if s.metrics != nil {
			s.metrics.ObserveRescore(res.Scored, res.Failed)
		}

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.Result = &res
		job.EndedAt = time.Now()
		switch {
		case errors.Is(err, context.Canceled):
			job.Status = jobCancelled
			job.Error = err.Error()
		case err != nil:
			job.Status = jobFailed
			job.Error = err.Error()
			log.Warn("rescore_job_failed", zap.Error(err))
		default:
			job.Status = jobCompleted
			log.Info("rescore_job_completed", zap.Int("scored", res.Scored), zap.Int("failed", res.Failed))
		}
	}()
	return job
}

func (s *Server) handleJobStatus(c echo.Context) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job, ok := s.jobs[c.Param("id")]
	if !ok {
		return errorJSON(c, http.StatusNotFound, "job not found")
	}
	resp := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = *job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}
