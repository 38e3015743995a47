package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/ingest"
	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/metrics"
	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/scoring"
)

// Store is everything the HTTP surface reads and writes. Both SQL stores
// and memstore satisfy it.
type Store interface {
	ingest.TenderStore
	ingest.BatchSink
	ingest.ProfileReader
	scoring.RescoreStore
	GetTender(ctx context.Context, id uuid.UUID) (*models.Tender, error)
	UpdateTender(ctx context.Context, t *models.Tender) error
	DeleteTender(ctx context.Context, id uuid.UUID) error
	SaveProfile(ctx context.Context, p *models.CompanyProfile) error
	GetBatch(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error)
	ListBatches(ctx context.Context, limit int) ([]models.ImportBatch, error)
}

// Fetcher downloads a spreadsheet for import-by-URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*ingest.RemoteFile, error)
}

type Options struct {
	Store    Store
	Importer *ingest.Importer
	Scorer   *scoring.Engine
	// Fetcher is optional; without it import-by-URL answers 503.
	Fetcher        Fetcher
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	MaxUploadBytes int64
	CORSOrigins    []string
	JobTimeout     time.Duration
}

type Server struct {
	Echo *echo.Echo

	store      Store
	importer   *ingest.Importer
	scorer     *scoring.Engine
	fetcher    Fetcher
	metrics    *metrics.Metrics
	log        *zap.Logger
	maxUpload  int64
	jobTimeout time.Duration
	sanitizer  *bluemonday.Policy

	jobMu sync.Mutex
	jobs  map[string]*backgroundJob
}

func NewServer(opts Options) *Server {
	if opts.Scorer == nil {
		opts.Scorer = scoring.NewEngine(nil)
	}
	if opts.Importer == nil {
		reporters := ingest.MultiReporter{ingest.LogReporter{}}
		if opts.Metrics != nil {
			reporters = append(reporters, opts.Metrics)
		}
		opts.Importer = ingest.NewImporter(opts.Store, opts.Store, opts.Store, ingest.Options{
			Scorer:   opts.Scorer,
			Reporter: reporters,
		})
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:4200"}
	}
	log := logger.Named(opts.Logger, "api")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(logger.Middleware(log))
	e.Use(middleware.Recover())
	if opts.Metrics != nil {
		e.Use(opts.Metrics.Middleware())
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s := &Server{
		Echo:       e,
		store:      opts.Store,
		importer:   opts.Importer,
		scorer:     opts.Scorer,
		fetcher:    opts.Fetcher,
		metrics:    opts.Metrics,
		log:        log,
		maxUpload:  opts.MaxUploadBytes,
		jobTimeout: opts.JobTimeout,
		sanitizer:  bluemonday.StrictPolicy(),
		jobs:       make(map[string]*backgroundJob),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.Echo.GET("/metrics", s.metrics.Handler())
	}

	api := s.Echo.Group("/api/v1")
	api.POST("/imports", s.handleUpload)
	api.POST("/imports/url", s.handleImportURL)
	api.GET("/imports", s.handleListImports)
	api.GET("/imports/:id", s.handleGetImport)

	api.GET("/tenders", s.handleListTenders)
	api.GET("/tenders/:id", s.handleGetTender)
	api.PATCH("/tenders/:id", s.handlePatchTender)
	api.DELETE("/tenders/:id", s.handleDeleteTender)
	api.POST("/tenders/:id/score", s.handleScoreTender)

	api.GET("/profile", s.handleGetProfile)
	api.PUT("/profile", s.handlePutProfile)
	api.GET("/jobs/:id", s.handleJobStatus)

	api.POST("/schema/resolve", s.handleResolveSchema)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// Shutdown cancels running jobs and drains HTTP connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	for _, job := range s.jobs {
		if job.Status == jobRunning && job.cancel != nil {
			job.cancel()
		}
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func parseID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}
