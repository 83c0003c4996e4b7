// Package api serves the matcher's HTTP surface: probes, metrics, match and
// job reads, and embedding ingest.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/matching"
	"resume-matcher/internal/models"
)

const (
	defaultMatchLimit = 100
	maxMatchLimit     = 1000
	checkTimeout      = 3 * time.Second
)

type MatchLister interface {
	ListByApplicant(ctx context.Context, applicantID string, limit int) ([]models.MatchRecord, error)
}

type JobLookup interface {
	Job(ctx context.Context, jobID string) (*models.JobPosting, bool, error)
}

type EmbeddingWriter interface {
	Upsert(ctx context.Context, e models.ApplicantEmbedding) error
}

type MatchRunner interface {
	Run(ctx context.Context, selector matching.ApplicantSelector) (*models.RunResult, error)
}

// Check is a readiness probe of one backing service.
type Check func(ctx context.Context) error

// Dependencies of the API. Runner may be nil, in which case embedding ingest
// never triggers a match run.
type Dependencies struct {
	Matches    MatchLister
	Jobs       JobLookup
	Embeddings EmbeddingWriter
	Runner     MatchRunner
	Checks     map[string]Check
}

type Server struct {
	app    *fiber.App
	deps   Dependencies
	logger logger.Logger
	clock  func() time.Time
}

func New(appName string, deps Dependencies, log logger.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
		clock:  time.Now,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return respondError(c, code, err.Error(), "", "")
		},
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)
	s.app.Get("/ready", s.ready)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")
	api.Get("/applicants/:id/matches", s.listMatches)
	api.Put("/applicants/:id/embedding", s.putEmbedding)
	api.Get("/jobs/:id", s.getJob)
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks until the server stops.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", map[string]interface{}{"address": addr})
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("http request", map[string]interface{}{
		"method":      c.Method(),
		"path":        c.Path(),
		"status":      c.Response().StatusCode(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return err
}
