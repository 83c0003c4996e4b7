// internal/api/handlers.go
package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "resume-matcher/internal/common/errors"
	"resume-matcher/internal/matching"
	"resume-matcher/internal/models"
)

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   s.clock().UTC().Format(time.RFC3339),
	})
}

// ready runs every readiness check and reports 503 if any of them fails.
func (s *Server) ready(c *fiber.Ctx) error {
	results := make(map[string]string, len(s.deps.Checks))
	healthy := true
	for name, check := range s.deps.Checks {
		ctx, cancel := context.WithTimeout(c.UserContext(), checkTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			healthy = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	status := "ready"
	code := fiber.StatusOK
	if !healthy {
		status = "not_ready"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": results,
		"time":   s.clock().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listMatches(c *fiber.Ctx) error {
	applicantID := strings.TrimSpace(c.Params("id"))
	limit := c.QueryInt("limit", defaultMatchLimit)
	if limit < 1 || limit > maxMatchLimit {
		return respondError(c, fiber.StatusBadRequest, "limit must be between 1 and 1000",
			string(apperrors.ErrCodeInputInvalid), "")
	}

	records, err := s.deps.Matches.ListByApplicant(c.UserContext(), applicantID, limit)
	if err != nil {
		s.logger.Error("list matches failed", map[string]interface{}{
			"applicant_id": applicantID,
			"error":        err,
		})
		return respondError(c, fiber.StatusInternalServerError, "failed to fetch matches",
			string(apperrors.ErrCodeStoreError), err.Error())
	}

	return respondOK(c, "matches fetched", records, fiber.Map{
		"applicant_id": applicantID,
		"count":        len(records),
	})
}

func (s *Server) getJob(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	job, found, err := s.deps.Jobs.Job(c.UserContext(), jobID)
	if err != nil {
		s.logger.Error("job lookup failed", map[string]interface{}{
			"job_id": jobID,
			"error":  err,
		})
		return respondError(c, fiber.StatusInternalServerError, "failed to fetch job",
			string(apperrors.ErrCodeStoreError), err.Error())
	}
	if !found {
		return respondError(c, fiber.StatusNotFound, "job not found",
			string(apperrors.ErrCodeNotFound), "job_id: "+jobID)
	}
	return respondOK(c, "job fetched", job, nil)
}

type embeddingRequest struct {
	Embedding []float64 `json:"embedding"`
	Match     bool      `json:"match"`
}

type embeddingResponse struct {
	ApplicantID string            `json:"applicant_id"`
	Dimensions  int               `json:"dimensions"`
	Run         *models.RunResult `json:"run,omitempty"`
}

// putEmbedding stores the applicant's vector and optionally runs the
// immediate match for that applicant.
func (s *Server) putEmbedding(c *fiber.Ctx) error {
	applicantID := strings.TrimSpace(c.Params("id"))

	var req embeddingRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request body",
			string(apperrors.ErrCodeInputInvalid), err.Error())
	}
	if len(req.Embedding) == 0 {
		return respondError(c, fiber.StatusBadRequest, "embedding must not be empty",
			string(apperrors.ErrCodeInputInvalid), "")
	}

	ctx := c.UserContext()
	err := s.deps.Embeddings.Upsert(ctx, models.ApplicantEmbedding{
		ApplicantID: applicantID,
		Vector:      req.Embedding,
		RecordedAt:  s.clock().UTC(),
	})
	if err != nil {
		s.logger.Error("embedding upsert failed", map[string]interface{}{
			"applicant_id": applicantID,
			"error":        err,
		})
		return respondError(c, fiber.StatusInternalServerError, "failed to store embedding",
			string(apperrors.ErrCodeStoreError), err.Error())
	}

	resp := embeddingResponse{ApplicantID: applicantID, Dimensions: len(req.Embedding)}
	if req.Match && s.deps.Runner != nil {
		result, err := s.deps.Runner.Run(ctx, matching.SingleApplicant{ID: applicantID})
		if err != nil {
			stdErr := apperrors.Normalize(err)
			return respondError(c, fiber.StatusInternalServerError, "embedding stored, match run failed",
				string(stdErr.Code), stdErr.Details)
		}
		resp.Run = result
	}

	return respondOK(c, "embedding stored", resp, nil)
}
