// internal/workers/matching/match-query/models.go
package matchquery

import (
	"context"

	"resume-matcher/internal/models"
)

// MatchLister reads stored matches.
type MatchLister interface {
	ListByApplicant(ctx context.Context, applicantID string, limit int) ([]models.MatchRecord, error)
}

type Input struct {
	ApplicantID string `json:"applicant_id"`
	Limit       int    `json:"limit,omitempty"`
}

type Output struct {
	ApplicantID string               `json:"applicant_id"`
	Matches     []models.MatchRecord `json:"matches"`
	Count       int                  `json:"count"`
}
