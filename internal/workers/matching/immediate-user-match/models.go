// internal/workers/matching/immediate-user-match/models.go
package immediateusermatch

import (
	"context"

	"resume-matcher/internal/matching"
	"resume-matcher/internal/models"
)

type MatchRunner interface {
	Run(ctx context.Context, selector matching.ApplicantSelector) (*models.RunResult, error)
}

type Input struct {
	ApplicantID string `json:"applicant_id"`
}

// snsEnvelope is the notification shape published when an applicant's
// embedding is stored.
type snsEnvelope struct {
	Records []struct {
		Sns struct {
			Message string `json:"Message"`
		} `json:"Sns"`
	} `json:"Records"`
}

type snsMessage struct {
	UserID      string `json:"user_id"`
	ApplicantID string `json:"applicant_id"`
}

type Output struct {
	RunID            string `json:"run_id,omitempty"`
	ApplicantID      string `json:"applicant_id"`
	Status           string `json:"status"`
	MatchCount       int    `json:"match_count"`
	PartialFailure   bool   `json:"partial_failure"`
	EvaluationFaults int    `json:"evaluation_faults"`
	PersistFailures  int    `json:"persist_failures"`
}
