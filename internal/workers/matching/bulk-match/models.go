// internal/workers/matching/bulk-match/models.go
package bulkmatch

import (
	"context"

	"resume-matcher/internal/matching"
	"resume-matcher/internal/models"
)

// MatchRunner runs one matching pass.
type MatchRunner interface {
	Run(ctx context.Context, selector matching.ApplicantSelector) (*models.RunResult, error)
}

// Input carries no fields; the bulk run always covers every applicant.
type Input struct{}

type Output struct {
	RunID            string `json:"run_id"`
	Status           string `json:"status"`
	MatchCount       int    `json:"match_count"`
	PartialFailure   bool   `json:"partial_failure"`
	DigestsSent      int    `json:"digests_sent"`
	ChannelsMissing  int    `json:"channels_missing"`
	EvaluationFaults int    `json:"evaluation_faults"`
	PersistFailures  int    `json:"persist_failures"`
	DispatchFailures int    `json:"dispatch_failures"`
}

func outputFromResult(r *models.RunResult) *Output {
	return &Output{
		RunID:            r.RunID,
		Status:           r.Status,
		MatchCount:       r.MatchCount,
		PartialFailure:   r.PartialFailure(),
		DigestsSent:      r.DigestsSent,
		ChannelsMissing:  r.ChannelsMissing,
		EvaluationFaults: r.EvaluationFaults,
		PersistFailures:  r.PersistFailures,
		DispatchFailures: r.DispatchFailures,
	}
}
