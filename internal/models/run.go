// internal/models/run.go
package models

// Run status tags.
const (
	StatusMatchingComplete       = "matching_complete"
	StatusImmediateMatchComplete = "immediate_match_complete"
	StatusNoEmbedding            = "no_embedding"
	StatusError                  = "error"
)

// RunResult is the outcome of one matching run.
type RunResult struct {
	RunID            string `json:"run_id"`
	Status           string `json:"status"`
	MatchCount       int    `json:"match_count"`
	ApplicantCount   int    `json:"applicant_count"`
	JobCount         int    `json:"job_count"`
	EvaluationFaults int    `json:"evaluation_faults"`
	PersistFailures  int    `json:"persist_failures"`
	DigestsSent      int    `json:"digests_sent"`
	ChannelsMissing  int    `json:"channels_missing"`
	DispatchFailures int    `json:"dispatch_failures"`
}

// PartialFailure reports whether any isolated fault was contained during the run.
func (r RunResult) PartialFailure() bool {
	return r.EvaluationFaults > 0 || r.PersistFailures > 0 || r.DispatchFailures > 0
}
