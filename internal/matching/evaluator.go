// internal/matching/evaluator.go
package matching

import (
	"time"

	"resume-matcher/internal/models"
)

// MatchThreshold is the default similarity a pair must strictly exceed.
const MatchThreshold = 0.7

// Evaluator turns a similarity score into a match decision.
type Evaluator struct {
	Threshold float64
}

func NewEvaluator(threshold float64) Evaluator {
	return Evaluator{Threshold: threshold}
}

// Evaluate returns a record when score > Threshold, snapshotting the job's
// display fields at now.
func (e Evaluator) Evaluate(applicantID string, job models.JobPosting, score float64, now time.Time) (*models.MatchRecord, bool) {
	if !(score > e.Threshold) {
		return nil, false
	}
	return &models.MatchRecord{
		ApplicantID:     applicantID,
		JobID:           job.JobID,
		SimilarityScore: score,
		MatchedAt:       now.Unix(),
		Title:           orNotAvailable(job.Title),
		Location:        orNotAvailable(job.Location),
		EmploymentType:  job.EmploymentType,
		IsRemote:        job.IsRemote,
		PostedAt:        orNotAvailable(job.PostedAt),
	}, true
}

func orNotAvailable(s string) string {
	if s == "" {
		return models.NotAvailable
	}
	return s
}
