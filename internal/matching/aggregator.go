// internal/matching/aggregator.go
package matching

import "resume-matcher/internal/models"

// Aggregation groups one run's records by applicant. It is owned by the run
// that built it.
type Aggregation struct {
	order     []string
	summaries map[string][]models.MatchSummary
}

// Aggregate groups records by applicant, keeping evaluation order both across
// applicants (first seen) and within each applicant.
func Aggregate(records []models.MatchRecord) *Aggregation {
	agg := &Aggregation{summaries: make(map[string][]models.MatchSummary)}
	for _, rec := range records {
		if _, seen := agg.summaries[rec.ApplicantID]; !seen {
			agg.order = append(agg.order, rec.ApplicantID)
		}
		agg.summaries[rec.ApplicantID] = append(agg.summaries[rec.ApplicantID], rec.Summary())
	}
	return agg
}

// Applicants returns the applicants with at least one match.
func (a *Aggregation) Applicants() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

func (a *Aggregation) Summaries(applicantID string) []models.MatchSummary {
	return a.summaries[applicantID]
}

func (a *Aggregation) Len() int {
	return len(a.order)
}
