// internal/models/match.go
package models

// Placeholder written in place of missing job display fields.
const NotAvailable = "N/A"

// MatchRecord is one accepted (applicant, job) pair. Records are never updated;
// a rerun of the matcher writes a new record with a new MatchedAt.
type MatchRecord struct {
	ApplicantID     string  `json:"applicant_id"`
	JobID           string  `json:"job_id"`
	SimilarityScore float64 `json:"similarity_score"`
	MatchedAt       int64   `json:"match_timestamp"`
	Title           string  `json:"job_title"`
	Location        string  `json:"location"`
	EmploymentType  string  `json:"employment_type"`
	IsRemote        bool    `json:"is_remote"`
	PostedAt        string  `json:"posted_at"`
}

// Summary returns the digest line for the record.
func (r MatchRecord) Summary() MatchSummary {
	return MatchSummary{
		JobID:           r.JobID,
		Title:           r.Title,
		Location:        r.Location,
		SimilarityScore: r.SimilarityScore,
		EmploymentType:  r.EmploymentType,
		IsRemote:        r.IsRemote,
		PostedAt:        r.PostedAt,
	}
}

// MatchSummary is one line of an applicant's digest.
type MatchSummary struct {
	JobID           string  `json:"job_id"`
	Title           string  `json:"job_title"`
	Location        string  `json:"location"`
	SimilarityScore float64 `json:"similarity_score"`
	EmploymentType  string  `json:"employment_type"`
	IsRemote        bool    `json:"is_remote"`
	PostedAt        string  `json:"posted_at"`
}
