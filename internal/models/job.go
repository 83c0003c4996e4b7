// internal/models/job.go
package models

// JobPosting is an immutable job posting as written by the ingestion pipeline.
// Vector is nil when the posting was stored without an embedding.
type JobPosting struct {
	JobID           string    `json:"job_id"`
	Title           string    `json:"job_title"`
	Location        string    `json:"location"`
	EmploymentType  string    `json:"employment_type"`
	IsRemote        bool      `json:"is_remote"`
	PostedAt        string    `json:"posted_at"`
	PostedTimestamp int64     `json:"posted_timestamp"`
	Vector          []float64 `json:"-"`
}

// HasVector reports whether the posting carries a non-empty embedding.
func (j JobPosting) HasVector() bool {
	return len(j.Vector) > 0
}
