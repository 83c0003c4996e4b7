// internal/models/embedding.go
package models

import "time"

// ApplicantEmbedding is the skills embedding of one applicant. A newer write
// replaces the previous vector.
type ApplicantEmbedding struct {
	ApplicantID string    `json:"applicant_id"`
	Vector      []float64 `json:"vector"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Usable reports whether the embedding can take part in a comparison.
func (e ApplicantEmbedding) Usable() bool {
	return len(e.Vector) > 0
}
