// internal/matching/similarity.go
package matching

import (
	"math"

	apperrors "resume-matcher/internal/common/errors"
)

// Sentinel faults of the similarity computation. Errors returned by
// CosineEngine match these with errors.Is.
var (
	ErrDimensionMismatch = apperrors.NewDimensionMismatchError(0, 0)
	ErrEmptyVector       = apperrors.NewEmptyVectorError("")
)

// SimilarityEngine scores a pair of embeddings.
type SimilarityEngine interface {
	Similarity(a, b []float64) (float64, error)
}

// CosineEngine computes cosine similarity.
type CosineEngine struct{}

// Similarity returns dot(a,b) / (|a| * |b|), clamped into [-1, 1].
func (CosineEngine) Similarity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, faultError{ErrEmptyVector, apperrors.NewEmptyVectorError("empty vector")}
	}
	if len(a) != len(b) {
		return 0, faultError{ErrDimensionMismatch, apperrors.NewDimensionMismatchError(len(a), len(b))}
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, faultError{ErrEmptyVector, apperrors.NewEmptyVectorError("zero norm")}
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, score)), nil
}

// faultError carries the detailed StandardError while matching its sentinel.
type faultError struct {
	sentinel error
	detail   *apperrors.StandardError
}

func (e faultError) Error() string { return e.detail.Error() }

func (e faultError) Unwrap() []error { return []error{e.detail, e.sentinel} }
