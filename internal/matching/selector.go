// internal/matching/selector.go
package matching

import (
	"context"

	"resume-matcher/internal/models"
)

// Run modes.
const (
	ModeBulk      = "bulk"
	ModeImmediate = "immediate"
)

// ApplicantSelector decides which applicants a run covers and how the run ends.
type ApplicantSelector interface {
	Mode() string
	// Load returns the usable embeddings of the selected applicants.
	Load(ctx context.Context, store EmbeddingReader) (map[string][]float64, error)
	// Dispatches reports whether the run sends digests.
	Dispatches() bool
	// CompleteStatus is the status of a run that reached DONE.
	CompleteStatus() string
	// EmptyStatus is the status when Load found nothing.
	EmptyStatus() string
}

// AllApplicants selects every stored embedding. Used by the periodic bulk run.
type AllApplicants struct{}

func (AllApplicants) Mode() string { return ModeBulk }

func (AllApplicants) Load(ctx context.Context, store EmbeddingReader) (map[string][]float64, error) {
	all, err := store.AllApplicantEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	usable := make(map[string][]float64, len(all))
	for id, vec := range all {
		if len(vec) > 0 {
			usable[id] = vec
		}
	}
	return usable, nil
}

func (AllApplicants) Dispatches() bool { return true }

func (AllApplicants) CompleteStatus() string { return models.StatusMatchingComplete }

func (AllApplicants) EmptyStatus() string { return models.StatusMatchingComplete }

// SingleApplicant selects one applicant. Used right after a resume is embedded;
// it never sends digests.
type SingleApplicant struct {
	ID string
}

func (SingleApplicant) Mode() string { return ModeImmediate }

func (s SingleApplicant) Load(ctx context.Context, store EmbeddingReader) (map[string][]float64, error) {
	vec, found, err := store.ApplicantEmbedding(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	if !found || len(vec) == 0 {
		return map[string][]float64{}, nil
	}
	return map[string][]float64{s.ID: vec}, nil
}

func (SingleApplicant) Dispatches() bool { return false }

func (SingleApplicant) CompleteStatus() string { return models.StatusImmediateMatchComplete }

func (SingleApplicant) EmptyStatus() string { return models.StatusNoEmbedding }
