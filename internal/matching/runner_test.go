// internal/matching/runner_test.go
package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "resume-matcher/internal/common/errors"
	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/models"
)

// ==========================
// Test Fakes
// ==========================

type fakeEmbeddings struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbeddings) ApplicantEmbedding(_ context.Context, id string) ([]float64, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	vec, ok := f.vectors[id]
	return vec, ok, nil
}

func (f *fakeEmbeddings) AllApplicantEmbeddings(_ context.Context) (map[string][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

type fakeJobs struct {
	mu    sync.Mutex
	jobs  []models.JobPosting
	err   error
	calls int
	since int64
}

func (f *fakeJobs) RecentJobs(_ context.Context, since int64) ([]models.JobPosting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.since = since
	return f.jobs, f.err
}

type fakeMatches struct {
	mu      sync.Mutex
	saved   []models.MatchRecord
	failFor map[string]bool
}

func (f *fakeMatches) Save(_ context.Context, rec models.MatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[rec.JobID] {
		return errors.New("write rejected")
	}
	f.saved = append(f.saved, rec)
	return nil
}

type fakeChannels struct {
	handles map[string]string
	failFor map[string]bool
}

func (f *fakeChannels) Resolve(_ context.Context, id string) (string, bool, error) {
	if f.failFor[id] {
		return "", false, errors.New("lookup failed")
	}
	h, ok := f.handles[id]
	return h, ok, nil
}

type sentDigest struct {
	handle    string
	applicant string
	matches   []models.MatchSummary
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentDigest
	failFor map[string]bool
}

func (f *fakeSender) SendDigest(_ context.Context, handle, applicantID string, matches []models.MatchSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[applicantID] {
		return errors.New("publish failed")
	}
	f.sent = append(f.sent, sentDigest{handle: handle, applicant: applicantID, matches: matches})
	return nil
}

type fixture struct {
	embeddings *fakeEmbeddings
	jobs       *fakeJobs
	matches    *fakeMatches
	channels   *fakeChannels
	sender     *fakeSender
	now        time.Time
}

func newFixture() *fixture {
	return &fixture{
		embeddings: &fakeEmbeddings{vectors: map[string][]float64{}},
		jobs:       &fakeJobs{},
		matches:    &fakeMatches{},
		channels:   &fakeChannels{handles: map[string]string{}},
		sender:     &fakeSender{},
		now:        time.Unix(1_700_000_000, 0),
	}
}

func (f *fixture) runner(t *testing.T) *Runner {
	return NewRunner(Dependencies{
		Embeddings: f.embeddings,
		Jobs:       f.jobs,
		Matches:    f.matches,
		Channels:   f.channels,
		Sender:     f.sender,
		Clock:      func() time.Time { return f.now },
	}, Options{EvaluationWorkers: 3, PersistConcurrency: 2, DispatchConcurrency: 2}, logger.NewTestLogger(t))
}

func (f *fixture) job(id string, age time.Duration, vec []float64) models.JobPosting {
	return models.JobPosting{
		JobID:           id,
		Title:           "Title " + id,
		Location:        "Austin",
		PostedTimestamp: f.now.Add(-age).Unix(),
		Vector:          vec,
	}
}

// ==========================
// Scenario Tests
// ==========================

func TestRunner_IdenticalVectorsMatch(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0, 0}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0, 0})}
	f.channels.handles["A"] = "a@example.com"

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusMatchingComplete, result.Status)
	assert.Equal(t, 1, result.MatchCount)
	require.Len(t, f.matches.saved, 1)
	assert.InDelta(t, 1.0, f.matches.saved[0].SimilarityScore, 1e-9)
	assert.Equal(t, f.now.Unix(), f.matches.saved[0].MatchedAt)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "a@example.com", f.sender.sent[0].handle)
	assert.Equal(t, 1, result.DigestsSent)
	assert.False(t, result.PartialFailure())
}

func TestRunner_OrthogonalVectorsDoNotMatch(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0, 0}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{0, 1, 0})}
	f.channels.handles["A"] = "a@example.com"

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusMatchingComplete, result.Status)
	assert.Equal(t, 0, result.MatchCount)
	assert.Empty(t, f.matches.saved)
	assert.Empty(t, f.sender.sent)
}

func TestRunner_OldJobExcluded(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0, 0}
	f.jobs.jobs = []models.JobPosting{
		f.job("old", 30*time.Hour, []float64{1, 0, 0}),
		f.job("fresh", 23*time.Hour, []float64{1, 0, 0}),
	}

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, f.now.Add(-24*time.Hour).Unix(), f.jobs.since)
	assert.Equal(t, 1, result.JobCount)
	require.Len(t, f.matches.saved, 1)
	assert.Equal(t, "fresh", f.matches.saved[0].JobID)
}

func TestRunner_ImmediateWithoutEmbedding(t *testing.T) {
	f := newFixture()
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0})}

	result, err := f.runner(t).Run(context.Background(), SingleApplicant{ID: "U"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusNoEmbedding, result.Status)
	assert.Equal(t, 0, result.MatchCount)
	assert.Empty(t, f.matches.saved)
	assert.Equal(t, 0, f.jobs.calls)
}

func TestRunner_TwoApplicantsTwoDigests(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.embeddings.vectors["B"] = []float64{0.9, 0.1}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0})}
	f.channels.handles["A"] = "arn:aws:sns:us-east-1:123456789012:A"
	f.channels.handles["B"] = "b@example.com"

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.MatchCount)
	assert.Equal(t, 2, result.DigestsSent)
	require.Len(t, f.sender.sent, 2)
	for _, d := range f.sender.sent {
		assert.Len(t, d.matches, 1)
		assert.Equal(t, "J", d.matches[0].JobID)
	}
}

func TestRunner_MissingChannelSkipped(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.embeddings.vectors["B"] = []float64{1, 0}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0})}
	f.channels.handles["A"] = "a@example.com"

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusMatchingComplete, result.Status)
	assert.Equal(t, 1, result.DigestsSent)
	assert.Equal(t, 1, result.ChannelsMissing)
	assert.Equal(t, 0, result.DispatchFailures)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "A", f.sender.sent[0].applicant)
	assert.Len(t, f.matches.saved, 2)
}

func TestRunner_DispatchSpanCountsApplicants(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.embeddings.vectors["B"] = []float64{1, 0}
	f.embeddings.vectors["C"] = []float64{0, 1}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0})}
	f.channels.handles["A"] = "a@example.com"
	f.channels.handles["B"] = "b@example.com"

	recorder := tracetest.NewSpanRecorder()
	r := f.runner(t)
	r.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, err := r.Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "matching.dispatch" {
			continue
		}
		found = true
		assert.Contains(t, span.Attributes(), attribute.Int("applicants", 2))
		assert.Contains(t, span.Attributes(), attribute.Int("digests_sent", 2))
	}
	assert.True(t, found)
}

func TestRunner_NoMatchesSkipsDispatchSpan(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{0, 1}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0})}

	recorder := tracetest.NewSpanRecorder()
	r := f.runner(t)
	r.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, err := r.Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	for _, span := range recorder.Ended() {
		assert.NotEqual(t, "matching.dispatch", span.Name())
	}
	assert.Empty(t, f.sender.sent)
}

// ==========================
// Edge Cases
// ==========================

func TestRunner_ImmediateMatchDoesNotDispatch(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["U"] = []float64{1, 1}
	f.embeddings.vectors["other"] = []float64{1, 1}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 1})}
	f.channels.handles["U"] = "u@example.com"

	result, err := f.runner(t).Run(context.Background(), SingleApplicant{ID: "U"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusImmediateMatchComplete, result.Status)
	assert.Equal(t, 1, result.MatchCount)
	require.Len(t, f.matches.saved, 1)
	assert.Equal(t, "U", f.matches.saved[0].ApplicantID)
	assert.Empty(t, f.sender.sent)
}

func TestRunner_JobsWithoutVectorNeverCompared(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.jobs.jobs = []models.JobPosting{
		f.job("nil", time.Hour, nil),
		f.job("empty", time.Hour, []float64{}),
		f.job("ok", time.Hour, []float64{1, 0}),
	}

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.EvaluationFaults)
	require.Len(t, f.matches.saved, 1)
	assert.Equal(t, "ok", f.matches.saved[0].JobID)
}

func TestRunner_ApplicantsWithoutEmbeddingYieldNothing(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.embeddings.vectors["blank"] = nil
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0})}

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ApplicantCount)
	for _, rec := range f.matches.saved {
		assert.NotEqual(t, "blank", rec.ApplicantID)
	}
}

func TestRunner_DimensionMismatchCountedAndSkipped(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.jobs.jobs = []models.JobPosting{
		f.job("wide", time.Hour, []float64{1, 0, 0}),
		f.job("ok", time.Hour, []float64{1, 0}),
	}

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.EvaluationFaults)
	assert.Equal(t, 1, result.MatchCount)
	assert.True(t, result.PartialFailure())
}

func TestRunner_PersistAndDispatchFailuresIsolated(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.embeddings.vectors["B"] = []float64{1, 0}
	f.embeddings.vectors["C"] = []float64{1, 0}
	f.jobs.jobs = []models.JobPosting{
		f.job("J1", time.Hour, []float64{1, 0}),
		f.job("J2", time.Hour, []float64{1, 0}),
	}
	f.matches.failFor = map[string]bool{"J2": true}
	f.channels.handles = map[string]string{"A": "a@example.com", "B": "b@example.com", "C": "c@example.com"}
	f.channels.failFor = map[string]bool{"C": true}
	f.sender.failFor = map[string]bool{"B": true}

	result, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusMatchingComplete, result.Status)
	assert.Equal(t, 6, result.MatchCount)
	assert.Equal(t, 3, result.PersistFailures)
	assert.Len(t, f.matches.saved, 3)
	assert.Equal(t, 1, result.DigestsSent)
	assert.Equal(t, 2, result.DispatchFailures)
	assert.True(t, result.PartialFailure())
	require.Len(t, f.sender.sent, 1)
	assert.Len(t, f.sender.sent[0].matches, 2)
}

func TestRunner_DigestOrderFollowsEvaluation(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.jobs.jobs = []models.JobPosting{
		f.job("J3", time.Hour, []float64{1, 0.1}),
		f.job("J1", time.Hour, []float64{1, 0.2}),
		f.job("J2", time.Hour, []float64{1, 0.3}),
	}
	f.channels.handles["A"] = "a@example.com"

	_, err := f.runner(t).Run(context.Background(), AllApplicants{})
	require.NoError(t, err)

	require.Len(t, f.sender.sent, 1)
	var ids []string
	for _, m := range f.sender.sent[0].matches {
		ids = append(ids, m.JobID)
	}
	assert.Equal(t, []string{"J3", "J1", "J2"}, ids)
}

func TestRunner_FetchFailuresAbort(t *testing.T) {
	t.Run("embeddings", func(t *testing.T) {
		f := newFixture()
		f.embeddings.err = errors.New("connection refused")

		result, err := f.runner(t).Run(context.Background(), AllApplicants{})
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreError))
		assert.Equal(t, models.StatusError, result.Status)
		assert.Equal(t, 0, f.jobs.calls)
	})

	t.Run("jobs", func(t *testing.T) {
		f := newFixture()
		f.embeddings.vectors["A"] = []float64{1}
		f.jobs.err = errors.New("timeout")

		result, err := f.runner(t).Run(context.Background(), SingleApplicant{ID: "A"})
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreError))
		assert.Contains(t, err.Error(), "fetch_jobs")
		assert.Equal(t, models.StatusError, result.Status)
		assert.Empty(t, f.matches.saved)
	})
}

func TestRunner_CancelledContext(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0})}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.runner(t).Run(ctx, AllApplicants{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Empty(t, f.matches.saved)
}

func TestRunner_ConcurrentRunsAreIndependent(t *testing.T) {
	f := newFixture()
	f.embeddings.vectors["A"] = []float64{1, 0}
	f.jobs.jobs = []models.JobPosting{f.job("J", time.Hour, []float64{1, 0})}
	r := f.runner(t)

	var wg sync.WaitGroup
	results := make([]*models.RunResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Run(context.Background(), SingleApplicant{ID: "A"})
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, 1, res.MatchCount)
		assert.False(t, seen[res.RunID])
		seen[res.RunID] = true
	}
}
