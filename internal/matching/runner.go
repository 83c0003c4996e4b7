// internal/matching/runner.go
package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "resume-matcher/internal/common/errors"
	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/common/metrics"
	"resume-matcher/internal/models"
)

// EmbeddingReader reads applicant embeddings.
type EmbeddingReader interface {
	ApplicantEmbedding(ctx context.Context, applicantID string) ([]float64, bool, error)
	AllApplicantEmbeddings(ctx context.Context) (map[string][]float64, error)
}

// JobReader reads job postings with posted_timestamp >= since (unix seconds).
type JobReader interface {
	RecentJobs(ctx context.Context, since int64) ([]models.JobPosting, error)
}

type MatchWriter interface {
	Save(ctx context.Context, record models.MatchRecord) error
}

// ChannelResolver maps an applicant to a notification handle.
type ChannelResolver interface {
	Resolve(ctx context.Context, applicantID string) (string, bool, error)
}

type DigestSender interface {
	SendDigest(ctx context.Context, handle, applicantID string, matches []models.MatchSummary) error
}

// Run states.
const (
	StateFetchEmbeddings = "FETCH_EMBEDDINGS"
	StateFetchJobs       = "FETCH_JOBS"
	StateEvaluatePairs   = "EVALUATE_PAIRS"
	StatePersistMatches  = "PERSIST_MATCHES"
	StateAggregate       = "AGGREGATE"
	StateDispatch        = "DISPATCH"
	StateDone            = "DONE"
	StateFailed          = "FAILED"
)

// Options tune a Runner. Zero values fall back to the defaults below.
type Options struct {
	Threshold           float64
	RecencyWindow       time.Duration
	EvaluationWorkers   int
	PersistConcurrency  int
	DispatchConcurrency int
}

func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = MatchThreshold
	}
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = 24 * time.Hour
	}
	if o.EvaluationWorkers <= 0 {
		o.EvaluationWorkers = 4
	}
	if o.PersistConcurrency <= 0 {
		o.PersistConcurrency = 8
	}
	if o.DispatchConcurrency <= 0 {
		o.DispatchConcurrency = 4
	}
	return o
}

// Dependencies are the collaborators of a Runner. Engine and Clock are optional.
type Dependencies struct {
	Embeddings EmbeddingReader
	Jobs       JobReader
	Matches    MatchWriter
	Channels   ChannelResolver
	Sender     DigestSender
	Engine     SimilarityEngine
	Clock      func() time.Time
}

// Runner executes matching runs. A Runner holds no per-run state and is safe
// for concurrent use.
type Runner struct {
	deps      Dependencies
	opts      Options
	evaluator Evaluator
	logger    logger.Logger
	tracer    trace.Tracer
}

func NewRunner(deps Dependencies, opts Options, log logger.Logger) *Runner {
	if deps.Engine == nil {
		deps.Engine = CosineEngine{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	opts = opts.withDefaults()
	return &Runner{
		deps:      deps,
		opts:      opts,
		evaluator: NewEvaluator(opts.Threshold),
		logger:    log,
		tracer:    otel.Tracer("resume-matcher/matching"),
	}
}

// run is the state of one execution of Run.
type run struct {
	id       string
	selector ApplicantSelector
	now      time.Time
	log      logger.Logger
	result   *models.RunResult
}

// Run executes one matching run for the applicants chosen by selector.
// Fetch faults abort the run and are returned as STORE_ERROR; every later
// fault is isolated and counted in the result.
func (r *Runner) Run(ctx context.Context, selector ApplicantSelector) (*models.RunResult, error) {
	start := time.Now()
	rn := &run{
		id:       uuid.NewString(),
		selector: selector,
		now:      r.deps.Clock(),
	}
	rn.log = r.logger.WithFields(map[string]interface{}{
		"run_id": rn.id,
		"mode":   selector.Mode(),
	})
	rn.result = &models.RunResult{RunID: rn.id}

	ctx, span := r.tracer.Start(ctx, "matching.run", trace.WithAttributes(
		attribute.String("run.id", rn.id),
		attribute.String("run.mode", selector.Mode()),
	))
	defer span.End()

	err := r.execute(ctx, rn)
	if err != nil {
		rn.result.Status = models.StatusError
		r.transition(rn, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	metrics.MatchRunsTotal.WithLabelValues(selector.Mode(), rn.result.Status).Inc()
	metrics.MatchRunDuration.WithLabelValues(selector.Mode()).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("run.status", rn.result.Status),
		attribute.Int("run.match_count", rn.result.MatchCount),
	)

	fields := map[string]interface{}{
		"status":            rn.result.Status,
		"match_count":       rn.result.MatchCount,
		"applicants":        rn.result.ApplicantCount,
		"jobs":              rn.result.JobCount,
		"evaluation_faults": rn.result.EvaluationFaults,
		"persist_failures":  rn.result.PersistFailures,
		"digests_sent":      rn.result.DigestsSent,
		"channels_missing":  rn.result.ChannelsMissing,
		"dispatch_failures": rn.result.DispatchFailures,
		"duration_ms":       time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err
		rn.log.Error("Match run failed", fields)
		return rn.result, err
	}
	rn.log.Info("Match run finished", fields)
	return rn.result, nil
}

func (r *Runner) execute(ctx context.Context, rn *run) error {
	r.transition(rn, StateFetchEmbeddings)
	embeddings, err := r.fetchEmbeddings(ctx, rn)
	if err != nil {
		return err
	}
	rn.result.ApplicantCount = len(embeddings)
	if len(embeddings) == 0 {
		rn.result.Status = rn.selector.EmptyStatus()
		r.transition(rn, StateDone)
		return nil
	}

	r.transition(rn, StateFetchJobs)
	jobs, err := r.fetchJobs(ctx, rn)
	if err != nil {
		return err
	}
	rn.result.JobCount = len(jobs)

	r.transition(rn, StateEvaluatePairs)
	records, err := r.evaluatePairs(ctx, rn, embeddings, jobs)
	if err != nil {
		return err
	}
	rn.result.MatchCount = len(records)
	metrics.MatchesCreated.WithLabelValues(rn.selector.Mode()).Add(float64(len(records)))

	r.transition(rn, StatePersistMatches)
	r.persistMatches(ctx, rn, records)

	if rn.selector.Dispatches() && len(records) > 0 {
		r.transition(rn, StateAggregate)
		agg := Aggregate(records)

		r.transition(rn, StateDispatch)
		r.dispatch(ctx, rn, agg)
	}

	rn.result.Status = rn.selector.CompleteStatus()
	r.transition(rn, StateDone)
	return nil
}

func (r *Runner) transition(rn *run, state string) {
	rn.log.Debug("Match run state", map[string]interface{}{"state": state})
}

func (r *Runner) fetchEmbeddings(ctx context.Context, rn *run) (map[string][]float64, error) {
	ctx, span := r.tracer.Start(ctx, "matching.fetch_embeddings")
	defer span.End()

	embeddings, err := rn.selector.Load(ctx, r.deps.Embeddings)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.NewStoreError("fetch_embeddings", err)
	}
	span.SetAttributes(attribute.Int("applicants", len(embeddings)))
	return embeddings, nil
}

func (r *Runner) fetchJobs(ctx context.Context, rn *run) ([]models.JobPosting, error) {
	ctx, span := r.tracer.Start(ctx, "matching.fetch_jobs")
	defer span.End()

	since := rn.now.Add(-r.opts.RecencyWindow).Unix()
	jobs, err := r.deps.Jobs.RecentJobs(ctx, since)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.NewStoreError("fetch_jobs", err)
	}

	// The catalog may be coarser than the window; enforce it here.
	recent := jobs[:0:0]
	for _, job := range jobs {
		if job.PostedTimestamp >= since {
			recent = append(recent, job)
		}
	}
	span.SetAttributes(attribute.Int("jobs", len(recent)))
	return recent, nil
}

type pairOutcome struct {
	record *models.MatchRecord
	fault  error
}

// evaluatePairs scores every (job, applicant) pair on a bounded worker pool.
// Records come back in job-major order with applicants sorted by id.
func (r *Runner) evaluatePairs(ctx context.Context, rn *run, embeddings map[string][]float64, jobs []models.JobPosting) ([]models.MatchRecord, error) {
	ctx, span := r.tracer.Start(ctx, "matching.evaluate_pairs")
	defer span.End()

	applicants := make([]string, 0, len(embeddings))
	for id := range embeddings {
		applicants = append(applicants, id)
	}
	sort.Strings(applicants)

	withVector := make([]models.JobPosting, 0, len(jobs))
	for _, job := range jobs {
		if job.HasVector() {
			withVector = append(withVector, job)
		}
	}
	if skipped := len(jobs) - len(withVector); skipped > 0 {
		rn.log.Debug("Skipping jobs without embedding", map[string]interface{}{"count": skipped})
	}

	total := len(withVector) * len(applicants)
	outcomes := make([]pairOutcome, total)
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.opts.EvaluationWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range indexes {
				job := withVector[k/len(applicants)]
				applicantID := applicants[k%len(applicants)]
				score, err := r.deps.Engine.Similarity(embeddings[applicantID], job.Vector)
				if err != nil {
					outcomes[k].fault = err
					continue
				}
				if rec, ok := r.evaluator.Evaluate(applicantID, job, score, rn.now); ok {
					outcomes[k].record = rec
				}
			}
		}()
	}

feed:
	for k := 0; k < total; k++ {
		select {
		case indexes <- k:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluate pairs: %w", err)
	}

	var records []models.MatchRecord
	for k, out := range outcomes {
		if out.fault != nil {
			rn.result.EvaluationFaults++
			metrics.MatchRunFaults.WithLabelValues(metrics.PhaseEvaluate).Inc()
			rn.log.Warn("Skipping pair after similarity fault", map[string]interface{}{
				"applicant_id": applicants[k%len(applicants)],
				"job_id":       withVector[k/len(applicants)].JobID,
				"error":        out.fault,
			})
			continue
		}
		if out.record != nil {
			records = append(records, *out.record)
		}
	}

	span.SetAttributes(
		attribute.Int("pairs", total),
		attribute.Int("matches", len(records)),
	)
	return records, nil
}

// persistMatches writes every record independently. A failed write is logged
// and counted; the run continues.
func (r *Runner) persistMatches(ctx context.Context, rn *run, records []models.MatchRecord) {
	ctx, span := r.tracer.Start(ctx, "matching.persist_matches")
	defer span.End()

	errs := make([]error, len(records))
	sem := make(chan struct{}, r.opts.PersistConcurrency)
	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = r.deps.Matches.Save(ctx, records[i])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		rn.result.PersistFailures++
		metrics.MatchRunFaults.WithLabelValues(metrics.PhasePersist).Inc()
		rn.log.Error("Failed to persist match", map[string]interface{}{
			"applicant_id": records[i].ApplicantID,
			"job_id":       records[i].JobID,
			"error":        err,
		})
	}
	span.SetAttributes(attribute.Int("persist_failures", rn.result.PersistFailures))
}

type dispatchOutcome int

const (
	dispatchSent dispatchOutcome = iota
	dispatchNoChannel
	dispatchFailed
)

// dispatch sends one digest per applicant with at least one match.
func (r *Runner) dispatch(ctx context.Context, rn *run, agg *Aggregation) {
	if agg.Len() == 0 {
		return
	}
	ctx, span := r.tracer.Start(ctx, "matching.dispatch",
		trace.WithAttributes(attribute.Int("applicants", agg.Len())))
	defer span.End()

	applicants := agg.Applicants()
	outcomes := make([]dispatchOutcome, len(applicants))
	sem := make(chan struct{}, r.opts.DispatchConcurrency)
	var wg sync.WaitGroup
	for i, applicantID := range applicants {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, applicantID string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = r.dispatchOne(ctx, rn, applicantID, agg.Summaries(applicantID))
		}(i, applicantID)
	}
	wg.Wait()

	for _, out := range outcomes {
		switch out {
		case dispatchSent:
			rn.result.DigestsSent++
		case dispatchNoChannel:
			rn.result.ChannelsMissing++
		case dispatchFailed:
			rn.result.DispatchFailures++
			metrics.MatchRunFaults.WithLabelValues(metrics.PhaseDispatch).Inc()
		}
	}
	span.SetAttributes(
		attribute.Int("digests_sent", rn.result.DigestsSent),
		attribute.Int("channels_missing", rn.result.ChannelsMissing),
		attribute.Int("dispatch_failures", rn.result.DispatchFailures),
	)
}

func (r *Runner) dispatchOne(ctx context.Context, rn *run, applicantID string, summaries []models.MatchSummary) dispatchOutcome {
	log := rn.log.WithFields(map[string]interface{}{"applicant_id": applicantID})

	handle, found, err := r.deps.Channels.Resolve(ctx, applicantID)
	if err != nil {
		log.Error("Failed to resolve notification channel", map[string]interface{}{"error": err})
		return dispatchFailed
	}
	if !found {
		log.Info("No notification channel, skipping digest", nil)
		return dispatchNoChannel
	}

	if err := r.deps.Sender.SendDigest(ctx, handle, applicantID, summaries); err != nil {
		log.Error("Failed to send digest", map[string]interface{}{
			"error":   err,
			"matches": len(summaries),
		})
		return dispatchFailed
	}
	log.Debug("Digest sent", map[string]interface{}{"matches": len(summaries)})
	return dispatchSent
}
