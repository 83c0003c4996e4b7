// internal/workers/matching/match-query/handler.go
package matchquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"resume-matcher/internal/common/config"
	"resume-matcher/internal/common/errors"
	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/common/metrics"
	"resume-matcher/pkg/registry"
)

const TaskType = "fetch-applicant-matches"

const defaultLimit = 100

type Handler struct {
	config       *Config
	matches      MatchLister
	activity     *registry.Activity
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

type HandlerOptions struct {
	AppConfig *config.Config
	Matches   MatchLister
	Registry  *registry.ActivityRegistry
	Logger    logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Matches == nil {
		return nil, fmt.Errorf("%s: match store is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	h := &Handler{
		config:       cfg,
		matches:      opts.Matches,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
	if opts.Registry != nil {
		h.activity, _ = opts.Registry.Lookup(TaskType)
	}
	return h, nil
}

func (h *Handler) Config() *Config {
	return h.config
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Fetching applicant matches", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.ParseInput(job.GetVariables())
	if err == nil {
		var output *Output
		if output, err = h.Execute(ctx, input); err == nil {
			h.completeJob(ctx, client, job, output)
			metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
			metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
			return
		}
	}

	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) ParseInput(variables string) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, errors.NewInputInvalidError(fmt.Sprintf("parse variables: %v", err))
	}
	if h.activity != nil {
		if err := h.activity.ValidateInput(raw); err != nil {
			return nil, errors.NewInputInvalidError(err.Error())
		}
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInputInvalidError(fmt.Sprintf("parse variables: %v", err))
	}
	return &input, nil
}

// Execute returns the applicant's stored matches, newest first.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.ApplicantID == "" {
		return nil, errors.NewInputInvalidError("applicant_id is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	records, err := h.matches.ListByApplicant(ctx, input.ApplicantID, limit)
	if err != nil {
		return nil, errors.NewStoreError("list_matches", err)
	}

	return &Output{
		ApplicantID: input.ApplicantID,
		Matches:     records,
		Count:       len(records),
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err})
	}
}
