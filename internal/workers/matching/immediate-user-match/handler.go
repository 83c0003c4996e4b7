// internal/workers/matching/immediate-user-match/handler.go
package immediateusermatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"resume-matcher/internal/common/config"
	"resume-matcher/internal/common/errors"
	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/common/metrics"
	"resume-matcher/internal/matching"
	"resume-matcher/internal/models"
	"resume-matcher/pkg/registry"
)

const TaskType = "immediate-user-match"

type Handler struct {
	config       *Config
	runner       MatchRunner
	activity     *registry.Activity
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

type HandlerOptions struct {
	AppConfig *config.Config
	Runner    MatchRunner
	Registry  *registry.ActivityRegistry
	Logger    logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("%s: runner is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	h := &Handler{
		config:       cfg,
		runner:       opts.Runner,
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

	h.logger.Info("Processing immediate match", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.ParseInput(job.GetVariables())
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	if !h.config.Enabled {
		h.completeJob(ctx, client, job, &Output{ApplicantID: input.ApplicantID, Status: models.StatusImmediateMatchComplete})
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// ParseInput reads the applicant id from job variables. Both the plain
// {"applicant_id": ...} form and the SNS event envelope are accepted.
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

	if id, ok := raw["applicant_id"].(string); ok && strings.TrimSpace(id) != "" {
		return &Input{ApplicantID: strings.TrimSpace(id)}, nil
	}

	var envelope snsEnvelope
	if err := json.Unmarshal([]byte(variables), &envelope); err != nil || len(envelope.Records) == 0 {
		return nil, errors.NewInputInvalidError("applicant_id is required")
	}
	var msg snsMessage
	if err := json.Unmarshal([]byte(envelope.Records[0].Sns.Message), &msg); err != nil {
		return nil, errors.NewInputInvalidError(fmt.Sprintf("parse sns message: %v", err))
	}
	id := msg.UserID
	if id == "" {
		id = msg.ApplicantID
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewInputInvalidError("sns message carries no user_id")
	}
	return &Input{ApplicantID: strings.TrimSpace(id)}, nil
}

// Execute matches one applicant against recent jobs. No digest is sent.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.ApplicantID == "" {
		return nil, errors.NewInputInvalidError("applicant_id is required")
	}

	result, err := h.runner.Run(ctx, matching.SingleApplicant{ID: input.ApplicantID})
	if err != nil {
		return nil, err
	}

	if result.Status == models.StatusNoEmbedding {
		h.logger.Info("applicant has no embedding", map[string]interface{}{"applicant_id": input.ApplicantID})
	}

	output := &Output{
		RunID:            result.RunID,
		ApplicantID:      input.ApplicantID,
		Status:           result.Status,
		MatchCount:       result.MatchCount,
		PartialFailure:   result.PartialFailure(),
		EvaluationFaults: result.EvaluationFaults,
		PersistFailures:  result.PersistFailures,
	}
	if h.activity != nil {
		if err := h.activity.ValidateOutput(output); err != nil {
			h.logger.Warn("output does not match registry schema", map[string]interface{}{"error": err})
		}
	}
	return output, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.Normalize(err).
		WithMetadata("status", models.StatusError).
		WithMetadata("match_count", 0)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
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
