// internal/workers/matching/bulk-match/handler.go
package bulkmatch

import (
	"context"
	"fmt"
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

const TaskType = "bulk-match"

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

// Config exposes the resolved worker settings.
func (h *Handler) Config() *Config {
	return h.config
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing bulk match", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	if !h.config.Enabled {
		h.completeJob(ctx, client, job, &Output{Status: models.StatusMatchingComplete})
		return
	}

	output, err := h.Execute(ctx, &Input{})
	if err != nil {
		stdErr := errors.Normalize(err).
			WithMetadata("status", models.StatusError).
			WithMetadata("match_count", 0)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, stdErr)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute runs a bulk match over every applicant.
func (h *Handler) Execute(ctx context.Context, _ *Input) (*Output, error) {
	result, err := h.runner.Run(ctx, matching.AllApplicants{})
	if err != nil {
		return nil, err
	}

	output := outputFromResult(result)
	if h.activity != nil {
		if err := h.activity.ValidateOutput(output); err != nil {
			h.logger.Warn("output does not match registry schema", map[string]interface{}{"error": err})
		}
	}
	return output, nil
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
