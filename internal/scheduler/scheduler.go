// Package scheduler triggers bulk matching runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/matching"
	"resume-matcher/internal/models"
)

// MatchRunner runs one matching pass.
type MatchRunner interface {
	Run(ctx context.Context, selector matching.ApplicantSelector) (*models.RunResult, error)
}

// Scheduler wraps robfig/cron. A tick that fires while the previous bulk run
// is still going is skipped.
type Scheduler struct {
	cron       *cron.Cron
	runner     MatchRunner
	spec       string
	runOnStart bool
	logger     logger.Logger
}

// New creates a Scheduler for spec, e.g. "@every 1h" or "0 */6 * * *".
func New(runner MatchRunner, spec string, runOnStart bool, log logger.Logger) *Scheduler {
	log = log.WithFields(map[string]interface{}{"component": "scheduler"})
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:     runner,
		spec:       spec,
		runOnStart: runOnStart,
		logger:     log,
	}
}

// Start registers the bulk job and starts the cron loop. With runOnStart a
// first run is fired immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() {
		s.runBulk(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("cron started", map[string]interface{}{
		"spec":     s.spec,
		"next_run": s.cron.Entry(id).Next,
	})

	if s.runOnStart {
		go s.cron.Entry(id).WrappedJob.Run()
	}
	return nil
}

// Stop stops scheduling and waits for a running bulk pass to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("cron stopped", nil)
}

func (s *Scheduler) runBulk(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := s.runner.Run(ctx, matching.AllApplicants{})
	if err != nil {
		s.logger.Error("scheduled bulk match failed", map[string]interface{}{"error": err})
		return
	}
	s.logger.Info("scheduled bulk match complete", map[string]interface{}{
		"run_id":          result.RunID,
		"match_count":     result.MatchCount,
		"partial_failure": result.PartialFailure(),
	})
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err
	c.log.Error(msg, fields)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
