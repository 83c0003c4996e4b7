// cmd/match-runner/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"resume-matcher/internal/api"
	"resume-matcher/internal/common/aws"
	"resume-matcher/internal/common/camunda"
	"resume-matcher/internal/common/config"
	"resume-matcher/internal/common/database"
	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/common/observability"
	"resume-matcher/internal/matching"
	"resume-matcher/internal/notification"
	"resume-matcher/internal/scheduler"
	"resume-matcher/internal/storage"
	bulkmatch "resume-matcher/internal/workers/matching/bulk-match"
	immediateusermatch "resume-matcher/internal/workers/matching/immediate-user-match"
	matchquery "resume-matcher/internal/workers/matching/match-query"
	"resume-matcher/pkg/registry"
)

// jobCatalog is satisfied by both the Postgres and Elasticsearch catalogs.
type jobCatalog interface {
	matching.JobReader
	api.JobLookup
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting match runner...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return err
		}
		return nil
	}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres connection failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		if err := rdb.Ping(ctx); err != nil {
			rdb.Close()
			return err
		}
		return nil
	}, 5, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis connection failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]api.Check{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}

	// --- Job catalog ---
	var catalog jobCatalog
	switch cfg.Matching.CatalogBackend {
	case config.CatalogElasticsearch:
		var es *database.ElasticsearchClient
		index := cfg.Database.Elasticsearch.JobIndex
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx, index)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch connection failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", index))
		catalog = storage.NewElasticsearchJobCatalog(es.Client, index, log)
		checks["elasticsearch"] = func(ctx context.Context) error { return es.Ping(ctx, index) }
	default:
		catalog = storage.NewJobCatalog(pg.DB, log)
	}

	embeddings := storage.NewEmbeddingStore(pg.DB, rdb.Client,
		time.Duration(cfg.Matching.EmbeddingCacheTTL)*time.Second, log)
	matches := storage.NewMatchStore(pg.DB, log)
	channels := storage.NewChannelStore(pg.DB, rdb.Client,
		time.Duration(cfg.Matching.ChannelCacheTTL)*time.Second, log)

	// --- Notification dispatcher ---
	var (
		sesClient notification.SESService
		snsClient notification.SNSService
	)
	if cfg.Notifications.SNS.Enabled || cfg.Notifications.Email.Enabled {
		clients, err := aws.NewClients(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws client initialization failed", zap.Error(err))
		}
		if cfg.Notifications.Email.Enabled {
			sesClient = clients.SES
		}
		if cfg.Notifications.SNS.Enabled {
			snsClient = clients.SNS
		}
	}
	dispatcher := notification.NewDispatcher(notification.Config{
		SNSEnabled:   cfg.Notifications.SNS.Enabled,
		EmailEnabled: cfg.Notifications.Email.Enabled,
		FromEmail:    cfg.Notifications.Email.FromEmail,
	}, sesClient, snsClient, log)

	runner := matching.NewRunner(matching.Dependencies{
		Embeddings: embeddings,
		Jobs:       catalog,
		Matches:    matches,
		Channels:   channels,
		Sender:     dispatcher,
	}, matching.Options{
		Threshold:           cfg.Matching.Threshold,
		RecencyWindow:       cfg.Matching.RecencyWindow(),
		EvaluationWorkers:   cfg.Matching.EvaluationWorkers,
		PersistConcurrency:  cfg.Matching.PersistConcurrency,
		DispatchConcurrency: cfg.Matching.DispatchConcurrency,
	}, log)

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.Error(err))
	}

	// --- Zeebe workers ---
	var (
		zeebe   *camunda.Client
		workers []*camunda.CamundaWorker
	)
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		checks["zeebe"] = zeebe.HealthCheck

		workers = startWorkers(cfg, zeebe, runner, matches, reg, obs, log, zapLog)
		zapLog.Info("Workers registered", zap.Int("count", len(workers)))
	} else {
		zapLog.Info("Camunda disabled, no job workers started")
	}

	// --- Bulk schedule ---
	var sched *scheduler.Scheduler
	if cfg.Scheduler.BulkMatchSpec != "" {
		sched = scheduler.New(runner, cfg.Scheduler.BulkMatchSpec, cfg.Scheduler.RunOnStart, log)
		if err := sched.Start(ctx); err != nil {
			zapLog.Fatal("scheduler start failed", zap.Error(err))
		}
	}

	// --- HTTP server ---
	server := api.New(cfg.App.Name, api.Dependencies{
		Matches:    matches,
		Jobs:       catalog,
		Embeddings: embeddings,
		Runner:     runner,
		Checks:     checks,
	}, log)
	go func() {
		if err := server.Listen(cfg.Server.Address); err != nil {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	stop()
	for _, w := range workers {
		w.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Match runner stopped gracefully")
}

func startWorkers(
	cfg *config.Config,
	zeebe *camunda.Client,
	runner *matching.Runner,
	matches *storage.MatchStore,
	reg *registry.ActivityRegistry,
	obs *observability.Observability,
	log logger.Logger,
	zapLog *zap.Logger,
) []*camunda.CamundaWorker {
	var started []*camunda.CamundaWorker

	if config.IsWorkerEnabled(cfg, bulkmatch.TaskType) {
		handler, err := bulkmatch.NewHandler(bulkmatch.HandlerOptions{
			AppConfig: cfg,
			Runner:    runner,
			Registry:  reg,
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create bulk-match handler", zap.Error(err))
		}
		wc := handler.Config()
		started = append(started, camunda.NewWorker(zeebe.GetClient(), bulkmatch.TaskType,
			wc.MaxJobsActive, wc.Timeout, handler, obs, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", bulkmatch.TaskType))
	}

	if config.IsWorkerEnabled(cfg, immediateusermatch.TaskType) {
		handler, err := immediateusermatch.NewHandler(immediateusermatch.HandlerOptions{
			AppConfig: cfg,
			Runner:    runner,
			Registry:  reg,
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create immediate-user-match handler", zap.Error(err))
		}
		wc := handler.Config()
		started = append(started, camunda.NewWorker(zeebe.GetClient(), immediateusermatch.TaskType,
			wc.MaxJobsActive, wc.Timeout, handler, obs, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", immediateusermatch.TaskType))
	}

	if config.IsWorkerEnabled(cfg, matchquery.TaskType) {
		handler, err := matchquery.NewHandler(matchquery.HandlerOptions{
			AppConfig: cfg,
			Matches:   matches,
			Registry:  reg,
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create fetch-applicant-matches handler", zap.Error(err))
		}
		wc := handler.Config()
		started = append(started, camunda.NewWorker(zeebe.GetClient(), matchquery.TaskType,
			wc.MaxJobsActive, wc.Timeout, handler, obs, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", matchquery.TaskType))
	}

	return started
}
