package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"resume-matcher/infrastructure"
	"resume-matcher/interfaces"
	"resume-matcher/pipeline"
)

func main() {
	// Load .env
	_ = godotenv.Load()

	cfg := infrastructure.LoadConfig()

	logger, err := infrastructure.NewLogger(cfg.LogJSON, cfg.Debug)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Session transport: redis when configured, in-memory otherwise.
	var store infrastructure.SessionStore
	if cfg.RedisAddr != "" {
		store = infrastructure.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL, cfg.MaxEnvelopeBytes)
		logger.Info("using redis session store", zap.String("addr", cfg.RedisAddr))
	} else {
		store = infrastructure.NewMemoryStore(cfg.SessionTTL, cfg.MaxEnvelopeBytes)
		logger.Info("using in-memory session store")
	}

	sessions := pipeline.NewSessions(store, cfg.InlineTextLimit)
	extractor := infrastructure.NewFileExtractor(logger)
	scorer := infrastructure.NewOpenRouterScorer(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL,
		cfg.OpenRouterModel, cfg.ScoreTimeout, logger)

	intake := pipeline.NewIntake(sessions, extractor, cfg.MaxFiles, cfg.MaxFileSize, cfg.StagingDir, logger)
	scheduler := pipeline.NewScheduler(sessions, scorer, logger)
	reporter := pipeline.NewReporter(sessions)
	lifecycle := pipeline.NewLifecycle(sessions, cfg.SessionTTL, cfg.StagingDir, logger)

	ctx := context.Background()
	lifecycle.Start(ctx, cfg.SweepInterval)

	rmq, err := infrastructure.NewRabbitMQ(cfg.RabbitURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rmq.Close()

	// Worker consumer: drives the scheduler for queued analysis jobs.
	err = rmq.ConsumeJobs(func(job infrastructure.AnalysisJob) {
		logger.Info("analysis job received",
			zap.String("session_id", job.SessionID),
			zap.Int("chunk_size", job.ChunkSize))
		if err := scheduler.Run(ctx, job.SessionID, job.ChunkSize, nil); err != nil {
			logger.Warn("analysis job ended with error",
				zap.String("session_id", job.SessionID), zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("failed to start job consumer", zap.Error(err))
	}

	router := gin.Default()
	interfaces.NewHTTPHandler(router, intake, scheduler, reporter, lifecycle, rmq, cfg.ChunkSize, logger)

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
