// Standalone worker binary. Runs the same job consumer the API embeds;
// useful for local development and for deployments that front the queue
// with Cloud Tasks or Pub/Sub instead of the in-memory channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/akulikov/statement-import/internal/categorize"
	"github.com/akulikov/statement-import/internal/config"
	"github.com/akulikov/statement-import/internal/extraction"
	"github.com/akulikov/statement-import/internal/importer"
	"github.com/akulikov/statement-import/internal/jobs"
	"github.com/akulikov/statement-import/internal/jobs/inmemory"
	"github.com/akulikov/statement-import/internal/logger"
	"github.com/akulikov/statement-import/internal/repository"
	"github.com/akulikov/statement-import/internal/storage"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to the database")
	}

	importRepo := repository.NewImportRepository(db)
	candidateRepo := repository.NewCandidateRepository(db, log)
	expenseRepo := repository.NewExpenseRepository(db, log)
	keywordRepo := repository.NewKeywordRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	store := storage.NewGCSStore(cfg.GCSBucket)

	extractor, err := extraction.NewGeminiExtractor(ctx, cfg.ModelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create the extraction client")
	}
	orchestrator := extraction.NewOrchestrator(extractor, log)

	classifier, err := categorize.NewGeminiClassifier(ctx, cfg.ModelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create the categorization client")
	}
	resolver := categorize.NewResolver(keywordRepo, categoryRepo, candidateRepo, classifier, log)

	service := importer.NewService(
		importRepo, candidateRepo, expenseRepo, keywordRepo,
		store, orchestrator, resolver, log,
	)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 1, jobStore)

	handler := func(ctx context.Context, job *jobs.ImportJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("import_id", job.ImportID.String()).
			Str("kind", string(job.Kind)).
			Msg("Processing import job")

		switch job.Kind {
		case jobs.KindExtract:
			return service.RunExtraction(ctx, job.UserID, job.ImportID, job.Password)
		case jobs.KindCategorize:
			return service.RunCategorization(ctx, job.UserID, job.ImportID)
		default:
			return fmt.Errorf("unexpected job kind: %s", job.Kind)
		}
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Worker exited")
}
