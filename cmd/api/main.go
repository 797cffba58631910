package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/akulikov/statement-import/internal/api"
	"github.com/akulikov/statement-import/internal/api/handlers"
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
	if cfg.GCSBucket == "" {
		log.Warn().Msg("No GCS bucket configured - statement uploads will fail")
	}

	ctx := context.Background()

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

	// Single worker: stages of one import never run concurrently, and
	// extraction calls stay sequential against the shared rate limit.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 1, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job *jobs.ImportJob) error {
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

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	handler := handlers.NewImportHandler(service, jobQueue, categoryRepo, log)
	router := api.NewRouter(handler, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
