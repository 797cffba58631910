// Schema migration tool. Applies the gorm auto-migrations for every table
// the import pipeline owns or writes to.
package main

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/akulikov/statement-import/internal/config"
	"github.com/akulikov/statement-import/internal/logger"
	"github.com/akulikov/statement-import/internal/models"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to the database")
	}

	err = db.AutoMigrate(
		&models.ImportRecord{},
		&models.CandidateTransaction{},
		&models.KeywordMapping{},
		&models.Expense{},
		&models.Category{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migrations applied")
}
