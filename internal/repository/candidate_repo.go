package repository

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/akulikov/statement-import/internal/models"
)

// insertBatchSize bounds the number of rows per multi-row insert. On batch
// failure we degrade to row-at-a-time so a single malformed row does not
// sink its whole batch.
const insertBatchSize = 50

type CandidateRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewCandidateRepository(db *gorm.DB, log zerolog.Logger) *CandidateRepository {
	return &CandidateRepository{db: db, log: log}
}

// InsertBatch persists candidates in batches with row-level fallback and
// returns the number of rows actually inserted.
func (r *CandidateRepository) InsertBatch(candidates []*models.CandidateTransaction) (int, error) {
	inserted := 0
	for start := 0; start < len(candidates); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		if err := r.db.Create(batch).Error; err == nil {
			inserted += len(batch)
			continue
		}

		// Batch insert failed; retry row by row and skip rows that still fail.
		for _, c := range batch {
			if rowErr := r.db.Create(c).Error; rowErr != nil {
				r.log.Warn().
					Err(rowErr).
					Str("import_id", c.ImportID.String()).
					Str("description", c.Description).
					Msg("Skipping candidate row that failed individual insert")
				continue
			}
			inserted++
		}
	}
	return inserted, nil
}

// ListByImport returns all candidates of an import in insertion order.
func (r *CandidateRepository) ListByImport(importID uuid.UUID) ([]models.CandidateTransaction, error) {
	var candidates []models.CandidateTransaction
	err := r.db.
		Where("import_id = ?", importID).
		Order("created_at ASC, id ASC").
		Find(&candidates).Error
	return candidates, err
}

// ListByIDs returns the import's candidates matching the given ids.
func (r *CandidateRepository) ListByIDs(importID uuid.UUID, ids []uuid.UUID) ([]models.CandidateTransaction, error) {
	var candidates []models.CandidateTransaction
	err := r.db.
		Where("import_id = ? AND id IN ?", importID, ids).
		Find(&candidates).Error
	return candidates, err
}

// UpdateSuggestion stores the resolver's category suggestion for a candidate.
func (r *CandidateRepository) UpdateSuggestion(id uuid.UUID, categoryID *uuid.UUID, confidence float64) error {
	return r.db.Model(&models.CandidateTransaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"suggested_category_id": categoryID,
			"confidence":            confidence,
		}).Error
}

// DeleteByImport removes all transient candidates of an import.
func (r *CandidateRepository) DeleteByImport(importID uuid.UUID) error {
	return r.db.Delete(&models.CandidateTransaction{}, "import_id = ?", importID).Error
}
