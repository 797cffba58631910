package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/akulikov/statement-import/internal/models"
)

type ImportRepository struct {
	db *gorm.DB
}

func NewImportRepository(db *gorm.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

func (r *ImportRepository) Create(record *models.ImportRecord) error {
	return r.db.Create(record).Error
}

// GetByID fetches an import scoped to its owner.
func (r *ImportRepository) GetByID(userID string, id uuid.UUID) (*models.ImportRecord, error) {
	var record models.ImportRecord
	err := r.db.First(&record, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateStatus sets the status and user-facing error message of an import.
func (r *ImportRepository) UpdateStatus(id uuid.UUID, status, errorMessage string) error {
	return r.db.Model(&models.ImportRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
		}).Error
}

// SetExtractionResult records document metadata and the candidate count
// gathered by the extraction stage, moving the import to extracted.
func (r *ImportRepository) SetExtractionResult(id uuid.UUID, bankName string, periodStart, periodEnd *time.Time, candidateCount int) error {
	return r.db.Model(&models.ImportRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          models.ImportStatusExtracted,
			"bank_name":       bankName,
			"period_start":    periodStart,
			"period_end":      periodEnd,
			"candidate_count": candidateCount,
			"error_message":   "",
		}).Error
}

// SetCategorizationResult stores the categorization summary and moves the
// import to ready.
func (r *ImportRepository) SetCategorizationResult(id uuid.UUID, result datatypes.JSON) error {
	return r.db.Model(&models.ImportRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":                models.ImportStatusReady,
			"categorization_result": result,
		}).Error
}

// MarkCompleted finalizes the import with the true committed counts.
func (r *ImportRepository) MarkCompleted(id uuid.UUID, importedCount, monthCount int) error {
	return r.db.Model(&models.ImportRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         models.ImportStatusCompleted,
			"imported_count": importedCount,
			"month_count":    monthCount,
			"error_message":  "",
		}).Error
}

func (r *ImportRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&models.ImportRecord{}, "id = ?", id).Error
}

// FindCompletedByHash returns the owner's completed import with the same
// content hash, if one exists. Used for duplicate statement detection.
func (r *ImportRepository) FindCompletedByHash(userID, contentHash string) (*models.ImportRecord, error) {
	var record models.ImportRecord
	err := r.db.
		Where("user_id = ? AND content_hash = ? AND status = ?", userID, contentHash, models.ImportStatusCompleted).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
