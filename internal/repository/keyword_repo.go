package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akulikov/statement-import/internal/models"
)

type KeywordRepository struct {
	db *gorm.DB
}

func NewKeywordRepository(db *gorm.DB) *KeywordRepository {
	return &KeywordRepository{db: db}
}

// ListByUser returns the owner's learned mappings in descending usage-count
// order, which fixes the fast-path matching order.
func (r *KeywordRepository) ListByUser(userID string) ([]models.KeywordMapping, error) {
	var mappings []models.KeywordMapping
	err := r.db.
		Where("user_id = ?", userID).
		Order("usage_count DESC, keyword ASC").
		Find(&mappings).Error
	return mappings, err
}

// Upsert records a confirmed keyword-to-category association. An existing
// mapping for the same owner and keyword is repointed to the new category
// and its usage counter incremented (last write wins).
func (r *KeywordRepository) Upsert(userID, keyword string, categoryID uuid.UUID) error {
	mapping := models.KeywordMapping{
		ID:         uuid.New(),
		UserID:     userID,
		Keyword:    keyword,
		CategoryID: categoryID,
		UsageCount: 1,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "keyword"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"category_id": categoryID,
			"usage_count": gorm.Expr("keyword_mappings.usage_count + 1"),
			"updated_at":  time.Now(),
		}),
	}).Create(&mapping).Error
}
