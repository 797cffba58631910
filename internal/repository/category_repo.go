package repository

import (
	"gorm.io/gorm"

	"github.com/akulikov/statement-import/internal/models"
)

// CategoryRepository reads the category store. The import pipeline never
// creates categories; new-category suggestions go through human approval
// on the category CRUD surface.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) ListByUser(userID string) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&categories).Error
	return categories, err
}
