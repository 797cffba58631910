package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is owned by the category CRUD surface; the pipeline reads it
// for categorization and never creates rows itself.
type Category struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID string    `gorm:"index"`
	Name   string
	Icon   string
	Color  string

	CreatedAt time.Time
}
