package models

import (
	"time"

	"github.com/google/uuid"
)

// KeywordMapping is a learned association from a lowercase description
// fragment to a category, reinforced each time a categorization with that
// keyword is confirmed. A keyword maps to exactly one category per owner
// (last write wins via upsert).
type KeywordMapping struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     string    `gorm:"uniqueIndex:idx_keyword_owner"`
	Keyword    string    `gorm:"uniqueIndex:idx_keyword_owner"`
	CategoryID uuid.UUID
	UsageCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}
