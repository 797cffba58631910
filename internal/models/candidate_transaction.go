package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CandidateTransaction is an extracted, not-yet-committed transaction row
// scoped to exactly one ImportRecord. All candidates of an import are
// deleted when the import completes or is cancelled.
type CandidateTransaction struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ImportID uuid.UUID `gorm:"index"`
	UserID   string    `gorm:"index"`

	Date        time.Time
	Description string
	Amount      float64 // signed: negative for debits
	IsDebit     bool
	Balance     *float64
	RawData     datatypes.JSON

	IsDuplicate   bool
	DuplicateOfID *uuid.UUID
	IsSelected    bool

	SuggestedCategoryID *uuid.UUID
	Confidence          float64

	CreatedAt time.Time
}
