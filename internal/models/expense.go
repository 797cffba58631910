package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethodImported marks ledger rows created by the import pipeline.
const PaymentMethodImported = "imported"

// Expense is the permanent ledger entry. The pipeline only creates rows
// here; editing and deletion happen through the normal expense surface.
type Expense struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID        string    `gorm:"index"`
	Date          time.Time `gorm:"index"`
	Amount        float64   `gorm:"index"` // positive magnitude
	CategoryID    *uuid.UUID
	Note          string
	PaymentMethod string

	CreatedAt time.Time
}
