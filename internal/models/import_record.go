package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Import record statuses. The pipeline is the only writer; clients observe
// them through the status poll endpoint.
const (
	ImportStatusUploaded         = "uploaded"
	ImportStatusPasswordRequired = "password_required"
	ImportStatusExtracting       = "extracting"
	ImportStatusExtracted        = "extracted"
	ImportStatusCategorizing     = "categorizing"
	ImportStatusReady            = "ready"
	ImportStatusCompleted        = "completed"
	ImportStatusFailed           = "failed"
)

// ImportRecord tracks one uploaded statement through the import pipeline.
type ImportRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     string    `gorm:"index"`
	ObjectName string
	Filename   string
	Status     string `gorm:"index"`

	BankName    string
	PeriodStart *time.Time
	PeriodEnd   *time.Time

	CandidateCount int
	ImportedCount  int
	MonthCount     int

	ContentHash  string `gorm:"index"`
	ErrorMessage string

	// Categorization summary surfaced to the client once status is ready:
	// totals, average confidence and deduplicated new-category suggestions.
	CategorizationResult datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}
