package importer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/akulikov/statement-import/internal/categorize"
	"github.com/akulikov/statement-import/internal/extraction"
	"github.com/akulikov/statement-import/internal/models"
)

// ImportStore persists Import Records. The production implementation is
// repository.ImportRepository; tests substitute fakes.
type ImportStore interface {
	Create(record *models.ImportRecord) error
	GetByID(userID string, id uuid.UUID) (*models.ImportRecord, error)
	UpdateStatus(id uuid.UUID, status, errorMessage string) error
	SetExtractionResult(id uuid.UUID, bankName string, periodStart, periodEnd *time.Time, candidateCount int) error
	SetCategorizationResult(id uuid.UUID, result datatypes.JSON) error
	MarkCompleted(id uuid.UUID, importedCount, monthCount int) error
	Delete(id uuid.UUID) error
	FindCompletedByHash(userID, contentHash string) (*models.ImportRecord, error)
}

// CandidateStore persists the transient candidate rows of an import.
type CandidateStore interface {
	InsertBatch(candidates []*models.CandidateTransaction) (int, error)
	ListByImport(importID uuid.UUID) ([]models.CandidateTransaction, error)
	ListByIDs(importID uuid.UUID, ids []uuid.UUID) ([]models.CandidateTransaction, error)
	DeleteByImport(importID uuid.UUID) error
}

// ExpenseStore is the ledger surface the pipeline touches: duplicate
// lookups by positive magnitude, and the commit insert.
type ExpenseStore interface {
	FindDuplicate(userID string, date time.Time, amount float64) (*models.Expense, error)
	InsertBatch(expenses []*models.Expense) ([]*models.Expense, error)
}

// KeywordStore records confirmed keyword-to-category associations.
type KeywordStore interface {
	Upsert(userID, keyword string, categoryID uuid.UUID) error
}

// DocumentExtractor runs chunked extraction over one decrypted document.
type DocumentExtractor interface {
	Run(ctx context.Context, data []byte) (*extraction.Result, error)
}

// CategoryResolver categorizes an import's candidates.
type CategoryResolver interface {
	Resolve(ctx context.Context, userID string, candidates []models.CandidateTransaction) (*categorize.Summary, error)
}
