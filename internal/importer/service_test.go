package importer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/akulikov/statement-import/internal/extraction"
	"github.com/akulikov/statement-import/internal/logger"
	"github.com/akulikov/statement-import/internal/models"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeImportStore keeps one record and records status transitions.
type fakeImportStore struct {
	record *models.ImportRecord

	completedImported int
	completedMonths   int
	markedCompleted   bool
	extractionCount   int
}

func (f *fakeImportStore) Create(record *models.ImportRecord) error { f.record = record; return nil }

func (f *fakeImportStore) GetByID(userID string, id uuid.UUID) (*models.ImportRecord, error) {
	return f.record, nil
}

func (f *fakeImportStore) UpdateStatus(id uuid.UUID, status, errorMessage string) error {
	f.record.Status = status
	f.record.ErrorMessage = errorMessage
	return nil
}

func (f *fakeImportStore) SetExtractionResult(id uuid.UUID, bankName string, periodStart, periodEnd *time.Time, candidateCount int) error {
	f.record.Status = models.ImportStatusExtracted
	f.record.BankName = bankName
	f.extractionCount = candidateCount
	return nil
}

func (f *fakeImportStore) SetCategorizationResult(id uuid.UUID, result datatypes.JSON) error {
	f.record.Status = models.ImportStatusReady
	f.record.CategorizationResult = result
	return nil
}

func (f *fakeImportStore) MarkCompleted(id uuid.UUID, importedCount, monthCount int) error {
	f.markedCompleted = true
	f.completedImported = importedCount
	f.completedMonths = monthCount
	return nil
}

func (f *fakeImportStore) Delete(id uuid.UUID) error { f.record = nil; return nil }

func (f *fakeImportStore) FindCompletedByHash(userID, contentHash string) (*models.ImportRecord, error) {
	return nil, nil
}

type fakeCandidateStore struct {
	rows    []models.CandidateTransaction
	deleted bool
}

func (f *fakeCandidateStore) InsertBatch(candidates []*models.CandidateTransaction) (int, error) {
	for _, c := range candidates {
		f.rows = append(f.rows, *c)
	}
	return len(candidates), nil
}

func (f *fakeCandidateStore) ListByImport(importID uuid.UUID) ([]models.CandidateTransaction, error) {
	return f.rows, nil
}

func (f *fakeCandidateStore) ListByIDs(importID uuid.UUID, ids []uuid.UUID) ([]models.CandidateTransaction, error) {
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.CandidateTransaction
	for _, row := range f.rows {
		if wanted[row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeCandidateStore) DeleteByImport(importID uuid.UUID) error {
	f.deleted = true
	f.rows = nil
	return nil
}

// fakeExpenseStore mirrors the repository semantics: the ledger holds
// positive magnitudes and FindDuplicate matches within epsilon of the
// queried amount. skipNotes simulates rows lost to per-row insert fallback.
type fakeExpenseStore struct {
	ledger    []*models.Expense
	skipNotes map[string]bool
}

func (f *fakeExpenseStore) FindDuplicate(userID string, date time.Time, amount float64) (*models.Expense, error) {
	for _, e := range f.ledger {
		if e.UserID == userID && e.Date.Equal(date) && math.Abs(e.Amount-amount) <= 0.01 {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeExpenseStore) InsertBatch(expenses []*models.Expense) ([]*models.Expense, error) {
	var committed []*models.Expense
	for _, e := range expenses {
		if f.skipNotes[e.Note] {
			continue
		}
		f.ledger = append(f.ledger, e)
		committed = append(committed, e)
	}
	return committed, nil
}

type fakeKeywordStore struct {
	upserts map[string]uuid.UUID
}

func (f *fakeKeywordStore) Upsert(userID, keyword string, categoryID uuid.UUID) error {
	if f.upserts == nil {
		f.upserts = make(map[string]uuid.UUID)
	}
	f.upserts[keyword] = categoryID
	return nil
}

type fakeObjectStore struct {
	data    []byte
	deleted []string
}

func (f *fakeObjectStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	f.data = data
	return nil
}

func (f *fakeObjectStore) Download(ctx context.Context, objectName string) ([]byte, error) {
	return f.data, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, objectName string) error {
	f.deleted = append(f.deleted, objectName)
	return nil
}

type fakeExtractor struct {
	result *extraction.Result
}

func (f *fakeExtractor) Run(ctx context.Context, data []byte) (*extraction.Result, error) {
	return f.result, nil
}

func newTestService(imports *fakeImportStore, candidates *fakeCandidateStore, expenses *fakeExpenseStore, keywords *fakeKeywordStore, store *fakeObjectStore, extractor *fakeExtractor) *Service {
	return NewService(imports, candidates, expenses, keywords, store, extractor, nil, logger.NewWithWriter(nopWriter{}))
}

func TestRunExtraction_DebitMatchesLedgerMagnitude(t *testing.T) {
	userID := "user-1"
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	ledgerRow := &models.Expense{
		ID:     uuid.New(),
		UserID: userID,
		Date:   date,
		Amount: 12.50, // positive magnitude, as the ledger stores it
	}

	imports := &fakeImportStore{record: &models.ImportRecord{
		ID:         uuid.New(),
		UserID:     userID,
		ObjectName: "imports/user-1/doc.pdf",
		Status:     models.ImportStatusExtracting,
	}}
	candidates := &fakeCandidateStore{}
	expenses := &fakeExpenseStore{ledger: []*models.Expense{ledgerRow}}
	store := &fakeObjectStore{data: []byte("%PDF-1.4 plain")}
	extractor := &fakeExtractor{result: &extraction.Result{
		BankName: "Monzo",
		Transactions: []extraction.Transaction{
			{Date: date, Description: "COFFEE SHOP", Amount: -12.50, IsDebit: true},
			{Date: date, Description: "BAKERY", Amount: -9.99, IsDebit: true},
		},
	}}

	svc := newTestService(imports, candidates, expenses, &fakeKeywordStore{}, store, extractor)

	if err := svc.RunExtraction(context.Background(), userID, imports.record.ID, ""); err != nil {
		t.Fatalf("RunExtraction() error = %v", err)
	}

	if len(candidates.rows) != 2 {
		t.Fatalf("persisted %d candidates, want 2", len(candidates.rows))
	}

	dup := candidates.rows[0]
	if !dup.IsDuplicate {
		t.Error("debit matching a ledger row by magnitude was not flagged is_duplicate")
	}
	if dup.IsSelected {
		t.Error("duplicate candidate should be unselected")
	}
	if dup.DuplicateOfID == nil || *dup.DuplicateOfID != ledgerRow.ID {
		t.Errorf("DuplicateOfID = %v, want %s", dup.DuplicateOfID, ledgerRow.ID)
	}

	fresh := candidates.rows[1]
	if fresh.IsDuplicate || !fresh.IsSelected {
		t.Errorf("unmatched candidate flagged wrong: is_duplicate=%v is_selected=%v", fresh.IsDuplicate, fresh.IsSelected)
	}

	if imports.extractionCount != 2 {
		t.Errorf("extraction count = %d, want 2", imports.extractionCount)
	}
}

func TestCommit_CountReflectsRowsActuallyPersisted(t *testing.T) {
	userID := "user-1"
	importID := uuid.New()
	march := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC)
	groceries := uuid.New()

	imports := &fakeImportStore{record: &models.ImportRecord{
		ID:         importID,
		UserID:     userID,
		ObjectName: "imports/user-1/doc.pdf",
		Status:     models.ImportStatusReady,
	}}
	candidates := &fakeCandidateStore{rows: []models.CandidateTransaction{
		{ID: uuid.New(), ImportID: importID, UserID: userID, Date: march, Description: "TESCO STORES", Amount: -20, SuggestedCategoryID: &groceries},
		{ID: uuid.New(), ImportID: importID, UserID: userID, Date: march, Description: "FLAKY ROW", Amount: -5},
		{ID: uuid.New(), ImportID: importID, UserID: userID, Date: april, Description: "BAKERY", Amount: -3.50},
	}}
	// One row fails its individual insert after the batch falls back.
	expenses := &fakeExpenseStore{skipNotes: map[string]bool{"FLAKY ROW": true}}
	keywords := &fakeKeywordStore{}
	store := &fakeObjectStore{}

	svc := newTestService(imports, candidates, expenses, keywords, store, nil)

	selections := []Selection{
		{CandidateID: candidates.rows[0].ID},
		{CandidateID: candidates.rows[1].ID},
		{CandidateID: candidates.rows[2].ID},
	}
	result, err := svc.Commit(context.Background(), userID, importID, selections)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if result.ImportedCount != 2 {
		t.Errorf("ImportedCount = %d, want 2 (only rows that actually landed)", result.ImportedCount)
	}
	if result.MonthCount != 2 {
		t.Errorf("MonthCount = %d, want 2", result.MonthCount)
	}
	if !imports.markedCompleted || imports.completedImported != 2 || imports.completedMonths != 2 {
		t.Errorf("MarkCompleted got (%d, %d), want (2, 2)", imports.completedImported, imports.completedMonths)
	}
	if len(expenses.ledger) != 2 {
		t.Errorf("ledger has %d rows, want 2", len(expenses.ledger))
	}
	for _, e := range expenses.ledger {
		if e.Amount <= 0 {
			t.Errorf("ledger amount = %v, want positive magnitude", e.Amount)
		}
	}

	if got := keywords.upserts["tesco"]; got != groceries {
		t.Errorf("keyword tesco mapped to %s, want %s", got, groceries)
	}
	if !candidates.deleted {
		t.Error("candidates were not torn down after commit")
	}
	if len(store.deleted) != 1 {
		t.Errorf("source object deletions = %d, want 1", len(store.deleted))
	}
}

func TestCommit_CategoryOverrideBeatsSuggestion(t *testing.T) {
	userID := "user-1"
	importID := uuid.New()
	suggested := uuid.New()
	override := uuid.New()

	imports := &fakeImportStore{record: &models.ImportRecord{
		ID:     importID,
		UserID: userID,
		Status: models.ImportStatusReady,
	}}
	candidates := &fakeCandidateStore{rows: []models.CandidateTransaction{
		{ID: uuid.New(), ImportID: importID, UserID: userID, Date: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), Description: "UBER TRIP", Amount: -14, SuggestedCategoryID: &suggested},
	}}
	expenses := &fakeExpenseStore{}
	keywords := &fakeKeywordStore{}

	svc := newTestService(imports, candidates, expenses, keywords, &fakeObjectStore{}, nil)

	_, err := svc.Commit(context.Background(), userID, importID, []Selection{
		{CandidateID: candidates.rows[0].ID, CategoryID: &override},
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if got := expenses.ledger[0].CategoryID; got == nil || *got != override {
		t.Errorf("committed category = %v, want the override %s", got, override)
	}
	if got := keywords.upserts["uber"]; got != override {
		t.Errorf("keyword learned %s, want the override %s", got, override)
	}
}
