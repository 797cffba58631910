package importer

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/akulikov/statement-import/internal/errs"
	"github.com/akulikov/statement-import/internal/models"
)

const (
	// maxCommitRows bounds a single commit request.
	maxCommitRows = 1000

	// noteMaxLen truncates statement descriptions to the ledger's note size.
	noteMaxLen = 200

	// keywordMaxLen matches the learned-keyword column size.
	keywordMaxLen = 30
)

// Selection is one row the user confirmed for commit, optionally with a
// category override replacing the suggestion.
type Selection struct {
	CandidateID uuid.UUID  `json:"id"`
	CategoryID  *uuid.UUID `json:"category_id"`
}

// CommitResult summarizes a finished commit.
type CommitResult struct {
	ImportedCount int `json:"imported_count"`
	MonthCount    int `json:"month_count"`
}

// Commit converts the selected candidates into ledger expenses, reinforces
// keyword mappings with the final chosen categories, and tears the import
// down. Partial batch failures degrade to per-row inserts; the count
// reflects what actually landed.
func (s *Service) Commit(ctx context.Context, userID string, importID uuid.UUID, selections []Selection) (*CommitResult, error) {
	if len(selections) == 0 {
		return nil, errs.New(errs.KindValidation, "no transactions selected")
	}
	if len(selections) > maxCommitRows {
		return nil, errs.New(errs.KindValidation, "too many transactions selected, the limit is 1000")
	}

	record, err := s.imports.GetByID(userID, importID)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, "import not found", err)
	}
	switch record.Status {
	case models.ImportStatusReady, models.ImportStatusExtracted:
	default:
		return nil, errs.New(errs.KindValidation, "import is not ready to commit")
	}

	overrides := make(map[uuid.UUID]*uuid.UUID, len(selections))
	ids := make([]uuid.UUID, 0, len(selections))
	for _, sel := range selections {
		if _, dup := overrides[sel.CandidateID]; dup {
			continue
		}
		overrides[sel.CandidateID] = sel.CategoryID
		ids = append(ids, sel.CandidateID)
	}

	candidates, err := s.candidates.ListByIDs(importID, ids)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "could not load the selected candidates", err)
	}
	if len(candidates) == 0 {
		return nil, errs.New(errs.KindValidation, "none of the selected transactions belong to this import")
	}

	expenses := make([]*models.Expense, 0, len(candidates))
	byExpense := make(map[uuid.UUID]*models.CandidateTransaction, len(candidates))
	for i := range candidates {
		cand := &candidates[i]

		categoryID := overrides[cand.ID]
		if categoryID == nil {
			categoryID = cand.SuggestedCategoryID
		}

		expense := &models.Expense{
			ID:            uuid.New(),
			UserID:        userID,
			Date:          cand.Date,
			Amount:        math.Abs(cand.Amount),
			CategoryID:    categoryID,
			Note:          truncateNote(cand.Description),
			PaymentMethod: models.PaymentMethodImported,
		}
		expenses = append(expenses, expense)
		byExpense[expense.ID] = cand
	}

	committed, err := s.expenses.InsertBatch(expenses)
	if err != nil {
		return nil, errs.Wrap(errs.KindCommit, "could not write transactions to the ledger", err)
	}
	if len(committed) == 0 {
		return nil, errs.New(errs.KindCommit, "no transactions could be committed")
	}

	// Reinforce keyword mappings with the categories that actually landed,
	// overrides included. Failures only slow future fast paths.
	months := make(map[string]bool)
	for _, expense := range committed {
		months[expense.Date.Format("2006-01")] = true

		if expense.CategoryID == nil {
			continue
		}
		cand, ok := byExpense[expense.ID]
		if !ok {
			continue
		}
		keyword := deriveKeyword(cand.Description)
		if keyword == "" {
			continue
		}
		if err := s.keywords.Upsert(userID, keyword, *expense.CategoryID); err != nil {
			s.log.Warn().Err(err).Str("keyword", keyword).Msg("Keyword reinforcement failed on commit")
		}
	}

	if err := s.candidates.DeleteByImport(importID); err != nil {
		s.log.Error().Err(err).Str("import_id", importID.String()).Msg("Failed to delete candidates after commit")
	}
	if record.ObjectName != "" {
		if err := s.store.Delete(ctx, record.ObjectName); err != nil {
			s.log.Warn().Err(err).Str("object", record.ObjectName).Msg("Failed to delete source object after commit")
		}
	}

	result := &CommitResult{ImportedCount: len(committed), MonthCount: len(months)}
	if err := s.imports.MarkCompleted(importID, result.ImportedCount, result.MonthCount); err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "could not mark the import as completed", err)
	}

	s.log.Info().
		Str("import_id", importID.String()).
		Int("imported", result.ImportedCount).
		Int("months", result.MonthCount).
		Msg("Import committed")
	return result, nil
}

func truncateNote(description string) string {
	note := strings.TrimSpace(description)
	if len(note) > noteMaxLen {
		note = note[:noteMaxLen]
	}
	return note
}

// deriveKeyword extracts a short lowercase merchant-ish fragment from a
// description: the first token of three or more letters, digits stripped.
func deriveKeyword(description string) string {
	for _, field := range strings.Fields(strings.ToLower(description)) {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) {
				return r
			}
			return -1
		}, field)
		if len(cleaned) >= 3 {
			if len(cleaned) > keywordMaxLen {
				cleaned = cleaned[:keywordMaxLen]
			}
			return cleaned
		}
	}
	return ""
}
