package importer

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/akulikov/statement-import/internal/errs"
	"github.com/akulikov/statement-import/internal/models"
)

// BeginCategorization validates that the import is ready for the
// categorization stage and moves it to categorizing. The caller enqueues
// the background job on success.
func (s *Service) BeginCategorization(ctx context.Context, userID string, importID uuid.UUID) error {
	record, err := s.imports.GetByID(userID, importID)
	if err != nil {
		return errs.Wrap(errs.KindNotFound, "import not found", err)
	}

	switch record.Status {
	case models.ImportStatusExtracted, models.ImportStatusReady:
	default:
		return errs.New(errs.KindValidation, "import is not ready for categorization")
	}

	if err := s.imports.UpdateStatus(importID, models.ImportStatusCategorizing, ""); err != nil {
		return errs.Wrap(errs.KindPersistence, "could not update the import status", err)
	}
	return nil
}

// RunCategorization is the background job body: it resolves categories for
// every candidate and stores the summary on the record, moving it to ready.
func (s *Service) RunCategorization(ctx context.Context, userID string, importID uuid.UUID) error {
	record, err := s.imports.GetByID(userID, importID)
	if err != nil {
		return errs.Wrap(errs.KindNotFound, "import not found", err)
	}

	candidates, err := s.candidates.ListByImport(record.ID)
	if err != nil {
		return s.failImport(importID, errs.Wrap(errs.KindPersistence, "could not load candidate transactions", err))
	}

	summary, err := s.resolver.Resolve(ctx, userID, candidates)
	if err != nil {
		return s.failImport(importID, errs.Wrap(errs.KindCategorization, "categorization failed", err))
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return s.failImport(importID, errs.Wrap(errs.KindCategorization, "could not encode the categorization summary", err))
	}
	if err := s.imports.SetCategorizationResult(importID, payload); err != nil {
		return s.failImport(importID, errs.Wrap(errs.KindPersistence, "could not record the categorization result", err))
	}

	s.log.Info().
		Str("import_id", importID.String()).
		Int("total", summary.TotalTransactions).
		Int("categorized", summary.CategorizedCount).
		Msg("Categorization finished")
	return nil
}
