package importer

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/akulikov/statement-import/internal/errs"
	"github.com/akulikov/statement-import/internal/extraction"
	"github.com/akulikov/statement-import/internal/models"
	"github.com/akulikov/statement-import/internal/pdf"
)

// BeginExtraction is the synchronous gate in front of the extraction job:
// it downloads the document, probes for encryption and verifies the
// password. On success the record moves to extracting and the caller is
// expected to enqueue the background job with the same password.
func (s *Service) BeginExtraction(ctx context.Context, userID string, importID uuid.UUID, password string) error {
	record, err := s.imports.GetByID(userID, importID)
	if err != nil {
		return errs.Wrap(errs.KindNotFound, "import not found", err)
	}

	data, err := s.store.Download(ctx, record.ObjectName)
	if err != nil {
		return s.failImport(importID, errs.Wrap(errs.KindDownload, "could not download the uploaded document", err))
	}

	if _, err := s.openDocument(importID, data, password); err != nil {
		return err
	}

	if err := s.imports.UpdateStatus(importID, models.ImportStatusExtracting, ""); err != nil {
		return errs.Wrap(errs.KindPersistence, "could not update the import status", err)
	}
	return nil
}

// RunExtraction is the background job body. It re-opens the document with
// the already-verified password, runs chunked extraction, filters
// duplicates against the ledger and persists the candidates.
func (s *Service) RunExtraction(ctx context.Context, userID string, importID uuid.UUID, password string) error {
	record, err := s.imports.GetByID(userID, importID)
	if err != nil {
		return errs.Wrap(errs.KindNotFound, "import not found", err)
	}

	data, err := s.store.Download(ctx, record.ObjectName)
	if err != nil {
		return s.failImport(importID, errs.Wrap(errs.KindDownload, "could not download the uploaded document", err))
	}

	data, err = s.openDocument(importID, data, password)
	if err != nil {
		return err
	}

	result, err := s.orchestrator.Run(ctx, data)
	if err != nil {
		// An encrypted document opened with a wrong-but-accepted password
		// often decodes to garbage pages; surface that as a password
		// problem rather than a dead end.
		if errs.Is(err, errs.KindNoTransactions) && password != "" {
			s.setPasswordRequired(importID, "No transactions were found. The password may be incorrect, please try again.")
			return err
		}
		return s.failImport(importID, err)
	}

	count, err := s.persistCandidates(record, result)
	if err != nil {
		return s.failImport(importID, err)
	}

	if err := s.imports.SetExtractionResult(importID, result.BankName, result.PeriodStart, result.PeriodEnd, count); err != nil {
		return s.failImport(importID, errs.Wrap(errs.KindPersistence, "could not record the extraction result", err))
	}

	s.log.Info().
		Str("import_id", importID.String()).
		Str("bank", result.BankName).
		Int("candidates", count).
		Msg("Extraction finished")
	return nil
}

// openDocument probes for encryption and decrypts when needed, routing the
// record to password_required on any password problem.
func (s *Service) openDocument(importID uuid.UUID, data []byte, password string) ([]byte, error) {
	if !pdf.IsEncrypted(data) {
		return data, nil
	}

	if password == "" {
		err := errs.New(errs.KindPasswordRequired, "this document is password protected")
		s.setPasswordRequired(importID, "This document is password protected. Please provide the password.")
		return nil, err
	}

	decrypted, err := pdf.Decrypt(data, password)
	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindWrongPassword:
			s.setPasswordRequired(importID, "Incorrect password. Please try again.")
		default:
			s.setPasswordRequired(importID, "The document could not be decrypted. Please check the password.")
		}
		return nil, err
	}
	return decrypted, nil
}

// persistCandidates converts extracted transactions into candidate rows,
// flagging likely duplicates against the user's existing ledger. Rows
// missing a date or amount are dropped.
func (s *Service) persistCandidates(record *models.ImportRecord, result *extraction.Result) (int, error) {
	rows := make([]*models.CandidateTransaction, 0, len(result.Transactions))
	for _, tx := range result.Transactions {
		if tx.Date.IsZero() || tx.Amount == 0 {
			s.log.Debug().Str("description", tx.Description).Msg("Dropping incomplete transaction")
			continue
		}

		row := &models.CandidateTransaction{
			ID:          uuid.New(),
			ImportID:    record.ID,
			UserID:      record.UserID,
			Date:        tx.Date.Truncate(24 * time.Hour),
			Description: tx.Description,
			Amount:      tx.Amount,
			IsDebit:     tx.IsDebit,
			Balance:     tx.Balance,
			IsSelected:  true,
		}

		if raw, err := json.Marshal(tx.Raw); err == nil {
			row.RawData = datatypes.JSON(raw)
		}

		// The ledger stores positive magnitudes; candidates carry the
		// statement's signed amount.
		existing, err := s.expenses.FindDuplicate(record.UserID, row.Date, math.Abs(row.Amount))
		if err != nil {
			return 0, errs.Wrap(errs.KindPersistence, "could not check candidates against the ledger", err)
		}
		if existing != nil {
			row.IsDuplicate = true
			row.DuplicateOfID = &existing.ID
			row.IsSelected = false
		}

		rows = append(rows, row)
	}

	inserted, err := s.candidates.InsertBatch(rows)
	if err != nil {
		return 0, errs.Wrap(errs.KindPersistence, "could not persist candidate transactions", err)
	}
	return inserted, nil
}

func (s *Service) setPasswordRequired(importID uuid.UUID, message string) {
	if err := s.imports.UpdateStatus(importID, models.ImportStatusPasswordRequired, message); err != nil {
		s.log.Error().Err(err).Str("import_id", importID.String()).Msg("Failed to set password_required status")
	}
}

// failImport marks the record failed with a user-presentable message and
// returns the original error for the caller.
func (s *Service) failImport(importID uuid.UUID, cause error) error {
	if err := s.imports.UpdateStatus(importID, models.ImportStatusFailed, errs.UserMessage(cause)); err != nil {
		s.log.Error().Err(err).Str("import_id", importID.String()).Msg("Failed to mark import as failed")
	}
	return cause
}
