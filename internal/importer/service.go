// Package importer orchestrates the statement import pipeline: upload,
// encryption probing, chunked extraction, duplicate filtering,
// categorization and the final commit into the ledger.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akulikov/statement-import/internal/errs"
	"github.com/akulikov/statement-import/internal/models"
	"github.com/akulikov/statement-import/internal/storage"
)

// maxUploadBytes caps statement uploads.
const maxUploadBytes = 20 << 20

// Service drives one import's lifecycle. The Import Record's status field
// is single-writer: only this service mutates it; clients observe via the
// status poll endpoint.
type Service struct {
	imports    ImportStore
	candidates CandidateStore
	expenses   ExpenseStore
	keywords   KeywordStore

	store        storage.ObjectStore
	orchestrator DocumentExtractor
	resolver     CategoryResolver
	log          zerolog.Logger
}

func NewService(
	imports ImportStore,
	candidates CandidateStore,
	expenses ExpenseStore,
	keywords KeywordStore,
	store storage.ObjectStore,
	orchestrator DocumentExtractor,
	resolver CategoryResolver,
	log zerolog.Logger,
) *Service {
	return &Service{
		imports:      imports,
		candidates:   candidates,
		expenses:     expenses,
		keywords:     keywords,
		store:        store,
		orchestrator: orchestrator,
		resolver:     resolver,
		log:          log,
	}
}

// Upload stores the document and creates the Import Record. Re-uploading
// byte-identical content after a completed import is rejected with a
// DuplicateStatementError referencing the first import's completion date.
func (s *Service) Upload(ctx context.Context, userID, filename string, data []byte) (*models.ImportRecord, error) {
	if len(data) == 0 {
		return nil, errs.New(errs.KindValidation, "uploaded file is empty")
	}
	if len(data) > maxUploadBytes {
		return nil, errs.New(errs.KindValidation, "uploaded file exceeds the 20 MB limit")
	}

	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	if prior, err := s.imports.FindCompletedByHash(userID, contentHash); err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "could not check for duplicate statements", err)
	} else if prior != nil {
		return nil, errs.New(errs.KindDuplicateStatement,
			fmt.Sprintf("this statement was already imported on %s", prior.UpdatedAt.Format("2006-01-02")))
	}

	id := uuid.New()
	objectName := fmt.Sprintf("imports/%s/%s.pdf", userID, id)

	if err := s.store.Upload(ctx, objectName, data, "application/pdf"); err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "could not store the uploaded document", err)
	}

	record := &models.ImportRecord{
		ID:          id,
		UserID:      userID,
		ObjectName:  objectName,
		Filename:    filename,
		Status:      models.ImportStatusUploaded,
		ContentHash: contentHash,
	}
	if err := s.imports.Create(record); err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "could not create the import record", err)
	}

	s.log.Info().
		Str("import_id", id.String()).
		Str("user_id", userID).
		Int("bytes", len(data)).
		Msg("Statement uploaded")
	return record, nil
}

// Get returns the Import Record for status polling.
func (s *Service) Get(ctx context.Context, userID string, importID uuid.UUID) (*models.ImportRecord, error) {
	record, err := s.imports.GetByID(userID, importID)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, "import not found", err)
	}
	return record, nil
}

// Candidates lists an import's candidate transactions for review.
func (s *Service) Candidates(ctx context.Context, userID string, importID uuid.UUID) ([]models.CandidateTransaction, error) {
	if _, err := s.imports.GetByID(userID, importID); err != nil {
		return nil, errs.Wrap(errs.KindNotFound, "import not found", err)
	}
	return s.candidates.ListByImport(importID)
}

// Cancel deletes the Import Record with its candidates and storage object.
// In-flight external calls may still complete; their results are discarded
// against the now-deleted record.
func (s *Service) Cancel(ctx context.Context, userID string, importID uuid.UUID) error {
	record, err := s.imports.GetByID(userID, importID)
	if err != nil {
		return errs.Wrap(errs.KindNotFound, "import not found", err)
	}

	if err := s.candidates.DeleteByImport(importID); err != nil {
		return errs.Wrap(errs.KindPersistence, "could not delete import candidates", err)
	}
	if record.ObjectName != "" {
		if err := s.store.Delete(ctx, record.ObjectName); err != nil {
			s.log.Warn().Err(err).Str("object", record.ObjectName).Msg("Failed to delete source object on cancel")
		}
	}
	if err := s.imports.Delete(importID); err != nil {
		return errs.Wrap(errs.KindPersistence, "could not delete the import record", err)
	}

	s.log.Info().Str("import_id", importID.String()).Msg("Import cancelled")
	return nil
}
