// Package handlers exposes the import pipeline over HTTP.
package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akulikov/statement-import/internal/api/middleware"
	"github.com/akulikov/statement-import/internal/errs"
	"github.com/akulikov/statement-import/internal/importer"
	"github.com/akulikov/statement-import/internal/jobs"
	"github.com/akulikov/statement-import/internal/logger"
	"github.com/akulikov/statement-import/internal/models"
	"github.com/akulikov/statement-import/internal/repository"
)

// maxUploadBytes mirrors the service-side cap so oversized bodies are
// rejected before buffering completes.
const maxUploadBytes = 20 << 20

// ImportHandler serves the import endpoints.
type ImportHandler struct {
	service    *importer.Service
	publisher  jobs.Publisher
	categories *repository.CategoryRepository
	log        zerolog.Logger
}

func NewImportHandler(service *importer.Service, publisher jobs.Publisher, categories *repository.CategoryRepository, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{service: service, publisher: publisher, categories: categories, log: log}
}

// Upload accepts a multipart PDF and creates the import.
func (h *ImportHandler) Upload(c *gin.Context) {
	userID := middleware.UserID(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, errs.New(errs.KindValidation, "a file is required"))
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".pdf" {
		writeError(c, errs.New(errs.KindValidation, "only PDF statements are supported"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(c, errs.Wrap(errs.KindValidation, "could not read the uploaded file", err))
		return
	}

	record, err := h.service.Upload(c.Request.Context(), userID, header.Filename, data)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, importResponse(record))
}

// Extract verifies the password synchronously, then queues the extraction
// job. Password problems come back as a password_required payload rather
// than an error status so the client can re-prompt.
func (h *ImportHandler) Extract(c *gin.Context) {
	userID := middleware.UserID(c)
	importID, ok := parseID(c)
	if !ok {
		return
	}

	var payload struct {
		Password string `json:"password"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&payload); err != nil {
			writeError(c, errs.New(errs.KindValidation, "invalid request body"))
			return
		}
	}

	if err := h.service.BeginExtraction(c.Request.Context(), userID, importID, payload.Password); err != nil {
		if errs.PasswordRelated(err) {
			c.JSON(http.StatusOK, gin.H{
				"success":           false,
				"password_required": true,
				"status":            models.ImportStatusPasswordRequired,
				"message":           errs.UserMessage(err),
			})
			return
		}
		writeError(c, err)
		return
	}

	job := &jobs.ImportJob{
		Kind:     jobs.KindExtract,
		ImportID: importID,
		UserID:   userID,
		Password: payload.Password,
	}
	if err := h.publisher.Publish(c.Request.Context(), job); err != nil {
		writeError(c, errs.Wrap(errs.KindPersistence, "could not queue the extraction", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "status": models.ImportStatusExtracting, "job_id": job.JobID})
}

// Categorize queues the categorization job.
func (h *ImportHandler) Categorize(c *gin.Context) {
	userID := middleware.UserID(c)
	importID, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.BeginCategorization(c.Request.Context(), userID, importID); err != nil {
		writeError(c, err)
		return
	}

	job := &jobs.ImportJob{
		Kind:     jobs.KindCategorize,
		ImportID: importID,
		UserID:   userID,
	}
	if err := h.publisher.Publish(c.Request.Context(), job); err != nil {
		writeError(c, errs.Wrap(errs.KindPersistence, "could not queue the categorization", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "status": models.ImportStatusCategorizing, "job_id": job.JobID})
}

// Commit writes the selected candidates into the ledger.
func (h *ImportHandler) Commit(c *gin.Context) {
	userID := middleware.UserID(c)
	importID, ok := parseID(c)
	if !ok {
		return
	}

	var payload struct {
		Transactions []importer.Selection `json:"transactions"`
	}
	if err := c.BindJSON(&payload); err != nil {
		writeError(c, errs.New(errs.KindValidation, "invalid request body"))
		return
	}

	result, err := h.service.Commit(c.Request.Context(), userID, importID, payload.Transactions)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"imported_count": result.ImportedCount,
		"month_count":    result.MonthCount,
	})
}

// Get returns the import's current status for polling.
func (h *ImportHandler) Get(c *gin.Context) {
	userID := middleware.UserID(c)
	importID, ok := parseID(c)
	if !ok {
		return
	}

	record, err := h.service.Get(c.Request.Context(), userID, importID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, importResponse(record))
}

// Candidates returns the extracted rows for review.
func (h *ImportHandler) Candidates(c *gin.Context) {
	userID := middleware.UserID(c)
	importID, ok := parseID(c)
	if !ok {
		return
	}

	candidates, err := h.service.Candidates(c.Request.Context(), userID, importID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

// Cancel abandons the import, removing its candidates and source document.
func (h *ImportHandler) Cancel(c *gin.Context) {
	userID := middleware.UserID(c)
	importID, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Cancel(c.Request.Context(), userID, importID); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListCategories returns the user's categories for the review screen.
func (h *ImportHandler) ListCategories(c *gin.Context) {
	userID := middleware.UserID(c)

	categories, err := h.categories.ListByUser(userID)
	if err != nil {
		writeError(c, errs.Wrap(errs.KindPersistence, "could not load categories", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, errs.New(errs.KindValidation, "invalid import id"))
		return uuid.Nil, false
	}
	return id, true
}

func importResponse(record *models.ImportRecord) gin.H {
	resp := gin.H{
		"id":              record.ID,
		"filename":        record.Filename,
		"status":          record.Status,
		"bank_name":       record.BankName,
		"period_start":    record.PeriodStart,
		"period_end":      record.PeriodEnd,
		"candidate_count": record.CandidateCount,
		"imported_count":  record.ImportedCount,
		"month_count":     record.MonthCount,
		"error_message":   record.ErrorMessage,
		"created_at":      record.CreatedAt,
		"updated_at":      record.UpdatedAt,
	}
	if len(record.CategorizationResult) > 0 {
		resp["categorization"] = record.CategorizationResult
	}
	return resp
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindAuthentication:
		status = http.StatusUnauthorized
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindDuplicateStatement:
		status = http.StatusConflict
	case errs.KindPasswordRequired, errs.KindWrongPassword, errs.KindDecryptFailure:
		status = http.StatusUnprocessableEntity
	case errs.KindRateLimited, errs.KindQuotaExhausted:
		status = http.StatusTooManyRequests
	case errs.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		log := logger.FromContext(c.Request.Context())
		log.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"kind":    string(errs.KindOf(err)),
			"message": errs.UserMessage(err),
		},
	})
}
