// Package jobs defines the background job contracts for the import
// pipeline. The queue abstraction keeps the API process decoupled from the
// implementation; the in-memory queue suits single-instance deployments.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what an import job should do.
type Kind string

const (
	// KindExtract runs chunked extraction over the uploaded document.
	KindExtract Kind = "extract"
	// KindCategorize resolves categories for the extracted candidates.
	KindCategorize Kind = "categorize"
)

// Status is the lifecycle state of a queued job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// ImportJob is one unit of background work against an Import Record.
type ImportJob struct {
	JobID    string    `json:"job_id"`
	Kind     Kind      `json:"kind"`
	ImportID uuid.UUID `json:"import_id"`
	UserID   string    `json:"user_id"`

	// Password is carried for extract jobs against encrypted documents.
	// It lives only in the queue, never in the database.
	Password string `json:"-"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues import jobs.
type Publisher interface {
	Publish(ctx context.Context, job *ImportJob) error
	Close() error
}

// Handler processes one job. A returned error marks the job failed; the
// pipeline's own status routing has already recorded the user-facing
// outcome by then.
type Handler func(ctx context.Context, job *ImportJob) error

// Consumer drains the queue, invoking the handler per job.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}

// Store tracks job state for observability across the job's lifecycle.
type Store interface {
	SaveJob(ctx context.Context, job *ImportJob) error
	GetJob(ctx context.Context, jobID string) (*ImportJob, error)
	ListJobs(ctx context.Context, filter Filter) ([]*ImportJob, error)
}

// Filter narrows ListJobs results.
type Filter struct {
	ImportID uuid.UUID
	Status   Status
	Limit    int
}
