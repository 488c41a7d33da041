package ports

import (
	"context"

	"auditflow/internal/domain"
)

type AuditJob struct {
	ID        string
	AuditID   string
	CompanyID string
}

// AuditResult is what a finished run writes back.
type AuditResult struct {
	Summary  string
	Metrics  domain.Metrics
	Findings []domain.Finding
	// Outcome is COMPLIANT or NON_COMPLIANT.
	Outcome domain.CompanyState
}

// JobRepository supports claiming and updating audit jobs.
type JobRepository interface {
	// ClaimNext marks the oldest queued job running (audit QUEUED -> RUNNING).
	ClaimNext(ctx context.Context) (job AuditJob, found bool, err error)
	// UpdateAuditProgress never lowers stored progress.
	UpdateAuditProgress(ctx context.Context, auditID string, progress int, summary string) error
	// MarkCompleted stores the result, completes the audit and moves the company to result.Outcome.
	MarkCompleted(ctx context.Context, jobID string, result AuditResult) error
	// MarkFailed fails the audit and returns the company to READY_TO_AUDIT.
	MarkFailed(ctx context.Context, jobID string, reason string) error
}

// AuditSource gives the processor the documents a run evaluates.
type AuditSource interface {
	ListDocuments(ctx context.Context, companyID string) ([]domain.Document, error)
}
