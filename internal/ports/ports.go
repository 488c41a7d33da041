package ports

import (
	"context"
	"io"
	"time"

	"auditflow/internal/domain"
)

// Backend is the system-of-record contract the client-side core talks to.
type Backend interface {
	GetCompanies(ctx context.Context) ([]domain.Company, error)
	GetCompany(ctx context.Context, companyID string) (domain.Company, error)
	CreateCompany(ctx context.Context, draft domain.CompanyDraft) (domain.Company, error)
	GetDocuments(ctx context.Context, companyID string) ([]domain.Document, error)
	NegotiateUpload(ctx context.Context, req domain.UploadRequest) (domain.UploadTarget, error)
	ConfirmUpload(ctx context.Context, documentID string) (domain.Document, error)
	// FailUpload marks a negotiated document ERROR when its bytes never arrived.
	FailUpload(ctx context.Context, documentID, reason string) (domain.Document, error)
	StartAudit(ctx context.Context, companyID string) (domain.Audit, error)
	// GetAudit returns domain.ErrNotFound for unknown ids.
	GetAudit(ctx context.Context, auditID string) (domain.Audit, error)
	GetAuditFindings(ctx context.Context, auditID string) ([]domain.Finding, error)
}

// AuditFetcher is the slice of Backend the poller needs.
type AuditFetcher interface {
	GetAudit(ctx context.Context, auditID string) (domain.Audit, error)
}

// UploadBackend is the slice of Backend the upload orchestrator needs.
type UploadBackend interface {
	NegotiateUpload(ctx context.Context, req domain.UploadRequest) (domain.UploadTarget, error)
	ConfirmUpload(ctx context.Context, documentID string) (domain.Document, error)
	FailUpload(ctx context.Context, documentID, reason string) (domain.Document, error)
}

// Transferer moves file bytes to a negotiated upload URL. It must read body to EOF on success.
type Transferer interface {
	Transfer(ctx context.Context, uploadURL string, body io.Reader, size int64, contentType string) error
}

// ObjectStore issues upload targets and reports what has landed.
type ObjectStore interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	Stat(ctx context.Context, key string) (exists bool, size int64, err error)
}

// KeyValueStore is durable, scoped client-side state (e.g. active audit ids).
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
