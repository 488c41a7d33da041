package ports

import (
	"context"

	"auditflow/internal/domain"
)

// CompanyRepository stores companies and their workflow state.
type CompanyRepository interface {
	ListCompanies(ctx context.Context) ([]domain.Company, error)
	GetCompany(ctx context.Context, id string) (domain.Company, error)
	InsertCompany(ctx context.Context, c domain.Company) error
	// SetCompanyState moves a company from one state to another; it reports false if the
	// stored state was no longer `from`.
	SetCompanyState(ctx context.Context, id string, from, to domain.CompanyState) (bool, error)
}

// DocumentRepository stores document records; blobs live in the ObjectStore.
type DocumentRepository interface {
	ListDocuments(ctx context.Context, companyID string) ([]domain.Document, error)
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	InsertDocument(ctx context.Context, d domain.Document, objectKey string) error
	ObjectKey(ctx context.Context, id string) (string, error)
	// SetDocumentStatus updates status and, when non-nil, summary/error message. Moving a
	// document to READY also bumps the owning company's document count.
	SetDocumentStatus(ctx context.Context, id string, status domain.DocumentState, summary, errMsg *string) (domain.Document, error)
	// RetryDocument moves an ERROR document back to UPLOADING under a new name and object
	// key, clearing its summary and error. It reports false if the document was not in ERROR.
	RetryDocument(ctx context.Context, d domain.Document, objectKey string) (bool, error)
}

// AuditRepository stores audit runs and their findings.
type AuditRepository interface {
	// CreateAudit inserts a QUEUED audit and its job.
	CreateAudit(ctx context.Context, a domain.Audit) error
	GetAudit(ctx context.Context, id string) (domain.Audit, error)
}
