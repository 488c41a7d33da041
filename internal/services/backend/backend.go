// Package backend is the system of record behind the ports.Backend contract.
package backend

import (
	"context"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
	"auditflow/internal/services/audits"
	"auditflow/internal/services/companies"
	"auditflow/internal/services/documents"
)

type Backend struct {
	Companies *companies.Service
	Documents *documents.Service
	Audits    *audits.Service
}

var _ ports.Backend = (*Backend)(nil)

func New(c *companies.Service, d *documents.Service, a *audits.Service) *Backend {
	return &Backend{Companies: c, Documents: d, Audits: a}
}

func (b *Backend) GetCompanies(ctx context.Context) ([]domain.Company, error) {
	return b.Companies.List(ctx)
}

func (b *Backend) GetCompany(ctx context.Context, companyID string) (domain.Company, error) {
	return b.Companies.Get(ctx, companyID)
}

func (b *Backend) CreateCompany(ctx context.Context, draft domain.CompanyDraft) (domain.Company, error) {
	return b.Companies.Create(ctx, draft)
}

func (b *Backend) GetDocuments(ctx context.Context, companyID string) ([]domain.Document, error) {
	return b.Documents.List(ctx, companyID)
}

func (b *Backend) NegotiateUpload(ctx context.Context, req domain.UploadRequest) (domain.UploadTarget, error) {
	return b.Documents.Negotiate(ctx, req)
}

func (b *Backend) ConfirmUpload(ctx context.Context, documentID string) (domain.Document, error) {
	return b.Documents.Confirm(ctx, documentID)
}

func (b *Backend) FailUpload(ctx context.Context, documentID, reason string) (domain.Document, error) {
	return b.Documents.Fail(ctx, documentID, reason)
}

func (b *Backend) StartAudit(ctx context.Context, companyID string) (domain.Audit, error) {
	return b.Audits.Start(ctx, companyID)
}

func (b *Backend) GetAudit(ctx context.Context, auditID string) (domain.Audit, error) {
	return b.Audits.Get(ctx, auditID)
}

func (b *Backend) GetAuditFindings(ctx context.Context, auditID string) ([]domain.Finding, error) {
	return b.Audits.Findings(ctx, auditID)
}
