package audits

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
	"auditflow/internal/statemachine"
)

const queuedSummary = "Initializing audit protocols..."

type Service struct {
	audits    ports.AuditRepository
	companies ports.CompanyRepository
	clock     clockwork.Clock
}

func New(audits ports.AuditRepository, companies ports.CompanyRepository, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{audits: audits, companies: companies, clock: clock}
}

// Start queues a run for the company and moves it to AUDIT_IN_PROGRESS.
// Two concurrent starts for the same company cannot both succeed.
func (s *Service) Start(ctx context.Context, companyID string) (domain.Audit, error) {
	c, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return domain.Audit{}, err
	}
	if !statemachine.Company.CanStartAudit(c.State) || !statemachine.Company.CanTransition(c.State, domain.CompanyAuditInProgress) {
		return domain.Audit{}, statemachine.Denied("company", c.State, domain.CompanyAuditInProgress)
	}
	ok, err := s.companies.SetCompanyState(ctx, c.ID, c.State, domain.CompanyAuditInProgress)
	if err != nil {
		return domain.Audit{}, err
	}
	if !ok {
		return domain.Audit{}, statemachine.Denied("company", c.State, domain.CompanyAuditInProgress)
	}

	a := domain.Audit{
		ID:        uuid.NewString(),
		CompanyID: c.ID,
		Date:      domain.Date(s.clock.Now()),
		Status:    domain.AuditQueued,
		Summary:   queuedSummary,
		Findings:  []domain.Finding{},
	}
	if err := s.audits.CreateAudit(ctx, a); err != nil {
		if _, rerr := s.companies.SetCompanyState(ctx, c.ID, domain.CompanyAuditInProgress, c.State); rerr != nil {
			log.Printf("audits: restore company %s state: %v", c.ID, rerr)
		}
		return domain.Audit{}, fmt.Errorf("create audit: %w", err)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Audit, error) {
	return s.audits.GetAudit(ctx, id)
}

func (s *Service) Findings(ctx context.Context, id string) ([]domain.Finding, error) {
	a, err := s.audits.GetAudit(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Findings == nil {
		return []domain.Finding{}, nil
	}
	return a.Findings, nil
}
