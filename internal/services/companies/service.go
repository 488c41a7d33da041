package companies

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/net/publicsuffix"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
)

type Service struct {
	repo  ports.CompanyRepository
	clock clockwork.Clock
}

func New(repo ports.CompanyRepository, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, clock: clock}
}

func (s *Service) List(ctx context.Context) ([]domain.Company, error) {
	return s.repo.ListCompanies(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Company, error) {
	return s.repo.GetCompany(ctx, id)
}

// Create onboards a company. New companies always start in ONBOARDING with no documents.
func (s *Service) Create(ctx context.Context, draft domain.CompanyDraft) (domain.Company, error) {
	if err := draft.Validate(); err != nil {
		return domain.Company{}, err
	}
	c := domain.Company{
		ID:          uuid.NewString(),
		Name:        draft.Name,
		Industry:    draft.Industry,
		Country:     draft.Country,
		CreatedDate: domain.Date(s.clock.Now()),
		State:       domain.CompanyOnboarding,
	}
	if draft.Website != nil {
		site, err := RegistrableDomain(*draft.Website)
		if err != nil {
			return domain.Company{}, fmt.Errorf("%w: website: %v", domain.ErrInvalidDraft, err)
		}
		c.Website = &site
	}
	if err := s.repo.InsertCompany(ctx, c); err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

// RegistrableDomain reduces a website URL or bare host to its eTLD+1.
func RegistrableDomain(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	return registrable, nil
}
