// Package memory implements the repository ports in process memory for dev mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
)

type document struct {
	doc       domain.Document
	objectKey string
	seq       int
}

type job struct {
	id        string
	auditID   string
	companyID string
	status    string
	seq       int
}

type Store struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	seq       int
	companies map[string]domain.Company
	order     []string
	documents map[string]*document
	audits    map[string]domain.Audit
	jobs      map[string]*job
}

var (
	_ ports.CompanyRepository  = (*Store)(nil)
	_ ports.DocumentRepository = (*Store)(nil)
	_ ports.AuditRepository    = (*Store)(nil)
	_ ports.JobRepository      = (*Store)(nil)
	_ ports.AuditSource        = (*Store)(nil)
)

func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:     clock,
		companies: map[string]domain.Company{},
		documents: map[string]*document{},
		audits:    map[string]domain.Audit{},
		jobs:      map[string]*job{},
	}
}

func (s *Store) next() int {
	s.seq++
	return s.seq
}

// CompanyRepository

func (s *Store) ListCompanies(_ context.Context) ([]domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Company, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.companies[id])
	}
	return out, nil
}

func (s *Store) GetCompany(_ context.Context, id string) (domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return domain.Company{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) InsertCompany(_ context.Context, c domain.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.companies[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.companies[c.ID] = c
	return nil
}

func (s *Store) SetCompanyState(_ context.Context, id string, from, to domain.CompanyState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.State != from {
		return false, nil
	}
	c.State = to
	s.companies[id] = c
	return true, nil
}

// DocumentRepository

func (s *Store) ListDocuments(_ context.Context, companyID string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []*document
	for _, d := range s.documents {
		if d.doc.CompanyID == companyID {
			rows = append(rows, d)
		}
	}
	// newest first
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })
	out := make([]domain.Document, 0, len(rows))
	for _, d := range rows {
		out = append(out, d.doc)
	}
	return out, nil
}

func (s *Store) GetDocument(_ context.Context, id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return d.doc, nil
}

func (s *Store) InsertDocument(_ context.Context, d domain.Document, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[d.CompanyID]; !ok {
		return domain.ErrNotFound
	}
	s.documents[d.ID] = &document{doc: d, objectKey: objectKey, seq: s.next()}
	return nil
}

func (s *Store) ObjectKey(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return d.objectKey, nil
}

func (s *Store) SetDocumentStatus(_ context.Context, id string, status domain.DocumentState, summary, errMsg *string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	wasReady := d.doc.Status == domain.DocumentReady
	d.doc.Status = status
	if summary != nil {
		d.doc.Summary = domain.Ptr(*summary)
	}
	if errMsg != nil {
		d.doc.ErrorMessage = domain.Ptr(*errMsg)
	}
	if status == domain.DocumentReady && !wasReady {
		if c, ok := s.companies[d.doc.CompanyID]; ok {
			c.DocumentCount++
			s.companies[c.ID] = c
		}
	}
	return d.doc, nil
}

func (s *Store) RetryDocument(_ context.Context, d domain.Document, objectKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.documents[d.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if cur.doc.Status != domain.DocumentError {
		return false, nil
	}
	cur.doc.Name = d.Name
	cur.doc.Type = d.Type
	cur.doc.Extension = d.Extension
	cur.doc.UploadedDate = d.UploadedDate
	cur.doc.Status = domain.DocumentUploading
	cur.doc.Summary = nil
	cur.doc.ErrorMessage = nil
	cur.objectKey = objectKey
	return true, nil
}

// AuditRepository

func (s *Store) CreateAudit(_ context.Context, a domain.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits[a.ID] = a.Clone()
	j := &job{id: uuid.NewString(), auditID: a.ID, companyID: a.CompanyID, status: "queued", seq: s.next()}
	s.jobs[j.id] = j
	return nil
}

func (s *Store) GetAudit(_ context.Context, id string) (domain.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return domain.Audit{}, domain.ErrNotFound
	}
	return a.Clone(), nil
}
