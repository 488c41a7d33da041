package memory

import (
	"context"
	"fmt"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
)

// ClaimNext takes the oldest queued job and marks its audit running.
func (s *Store) ClaimNext(_ context.Context) (ports.AuditJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *job
	for _, j := range s.jobs {
		if j.status == "queued" && (oldest == nil || j.seq < oldest.seq) {
			oldest = j
		}
	}
	if oldest == nil {
		return ports.AuditJob{}, false, nil
	}
	oldest.status = "running"
	if a, ok := s.audits[oldest.auditID]; ok {
		a.Status = domain.AuditRunning
		s.audits[a.ID] = a
	}
	return ports.AuditJob{ID: oldest.id, AuditID: oldest.auditID, CompanyID: oldest.companyID}, true, nil
}

func (s *Store) UpdateAuditProgress(_ context.Context, auditID string, progress int, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[auditID]
	if !ok {
		return domain.ErrNotFound
	}
	progress = min(max(progress, 0), 100)
	if progress > a.Progress {
		a.Progress = progress
	}
	if summary != "" {
		a.Summary = summary
	}
	s.audits[auditID] = a
	return nil
}

func (s *Store) MarkCompleted(_ context.Context, jobID string, result ports.AuditResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, a, err := s.finish(jobID, "completed")
	if err != nil {
		return err
	}
	a.Status = domain.AuditCompleted
	a.Progress = 100
	a.Summary = result.Summary
	a.Metrics = result.Metrics
	a.Findings = append([]domain.Finding{}, result.Findings...)
	s.audits[a.ID] = a
	if c, ok := s.companies[j.companyID]; ok {
		c.State = result.Outcome
		c.LastAuditDate = domain.Ptr(domain.Date(s.clock.Now()))
		s.companies[c.ID] = c
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, jobID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, a, err := s.finish(jobID, "failed")
	if err != nil {
		return err
	}
	a.Status = domain.AuditFailed
	a.Summary = reason
	s.audits[a.ID] = a
	if c, ok := s.companies[j.companyID]; ok && c.State == domain.CompanyAuditInProgress {
		c.State = domain.CompanyReadyToAudit
		s.companies[c.ID] = c
	}
	return nil
}

func (s *Store) finish(jobID, status string) (*job, domain.Audit, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.Audit{}, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	a, ok := s.audits[j.auditID]
	if !ok {
		return nil, domain.Audit{}, fmt.Errorf("audit %s: %w", j.auditID, domain.ErrNotFound)
	}
	j.status = status
	return j, a, nil
}
