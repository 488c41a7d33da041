// Package session is the workflow a client runs for one selected company: guarded uploads,
// starting an audit, and following it to completion across restarts.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"auditflow/internal/activeaudit"
	"auditflow/internal/auditpoll"
	"auditflow/internal/domain"
	"auditflow/internal/ports"
	"auditflow/internal/statemachine"
	"auditflow/internal/upload"
)

var (
	ErrNoCompany = errors.New("no company selected")
	// ErrDocumentsNotSettled blocks an audit while uploads are running or have failed.
	ErrDocumentsNotSettled = errors.New("documents are still uploading or have failed")
	ErrNoDocuments         = errors.New("company has no documents to audit")
	ErrNoAudit             = errors.New("no audit in progress")
)

type Session struct {
	backend ports.Backend
	uploads *upload.Orchestrator
	store   ports.KeyValueStore
	watcher *auditpoll.Watcher

	mu      sync.Mutex
	company *domain.Company
	docs    *upload.DocumentSet
	// updated is closed and replaced after every handled audit snapshot.
	updated chan struct{}
	// settled is the id of the last audit whose terminal snapshot has been handled.
	settled string
}

// New builds a session. Poll options (clock, interval) are passed through to the watcher.
func New(backend ports.Backend, uploads *upload.Orchestrator, store ports.KeyValueStore, pollOpts ...auditpoll.Option) *Session {
	s := &Session{backend: backend, uploads: uploads, store: store, docs: upload.NewDocumentSet(nil), updated: make(chan struct{})}
	opts := append([]auditpoll.Option{auditpoll.OnUpdate(s.onAudit)}, pollOpts...)
	s.watcher = auditpoll.New(backend, opts...)
	return s
}

func (s *Session) Close() { s.watcher.Close() }

func (s *Session) CreateCompany(ctx context.Context, draft domain.CompanyDraft) (domain.Company, error) {
	c, err := s.backend.CreateCompany(ctx, draft)
	if err != nil {
		return domain.Company{}, err
	}
	if err := s.SelectCompany(ctx, c.ID); err != nil {
		return c, err
	}
	return c, nil
}

// SelectCompany loads the company and its documents and resumes polling a persisted audit.
func (s *Session) SelectCompany(ctx context.Context, companyID string) error {
	c, err := s.backend.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	docs, err := s.backend.GetDocuments(ctx, companyID)
	if err != nil {
		return err
	}
	auditID, found, err := s.store.Get(ctx, activeaudit.Key(companyID))
	if err != nil {
		log.Printf("session: read active audit for %s: %v", companyID, err)
	}

	s.mu.Lock()
	s.company = &c
	s.docs = upload.NewDocumentSet(docs)
	s.mu.Unlock()

	if found {
		s.watcher.Watch(auditID)
	} else {
		s.watcher.Watch("")
	}
	return nil
}

func (s *Session) Company() (domain.Company, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.company == nil {
		return domain.Company{}, false
	}
	return *s.company, true
}

func (s *Session) Documents() []domain.Document {
	s.mu.Lock()
	docs := s.docs
	s.mu.Unlock()
	return docs.Snapshot()
}

// Audit is the latest snapshot of the watched audit.
func (s *Session) Audit() (domain.Audit, bool) { return s.watcher.Snapshot() }

// Watching reports whether an audit id is being followed, even before its first snapshot.
func (s *Session) Watching() bool { return s.watcher.AuditID() != "" }

// UploadDocuments uploads files for the selected company, inferring each document type from
// its name. A file named like a failed document is retried in place. Individual failures
// are reported in the result, not as an error.
func (s *Session) UploadDocuments(ctx context.Context, files []upload.File) (upload.BatchResult, error) {
	c, docs, err := s.selected()
	if err != nil {
		return upload.BatchResult{}, err
	}
	if !statemachine.Company.CanUploadDocs(c.State) {
		return upload.BatchResult{}, &statemachine.TransitionDeniedError{Entity: "company", From: string(c.State), To: "upload documents"}
	}

	items := make([]upload.Item, 0, len(files))
	for _, f := range files {
		meta := upload.Meta{CompanyID: c.ID, Type: domain.InferDocumentType(f.Name)}
		if id, ok := docs.FailedDocument(f.Name); ok {
			meta.DocumentID = id
		}
		items = append(items, upload.Item{File: f, Meta: meta})
	}
	res := s.uploads.UploadBatch(ctx, docs, items)
	_ = s.refresh(ctx, c.ID)
	return res, nil
}

// RetryUpload re-runs a failed upload from the current document list.
func (s *Session) RetryUpload(ctx context.Context, localID string) (domain.Document, error) {
	c, docs, err := s.selected()
	if err != nil {
		return domain.Document{}, err
	}
	if !statemachine.Company.CanUploadDocs(c.State) {
		return domain.Document{}, &statemachine.TransitionDeniedError{Entity: "company", From: string(c.State), To: "upload documents"}
	}
	doc, err := s.uploads.Retry(ctx, docs, localID)
	if err == nil {
		_ = s.refresh(ctx, c.ID)
	}
	return doc, err
}

// StartAudit starts a run for the selected company, remembers it, and begins polling.
func (s *Session) StartAudit(ctx context.Context) (domain.Audit, error) {
	c, docs, err := s.selected()
	if err != nil {
		return domain.Audit{}, err
	}
	if !statemachine.Company.CanStartAudit(c.State) || !statemachine.Company.CanTransition(c.State, domain.CompanyAuditInProgress) {
		return domain.Audit{}, statemachine.Denied("company", c.State, domain.CompanyAuditInProgress)
	}
	if len(docs.Snapshot()) == 0 {
		return domain.Audit{}, ErrNoDocuments
	}
	if docs.Busy() {
		return domain.Audit{}, ErrDocumentsNotSettled
	}

	a, err := s.backend.StartAudit(ctx, c.ID)
	if err != nil {
		return domain.Audit{}, err
	}
	if err := s.store.Set(ctx, activeaudit.Key(c.ID), a.ID); err != nil {
		log.Printf("session: persist active audit %s: %v", a.ID, err)
	}

	s.mu.Lock()
	if s.company != nil && s.company.ID == c.ID {
		updated := *s.company
		updated.State = domain.CompanyAuditInProgress
		s.company = &updated
	}
	s.mu.Unlock()

	s.watcher.Watch(a.ID)
	return a, nil
}

// WaitForAudit blocks until the watched audit is terminal and its outcome has been applied
// to the session, or ctx ends. onUpdate, if set, sees every change of status or progress.
func (s *Session) WaitForAudit(ctx context.Context, onUpdate func(domain.Audit)) (domain.Audit, error) {
	var last *domain.Audit
	for {
		s.mu.Lock()
		wake, settled := s.updated, s.settled
		s.mu.Unlock()

		a, ok := s.watcher.Snapshot()
		if !ok && !s.Watching() {
			return domain.Audit{}, ErrNoAudit
		}
		if ok {
			if onUpdate != nil && (last == nil || last.Status != a.Status || last.Progress != a.Progress) {
				onUpdate(a)
			}
			last = &a
			if statemachine.Audit.IsTerminal(a.Status) && settled == a.ID {
				return a, nil
			}
		}
		select {
		case <-ctx.Done():
			return a, ctx.Err()
		case <-wake:
		}
	}
}

func (s *Session) selected() (domain.Company, *upload.DocumentSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.company == nil {
		return domain.Company{}, nil, ErrNoCompany
	}
	return *s.company, s.docs, nil
}

// refresh reloads the company and its documents, keeping uploads in progress.
func (s *Session) refresh(ctx context.Context, companyID string) error {
	c, err := s.backend.GetCompany(ctx, companyID)
	if err != nil {
		log.Printf("session: reload company %s: %v", companyID, err)
		return err
	}
	docs, err := s.backend.GetDocuments(ctx, companyID)
	if err != nil {
		log.Printf("session: reload documents of %s: %v", companyID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.company == nil || s.company.ID != c.ID {
		return nil
	}
	s.company = &c
	if err == nil {
		s.docs.Reload(docs)
	}
	return err
}

// onAudit runs on the poll goroutine for every accepted snapshot.
func (s *Session) onAudit(a domain.Audit) {
	defer s.notify(a)
	if !statemachine.Audit.IsTerminal(a.Status) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, activeaudit.Key(a.CompanyID)); err != nil {
		log.Printf("session: clear active audit %s: %v", a.ID, err)
	}
	_ = s.refresh(ctx, a.CompanyID)
}

func (s *Session) notify(a domain.Audit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if statemachine.Audit.IsTerminal(a.Status) {
		s.settled = a.ID
	}
	close(s.updated)
	s.updated = make(chan struct{})
}
