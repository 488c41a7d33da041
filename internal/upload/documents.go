package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"auditflow/internal/domain"
	"auditflow/internal/statemachine"
)

// Entry is one row of a DocumentSet: either Pending (local, provisional) or Committed
// (confirmed by the backend).
type Entry interface {
	LocalID() string
	Document() domain.Document
	isEntry()
}

// Pending is a document the client is still uploading, or whose upload failed.
type Pending struct {
	ID           string
	File         File
	Meta         Meta
	Status       domain.DocumentState
	Progress     int
	ErrorMessage string
	UploadedDate string
}

func (p Pending) LocalID() string { return p.ID }

func (p Pending) Document() domain.Document {
	doc := domain.Document{
		ID:             p.ID,
		Name:           p.File.Name,
		Type:           p.Meta.Type,
		Extension:      domain.Extension(p.File.Name),
		UploadedDate:   p.UploadedDate,
		Status:         p.Status,
		CompanyID:      p.Meta.CompanyID,
		UploadProgress: domain.Ptr(p.Progress),
	}
	if p.ErrorMessage != "" {
		doc.ErrorMessage = domain.Ptr(p.ErrorMessage)
	}
	return doc
}

func (Pending) isEntry() {}

// Committed wraps a backend-confirmed document under the local id it replaced.
type Committed struct {
	ID  string
	Doc domain.Document
}

func (c Committed) LocalID() string           { return c.ID }
func (c Committed) Document() domain.Document { return c.Doc }
func (Committed) isEntry()                    {}

// DocumentSet is the client's view of one company's documents during a session. Entries
// are values; every update swaps in a new value so readers never see a half-written row.
type DocumentSet struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
	now     func() time.Time
}

func NewDocumentSet(existing []domain.Document) *DocumentSet {
	s := &DocumentSet{entries: map[string]Entry{}, now: time.Now}
	for _, d := range existing {
		s.order = append(s.order, d.ID)
		s.entries[d.ID] = Committed{ID: d.ID, Doc: d}
	}
	return s
}

// AddPending prepends an UPLOADING placeholder and returns its local id. When meta names a
// backend document, the entry already showing that document is replaced.
func (s *DocumentSet) AddPending(f File, meta Meta) string {
	id := uuid.NewString()
	p := Pending{
		ID:           id,
		File:         f,
		Meta:         meta,
		Status:       domain.DocumentUploading,
		UploadedDate: domain.Date(s.now()),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.DocumentID != "" {
		s.dropDocument(meta.DocumentID)
	}
	s.order = append([]string{id}, s.order...)
	s.entries[id] = p
	return id
}

func (s *DocumentSet) dropDocument(documentID string) {
	order := s.order[:0]
	for _, id := range s.order {
		if backendID(s.entries[id]) == documentID {
			delete(s.entries, id)
			continue
		}
		order = append(order, id)
	}
	s.order = order
}

// backendID is the backend document an entry stands for, or "" if none was negotiated yet.
func backendID(e Entry) string {
	switch e := e.(type) {
	case Pending:
		return e.Meta.DocumentID
	case Committed:
		return e.Doc.ID
	}
	return ""
}

func (s *DocumentSet) bindDocument(id, documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.entries[id].(Pending); ok {
		p.Meta.DocumentID = documentID
		s.entries[id] = p
	}
}

// FailedDocument finds the backend document of a failed upload named name, so uploading
// the same file again can retry it in place.
func (s *DocumentSet) FailedDocument(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		e := s.entries[id]
		d := e.Document()
		if d.Name == name && d.Status == domain.DocumentError && backendID(e) != "" {
			return backendID(e), true
		}
	}
	return "", false
}

// SetProgress records upload progress; it never lowers the stored value.
func (s *DocumentSet) SetProgress(id string, pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id].(Pending)
	if !ok || p.Status != domain.DocumentUploading || pct <= p.Progress {
		return
	}
	p.Progress = pct
	s.entries[id] = p
}

// Commit replaces a pending entry with the confirmed document.
func (s *DocumentSet) Commit(id string, doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return
	}
	s.entries[id] = Committed{ID: id, Doc: doc}
}

// Fail marks a pending entry ERROR and resets its progress.
func (s *DocumentSet) Fail(id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id].(Pending)
	if !ok || !statemachine.Document.CanTransition(p.Status, domain.DocumentError) {
		return
	}
	p.Status = domain.DocumentError
	p.Progress = 0
	p.ErrorMessage = msg
	s.entries[id] = p
}

// Restart moves a failed entry back to UPLOADING for a retry.
func (s *DocumentSet) Restart(id string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Pending{}, domain.ErrNotFound
	}
	cur := e.Document().Status
	p, pending := e.(Pending)
	if !pending || !statemachine.Document.CanTransition(cur, domain.DocumentUploading) {
		return Pending{}, statemachine.Denied("document", cur, domain.DocumentUploading)
	}
	p.Status = domain.DocumentUploading
	p.Progress = 0
	p.ErrorMessage = ""
	p.UploadedDate = domain.Date(s.now())
	s.entries[id] = p
	return p, nil
}

func (s *DocumentSet) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Snapshot returns the documents newest first.
func (s *DocumentSet) Snapshot() []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].Document())
	}
	return out
}

// Busy reports whether an upload started through this set is still running or has failed
// without a successful retry; an audit should not start until the set is settled. Rows
// loaded from the backend do not count: without their bytes they cannot be finished here.
func (s *DocumentSet) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		p, ok := e.(Pending)
		if ok && (p.Status == domain.DocumentUploading || p.Status == domain.DocumentError) {
			return true
		}
	}
	return false
}

// Reload replaces committed entries with a fresh backend listing. Pending entries are kept
// at the front and hide the backend rows they stand for; committed entries whose document
// id appears in docs are refreshed in place.
func (s *DocumentSet) Reload(docs []domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDocID := map[string]string{}
	held := map[string]bool{}
	var order []string
	entries := map[string]Entry{}
	for _, id := range s.order {
		switch e := s.entries[id].(type) {
		case Pending:
			order = append(order, id)
			entries[id] = e
			if e.Meta.DocumentID != "" {
				held[e.Meta.DocumentID] = true
			}
		case Committed:
			byDocID[e.Doc.ID] = id
		}
	}
	for _, d := range docs {
		if held[d.ID] {
			continue
		}
		id, ok := byDocID[d.ID]
		if !ok {
			id = d.ID
		}
		order = append(order, id)
		entries[id] = Committed{ID: id, Doc: d}
	}
	s.order = order
	s.entries = entries
}
