package documents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
	"auditflow/internal/statemachine"
)

// ErrObjectMissing means a confirm arrived before the file bytes reached the object store.
var ErrObjectMissing = errors.New("uploaded object not found")

const (
	DefaultURLTTL = 15 * time.Minute
	pendingReview = "Pending processing..."
)

type Service struct {
	docs      ports.DocumentRepository
	companies ports.CompanyRepository
	objects   ports.ObjectStore
	ttl       time.Duration
	clock     clockwork.Clock
}

func New(docs ports.DocumentRepository, companies ports.CompanyRepository, objects ports.ObjectStore, ttl time.Duration, clock clockwork.Clock) *Service {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{docs: docs, companies: companies, objects: objects, ttl: ttl, clock: clock}
}

func (s *Service) List(ctx context.Context, companyID string) ([]domain.Document, error) {
	if _, err := s.companies.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.docs.ListDocuments(ctx, companyID)
}

// Negotiate records an UPLOADING document and returns a presigned target for its bytes.
func (s *Service) Negotiate(ctx context.Context, req domain.UploadRequest) (domain.UploadTarget, error) {
	c, err := s.companies.GetCompany(ctx, req.CompanyID)
	if err != nil {
		return domain.UploadTarget{}, err
	}
	if !statemachine.Company.CanUploadDocs(c.State) {
		return domain.UploadTarget{}, &statemachine.TransitionDeniedError{Entity: "company", From: string(c.State), To: "upload documents"}
	}
	name := path.Base(strings.TrimSpace(req.FileName))
	if name == "" || name == "." || name == "/" {
		return domain.UploadTarget{}, fmt.Errorf("%w: fileName is required", domain.ErrInvalidInput)
	}
	docType := req.Type
	if docType == "" {
		docType = domain.InferDocumentType(name)
	}

	d := domain.Document{
		ID:           req.DocumentID,
		Name:         name,
		Type:         docType,
		Extension:    domain.Extension(name),
		UploadedDate: domain.Date(s.clock.Now()),
		Status:       domain.DocumentUploading,
		CompanyID:    c.ID,
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else if err := s.checkRetry(ctx, d); err != nil {
		return domain.UploadTarget{}, err
	}

	key := ObjectKey(c.ID, d.ID, name)
	uploadURL, err := s.objects.PresignPut(ctx, key, s.ttl)
	if err != nil {
		return domain.UploadTarget{}, fmt.Errorf("presign %s: %w", key, err)
	}
	if req.DocumentID == "" {
		err = s.docs.InsertDocument(ctx, d, key)
	} else {
		var moved bool
		moved, err = s.docs.RetryDocument(ctx, d, key)
		if err == nil && !moved {
			// Another retry got there first.
			cur, gerr := s.docs.GetDocument(ctx, d.ID)
			if gerr != nil {
				return domain.UploadTarget{}, gerr
			}
			err = statemachine.Denied("document", cur.Status, domain.DocumentUploading)
		}
	}
	if err != nil {
		return domain.UploadTarget{}, err
	}
	return domain.UploadTarget{UploadURL: uploadURL, DocumentID: d.ID}, nil
}

// checkRetry allows renegotiating a document only for its own company and only from ERROR.
func (s *Service) checkRetry(ctx context.Context, d domain.Document) error {
	cur, err := s.docs.GetDocument(ctx, d.ID)
	if err != nil {
		return err
	}
	if cur.CompanyID != d.CompanyID {
		return fmt.Errorf("%w: document %s belongs to another company", domain.ErrInvalidInput, d.ID)
	}
	if !statemachine.Document.CanTransition(cur.Status, domain.DocumentUploading) {
		return statemachine.Denied("document", cur.Status, domain.DocumentUploading)
	}
	return nil
}

// Fail marks a document whose upload was abandoned as ERROR. Failing an ERROR document
// again returns it unchanged.
func (s *Service) Fail(ctx context.Context, documentID, reason string) (domain.Document, error) {
	d, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	if d.Status == domain.DocumentError {
		return d, nil
	}
	if !statemachine.Document.CanTransition(d.Status, domain.DocumentError) {
		return domain.Document{}, statemachine.Denied("document", d.Status, domain.DocumentError)
	}
	if reason == "" {
		reason = "upload abandoned"
	}
	return s.docs.SetDocumentStatus(ctx, documentID, domain.DocumentError, nil, &reason)
}

// ObjectKey is where a document's bytes live in the bucket.
func ObjectKey(companyID, documentID, fileName string) string {
	return path.Join("companies", companyID, documentID, fileName)
}

// Confirm checks the object landed and moves the document through PROCESSING to READY.
// The first confirmed document moves an onboarding company to READY_TO_AUDIT.
// Confirming a READY document again returns it unchanged.
func (s *Service) Confirm(ctx context.Context, documentID string) (domain.Document, error) {
	d, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	if d.Status == domain.DocumentReady {
		return d, nil
	}
	if !statemachine.Document.CanTransition(d.Status, domain.DocumentProcessing) {
		return domain.Document{}, statemachine.Denied("document", d.Status, domain.DocumentProcessing)
	}

	key, err := s.docs.ObjectKey(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	exists, _, err := s.objects.Stat(ctx, key)
	if err != nil {
		return domain.Document{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if !exists {
		msg := ErrObjectMissing.Error()
		if _, err := s.docs.SetDocumentStatus(ctx, documentID, domain.DocumentError, nil, &msg); err != nil {
			log.Printf("documents: mark %s failed: %v", documentID, err)
		}
		return domain.Document{}, ErrObjectMissing
	}

	summary := pendingReview
	if _, err := s.docs.SetDocumentStatus(ctx, documentID, domain.DocumentProcessing, &summary, nil); err != nil {
		return domain.Document{}, err
	}
	d, err = s.docs.SetDocumentStatus(ctx, documentID, domain.DocumentReady, nil, nil)
	if err != nil {
		return domain.Document{}, err
	}

	if _, err := s.companies.SetCompanyState(ctx, d.CompanyID, domain.CompanyOnboarding, domain.CompanyReadyToAudit); err != nil {
		log.Printf("documents: promote company %s: %v", d.CompanyID, err)
	}
	return d, nil
}
