// Package upload drives files through the negotiate -> transfer -> confirm protocol and
// keeps the client's optimistic document list consistent while uploads run.
package upload

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
)

// Meta is the metadata sent alongside a file.
type Meta struct {
	CompanyID string
	Type      string
	// DocumentID, when set, re-uploads that failed backend document instead of creating one.
	DocumentID string
}

const releaseTimeout = 5 * time.Second

var nowFunc = time.Now

type Orchestrator struct {
	backend     ports.UploadBackend
	transfer    ports.Transferer
	concurrency int
}

type Option func(*Orchestrator)

// WithConcurrency caps parallel uploads in a batch; 0 means unlimited.
func WithConcurrency(n int) Option { return func(o *Orchestrator) { o.concurrency = n } }

func New(backend ports.UploadBackend, transfer ports.Transferer, opts ...Option) *Orchestrator {
	o := &Orchestrator{backend: backend, transfer: transfer}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UploadFile runs the three phases for one file. On failure the returned document has
// status ERROR and an error message, and the error is a *PhaseError. The caller is
// responsible for checking the company allows uploads.
func (o *Orchestrator) UploadFile(ctx context.Context, f File, meta Meta, onProgress ProgressFunc) (domain.Document, error) {
	doc := Pending{File: f, Meta: meta, Status: domain.DocumentUploading, UploadedDate: domain.Date(nowFunc())}.Document()

	target, err := o.backend.NegotiateUpload(ctx, domain.UploadRequest{
		CompanyID:   meta.CompanyID,
		Type:        meta.Type,
		FileName:    f.Name,
		Size:        f.Size,
		ContentType: f.ContentType,
		DocumentID:  meta.DocumentID,
	})
	if err != nil {
		return failed(doc, PhaseNegotiate, f.Name, err)
	}
	doc.ID = target.DocumentID

	if err := o.transferFile(ctx, target.UploadURL, f, onProgress); err != nil {
		return o.release(ctx, doc, PhaseTransfer, f.Name, err)
	}

	confirmed, err := o.backend.ConfirmUpload(ctx, target.DocumentID)
	if err != nil {
		return o.release(ctx, doc, PhaseConfirm, f.Name, err)
	}
	switch confirmed.Status {
	case domain.DocumentReady, domain.DocumentProcessing:
		return confirmed, nil
	default:
		return o.release(ctx, doc, PhaseConfirm, f.Name, fmt.Errorf("backend reported status %s", confirmed.Status))
	}
}

// release fails a negotiated document locally and on the backend, so the backend row does
// not stay UPLOADING. Backend errors are logged; the upload error is what the caller sees.
func (o *Orchestrator) release(ctx context.Context, doc domain.Document, phase Phase, name string, err error) (domain.Document, error) {
	doc, perr := failed(doc, phase, name, err)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if _, ferr := o.backend.FailUpload(ctx, doc.ID, perr.Error()); ferr != nil {
		log.Printf("upload: release document %s: %v", doc.ID, ferr)
	}
	return doc, perr
}

func (o *Orchestrator) transferFile(ctx context.Context, url string, f File, onProgress ProgressFunc) error {
	if f.Open == nil {
		return fmt.Errorf("file %s has no content", f.Name)
	}
	body, err := f.Open()
	if err != nil {
		return err
	}
	defer body.Close()

	pr := &progressReader{r: body, total: f.Size, report: onProgress}
	if err := o.transfer.Transfer(ctx, url, pr, f.Size, f.ContentType); err != nil {
		return err
	}
	if pr.loaded < f.Size {
		return fmt.Errorf("short transfer: %d of %d bytes: %w", pr.loaded, f.Size, io.ErrUnexpectedEOF)
	}
	pr.finish()
	return nil
}

func failed(doc domain.Document, phase Phase, name string, err error) (domain.Document, error) {
	perr := &PhaseError{Phase: phase, File: name, Err: err}
	doc.Status = domain.DocumentError
	doc.UploadProgress = domain.Ptr(0)
	doc.ErrorMessage = domain.Ptr(perr.Error())
	return doc, perr
}

// Item is one file of a batch.
type Item struct {
	File File
	Meta Meta
}

// Result is the settled outcome of one batch item.
type Result struct {
	LocalID  string
	File     string
	Document domain.Document
	Err      error
}

type BatchResult struct {
	Results []Result
}

func (b BatchResult) Failures() []Result {
	var out []Result
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// UploadBatch uploads every item concurrently and waits for all of them. A failing file
// never cancels its siblings. Placeholders are added to set (which may be nil) before any
// upload starts. Results are in input order.
func (o *Orchestrator) UploadBatch(ctx context.Context, set *DocumentSet, items []Item) BatchResult {
	if set == nil {
		set = NewDocumentSet(nil)
	}
	res := BatchResult{Results: make([]Result, len(items))}
	for i, it := range items {
		res.Results[i] = Result{LocalID: set.AddPending(it.File, it.Meta), File: it.File.Name}
	}

	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			r := &res.Results[i]
			r.Document, r.Err = o.uploadTracked(ctx, set, r.LocalID, it.File, it.Meta)
			return nil
		})
	}
	_ = g.Wait()

	if n := len(res.Failures()); n > 0 {
		log.Printf("upload: batch finished with %d/%d failures", n, len(items))
	}
	return res
}

// Retry re-uploads a failed entry of set. It negotiates a fresh target rather than reusing
// the old URL, since upload URLs expire; a document the backend already knows is retried
// in place.
func (o *Orchestrator) Retry(ctx context.Context, set *DocumentSet, localID string) (domain.Document, error) {
	p, err := set.Restart(localID)
	if err != nil {
		return domain.Document{}, err
	}
	return o.uploadTracked(ctx, set, localID, p.File, p.Meta)
}

func (o *Orchestrator) uploadTracked(ctx context.Context, set *DocumentSet, localID string, f File, meta Meta) (domain.Document, error) {
	doc, err := o.UploadFile(ctx, f, meta, func(p Progress) {
		set.SetProgress(localID, p.Percentage)
	})
	if err != nil {
		log.Printf("upload: %v", err)
		if doc.ID != "" {
			set.bindDocument(localID, doc.ID)
		}
		set.Fail(localID, err.Error())
		return doc, err
	}
	set.Commit(localID, doc)
	return doc, nil
}
