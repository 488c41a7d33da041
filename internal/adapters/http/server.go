package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"

	"auditflow/internal/adapters/memory"
	"auditflow/internal/auditpoll"
	"auditflow/internal/domain"
	"auditflow/internal/ports"
	"auditflow/internal/services/documents"
	"auditflow/internal/statemachine"
)

const (
	maxJSONBody = 1 << 20
	maxBlobBody = 64 << 20

	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
)

// Server exposes the backend over REST.
type Server struct {
	backend ports.Backend
	state   ports.KeyValueStore
	blobs   *memory.Blobs
	// poll is the interval used by blocking audit starts.
	poll time.Duration
}

type Option func(*Server)

// WithBlobs serves PUT /blobs/* into an in-memory object store (dev mode).
func WithBlobs(b *memory.Blobs) Option { return func(s *Server) { s.blobs = b } }

// WithClientState serves /client-state/{key} from kv.
func WithClientState(kv ports.KeyValueStore) Option { return func(s *Server) { s.state = kv } }

func WithPollInterval(d time.Duration) Option { return func(s *Server) { s.poll = d } }

func New(backend ports.Backend, opts ...Option) *Server {
	s := &Server{backend: backend, poll: time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)

	r.Route("/companies", func(r chi.Router) {
		r.Get("/", s.getCompanies)
		r.Post("/", s.postCompany)
		r.Get("/{id}", s.getCompany)
		r.Get("/{id}/documents", s.getCompanyDocuments)
	})

	r.Post("/documents/upload-url", s.postUploadURL)
	r.Post("/documents/{id}/confirm", s.postConfirm)
	r.Post("/documents/{id}/fail", s.postFail)

	r.Post("/audit/start", s.postAuditStart)
	r.Get("/audit/{id}", s.getAudit)
	r.Get("/audit/{id}/findings", s.getAuditFindings)

	if s.state != nil {
		r.Get("/client-state/{key}", s.getClientState)
		r.Put("/client-state/{key}", s.putClientState)
		r.Delete("/client-state/{key}", s.deleteClientState)
	}
	if s.blobs != nil {
		r.Put("/blobs/*", s.putBlob)
	}
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getCompanies(w http.ResponseWriter, r *http.Request) {
	list, err := s.backend.GetCompanies(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) postCompany(w http.ResponseWriter, r *http.Request) {
	var draft domain.CompanyDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	c, err := s.backend.CreateCompany(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	c, err := s.backend.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) getCompanyDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	docs, err := s.backend.GetDocuments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) postUploadURL(w http.ResponseWriter, r *http.Request) {
	var req domain.UploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, err := s.backend.NegotiateUpload(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

func (s *Server) postConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	doc, err := s.backend.ConfirmUpload(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type failUploadRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) postFail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req failUploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doc, err := s.backend.FailUpload(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type startAuditRequest struct {
	CompanyID string `json:"companyId"`
}

// postAuditStart queues an audit. With ?wait=true it blocks until the run finishes or
// ?timeout (seconds) elapses, then returns the latest snapshot.
func (s *Server) postAuditStart(w http.ResponseWriter, r *http.Request) {
	var wait bool
	if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
		writeError(w, badRequest(err))
		return
	}
	var timeoutSecs int
	if err := runtime.BindQueryParameter("form", true, false, "timeout", r.URL.Query(), &timeoutSecs); err != nil {
		writeError(w, badRequest(err))
		return
	}
	var body startAuditRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.CompanyID) == "" {
		writeError(w, badRequest(errors.New("companyId is required")))
		return
	}

	a, err := s.backend.StartAudit(r.Context(), body.CompanyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, a)
		return
	}

	timeout := defaultWaitTimeout
	if timeoutSecs > 0 {
		timeout = min(time.Duration(timeoutSecs)*time.Second, maxWaitTimeout)
	}
	final, done := s.awaitAudit(r.Context(), a, timeout)
	if !done {
		writeJSON(w, http.StatusAccepted, final)
		return
	}
	writeJSON(w, http.StatusOK, final)
}

// awaitAudit polls the audit until it is terminal; it reports false on timeout.
func (s *Server) awaitAudit(ctx context.Context, a domain.Audit, timeout time.Duration) (domain.Audit, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	finished := make(chan domain.Audit, 1)
	watcher := auditpoll.New(s.backend, auditpoll.WithInterval(s.poll), auditpoll.OnUpdate(func(snap domain.Audit) {
		if statemachine.Audit.IsTerminal(snap.Status) {
			select {
			case finished <- snap:
			default:
			}
		}
	}))
	defer watcher.Close()
	watcher.Watch(a.ID)

	select {
	case final := <-finished:
		return final, true
	case <-ctx.Done():
		if snap, ok := watcher.Snapshot(); ok {
			return snap, false
		}
		return a, false
	}
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	a, err := s.backend.GetAudit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) getAuditFindings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	findings, err := s.backend.GetAuditFindings(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

type clientState struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) getClientState(w http.ResponseWriter, r *http.Request) {
	key, ok := pathParam(w, r, "key")
	if !ok {
		return
	}
	v, found, err := s.state.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, clientState{Key: key, Value: v})
}

func (s *Server) putClientState(w http.ResponseWriter, r *http.Request) {
	key, ok := pathParam(w, r, "key")
	if !ok {
		return
	}
	var body clientState
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.state.Set(r.Context(), key, body.Value); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteClientState(w http.ResponseWriter, r *http.Request) {
	key, ok := pathParam(w, r, "key")
	if !ok {
		return
	}
	if err := s.state.Delete(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putBlob(w http.ResponseWriter, r *http.Request) {
	key, err := memory.KeyFromURL(r.URL.String())
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	n, err := s.blobs.Put(key, http.MaxBytesReader(w, r.Body, maxBlobBody))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	if r.ContentLength >= 0 && n != r.ContentLength {
		writeError(w, badRequest(errors.New("body shorter than Content-Length")))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, badRequest(err))
		return "", false
	}
	return v, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, badRequest(err))
		return false
	}
	return true
}

type requestError struct{ err error }

func (e *requestError) Error() string { return "bad request: " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	var reqErr *requestError
	var denied *statemachine.TransitionDeniedError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDraft), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &denied), errors.Is(err, documents.ErrObjectMissing):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}
