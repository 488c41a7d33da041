// Package httpclient talks to the auditflow REST API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Is lets callers match a 404 with errors.Is(err, domain.ErrNotFound).
func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.Status == http.StatusNotFound
}

type Client struct {
	baseURL string
	hc      *http.Client
}

var _ ports.Backend = (*Client)(nil)

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := resp.Status
	if json.Unmarshal(raw, &payload) == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func esc(s string) string { return url.PathEscape(s) }

func (c *Client) GetCompanies(ctx context.Context) ([]domain.Company, error) {
	var out []domain.Company
	err := c.do(ctx, http.MethodGet, "/companies", nil, &out)
	return out, err
}

func (c *Client) GetCompany(ctx context.Context, companyID string) (domain.Company, error) {
	var out domain.Company
	err := c.do(ctx, http.MethodGet, "/companies/"+esc(companyID), nil, &out)
	return out, err
}

func (c *Client) CreateCompany(ctx context.Context, draft domain.CompanyDraft) (domain.Company, error) {
	var out domain.Company
	err := c.do(ctx, http.MethodPost, "/companies", draft, &out)
	return out, err
}

func (c *Client) GetDocuments(ctx context.Context, companyID string) ([]domain.Document, error) {
	var out []domain.Document
	err := c.do(ctx, http.MethodGet, "/companies/"+esc(companyID)+"/documents", nil, &out)
	return out, err
}

func (c *Client) NegotiateUpload(ctx context.Context, req domain.UploadRequest) (domain.UploadTarget, error) {
	var out domain.UploadTarget
	err := c.do(ctx, http.MethodPost, "/documents/upload-url", req, &out)
	return out, err
}

func (c *Client) ConfirmUpload(ctx context.Context, documentID string) (domain.Document, error) {
	var out domain.Document
	err := c.do(ctx, http.MethodPost, "/documents/"+esc(documentID)+"/confirm", nil, &out)
	return out, err
}

func (c *Client) FailUpload(ctx context.Context, documentID, reason string) (domain.Document, error) {
	var out domain.Document
	err := c.do(ctx, http.MethodPost, "/documents/"+esc(documentID)+"/fail", map[string]string{"reason": reason}, &out)
	return out, err
}

func (c *Client) StartAudit(ctx context.Context, companyID string) (domain.Audit, error) {
	var out domain.Audit
	err := c.do(ctx, http.MethodPost, "/audit/start", map[string]string{"companyId": companyID}, &out)
	return out, err
}

func (c *Client) GetAudit(ctx context.Context, auditID string) (domain.Audit, error) {
	var out domain.Audit
	err := c.do(ctx, http.MethodGet, "/audit/"+esc(auditID), nil, &out)
	return out, err
}

func (c *Client) GetAuditFindings(ctx context.Context, auditID string) ([]domain.Finding, error) {
	var out []domain.Finding
	err := c.do(ctx, http.MethodGet, "/audit/"+esc(auditID)+"/findings", nil, &out)
	return out, err
}

// StateStore keeps client state (active audit ids) on the server so any session can resume.
type StateStore struct{ c *Client }

var _ ports.KeyValueStore = StateStore{}

func (c *Client) StateStore() StateStore { return StateStore{c: c} }

func (s StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var out struct {
		Value string `json:"value"`
	}
	err := s.c.do(ctx, http.MethodGet, "/client-state/"+esc(key), nil, &out)
	if errors.Is(err, domain.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.Value, true, nil
}

func (s StateStore) Set(ctx context.Context, key, value string) error {
	return s.c.do(ctx, http.MethodPut, "/client-state/"+esc(key), map[string]string{"key": key, "value": value}, nil)
}

func (s StateStore) Delete(ctx context.Context, key string) error {
	return s.c.do(ctx, http.MethodDelete, "/client-state/"+esc(key), nil, nil)
}
