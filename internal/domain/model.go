package domain

import (
	"strings"
	"time"
)

// Core domain models shared by the client-side core and the system of record.
// JSON shapes match what the web client consumes.

type CompanyState string

const (
	CompanyOnboarding      CompanyState = "ONBOARDING"
	CompanyReadyToAudit    CompanyState = "READY_TO_AUDIT"
	CompanyAuditInProgress CompanyState = "AUDIT_IN_PROGRESS"
	CompanyCompliant       CompanyState = "COMPLIANT"
	CompanyNonCompliant    CompanyState = "NON_COMPLIANT"
)

// CompanyStates lists every company state in workflow order.
var CompanyStates = []CompanyState{
	CompanyOnboarding,
	CompanyReadyToAudit,
	CompanyAuditInProgress,
	CompanyCompliant,
	CompanyNonCompliant,
}

func (s CompanyState) Valid() bool { return contains(CompanyStates, s) }

type DocumentState string

const (
	DocumentUploading  DocumentState = "UPLOADING"
	DocumentProcessing DocumentState = "PROCESSING"
	DocumentReady      DocumentState = "READY"
	DocumentError      DocumentState = "ERROR"
)

var DocumentStates = []DocumentState{
	DocumentUploading,
	DocumentProcessing,
	DocumentReady,
	DocumentError,
}

func (s DocumentState) Valid() bool { return contains(DocumentStates, s) }

type AuditStatus string

const (
	AuditQueued    AuditStatus = "QUEUED"
	AuditRunning   AuditStatus = "RUNNING"
	AuditCompleted AuditStatus = "COMPLETED"
	AuditFailed    AuditStatus = "FAILED"
)

var AuditStatuses = []AuditStatus{
	AuditQueued,
	AuditRunning,
	AuditCompleted,
	AuditFailed,
}

func (s AuditStatus) Valid() bool { return contains(AuditStatuses, s) }

type FindingSeverity string

const (
	SeverityHard FindingSeverity = "HARD"
	SeveritySoft FindingSeverity = "SOFT"
)

type FindingStatus string

const (
	FindingVerified FindingStatus = "VERIFIED"
	FindingFlagged  FindingStatus = "FLAGGED"
	FindingFailed   FindingStatus = "FAILED"
)

type Company struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Industry      string       `json:"industry"`
	Country       string       `json:"country"`
	Website       *string      `json:"website,omitempty"` // registrable domain (eTLD+1)
	CreatedDate   string       `json:"createdDate"`
	DocumentCount int          `json:"documentCount"`
	State         CompanyState `json:"state"`
	LastAuditDate *string      `json:"lastAuditDate,omitempty"`
}

// CompanyDraft is the payload accepted when onboarding a company.
type CompanyDraft struct {
	Name        string  `json:"name" validate:"required,min=1,max=200"`
	Industry    string  `json:"industry" validate:"required"`
	Country     string  `json:"country" validate:"required"`
	Description *string `json:"description,omitempty"`
	Website     *string `json:"website,omitempty" validate:"omitempty,min=3"`
}

type Document struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	Extension      string        `json:"extension"`
	UploadedDate   string        `json:"uploadedDate"`
	Status         DocumentState `json:"status"`
	CompanyID      string        `json:"companyId"`
	Summary        *string       `json:"summary,omitempty"`
	URL            *string       `json:"url,omitempty"`
	UploadProgress *int          `json:"uploadProgress,omitempty"`
	ErrorMessage   *string       `json:"errorMessage,omitempty"`
}

type Metrics struct {
	HardFailures    int `json:"hardFailures"`
	SoftFailures    int `json:"softFailures"`
	ConfidenceScore int `json:"confidenceScore"`
}

type Finding struct {
	ID          string          `json:"id"`
	RuleID      string          `json:"ruleId"`
	Type        FindingSeverity `json:"type"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence"`
	Status      FindingStatus   `json:"status"`
}

type Audit struct {
	ID        string      `json:"id"`
	CompanyID string      `json:"companyId"`
	Date      string      `json:"date"`
	Status    AuditStatus `json:"status"`
	Summary   string      `json:"summary"`
	Progress  int         `json:"progress"`
	Metrics   Metrics     `json:"metrics"`
	Findings  []Finding   `json:"findings"`
}

// Clone returns a deep copy so callers can hand out snapshots without sharing the findings slice.
func (a Audit) Clone() Audit {
	out := a
	if a.Findings != nil {
		out.Findings = append([]Finding(nil), a.Findings...)
	}
	return out
}

// UploadTarget is the result of negotiating an upload with the backend.
type UploadTarget struct {
	UploadURL  string `json:"uploadUrl"`
	DocumentID string `json:"documentId"`
}

// UploadRequest describes the file the client intends to upload.
type UploadRequest struct {
	CompanyID   string `json:"companyId"`
	Type        string `json:"type"`
	FileName    string `json:"fileName"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	// DocumentID retries a failed document in place instead of creating a new one.
	DocumentID string `json:"documentId,omitempty"`
}

// Date formats t the way all entity dates are exchanged (YYYY-MM-DD).
func Date(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Extension returns the lower-cased file suffix, or "unknown".
func Extension(fileName string) string {
	i := strings.LastIndex(fileName, ".")
	if i < 0 || i == len(fileName)-1 {
		return "unknown"
	}
	return strings.ToLower(fileName[i+1:])
}

// Document types assigned from the file name when the uploader does not pick one.
const (
	TypeFinancialReport = "Financial Report"
	TypeInvoice         = "Invoice"
	TypePolicy          = "Policy"
)

func InferDocumentType(fileName string) string {
	n := strings.ToLower(fileName)
	switch {
	case strings.Contains(n, "financial"):
		return TypeFinancialReport
	case strings.Contains(n, "invoice"):
		return TypeInvoice
	default:
		return TypePolicy
	}
}

func Ptr[T any](v T) *T { return &v }

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
