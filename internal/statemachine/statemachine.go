// Package statemachine is the single place that decides which lifecycle transitions are
// legal for companies, documents and audit runs, and which actions a state allows.
// Every function is pure; unknown states answer false rather than panic.
package statemachine

import (
	"fmt"

	"auditflow/internal/domain"
)

type table[S comparable] map[S][]S

func (t table[S]) allows(cur, next S) bool {
	for _, s := range t[cur] {
		if s == next {
			return true
		}
	}
	return false
}

var companyTransitions = table[domain.CompanyState]{
	domain.CompanyOnboarding:      {domain.CompanyReadyToAudit},
	domain.CompanyReadyToAudit:    {domain.CompanyAuditInProgress, domain.CompanyOnboarding},
	domain.CompanyAuditInProgress: {domain.CompanyCompliant, domain.CompanyNonCompliant, domain.CompanyReadyToAudit},
	domain.CompanyCompliant:       {domain.CompanyAuditInProgress, domain.CompanyReadyToAudit},
	domain.CompanyNonCompliant:    {domain.CompanyAuditInProgress, domain.CompanyReadyToAudit},
}

var documentTransitions = table[domain.DocumentState]{
	domain.DocumentUploading:  {domain.DocumentProcessing, domain.DocumentError},
	domain.DocumentProcessing: {domain.DocumentReady, domain.DocumentError},
	domain.DocumentReady:      {},
	domain.DocumentError:      {domain.DocumentUploading},
}

var auditTransitions = table[domain.AuditStatus]{
	domain.AuditQueued:    {domain.AuditRunning, domain.AuditFailed},
	domain.AuditRunning:   {domain.AuditCompleted, domain.AuditFailed},
	domain.AuditCompleted: {},
	domain.AuditFailed:    {},
}

// ColorTag is the badge colour a view uses for a company state.
type ColorTag string

const (
	ColorGray   ColorTag = "gray"
	ColorBlue   ColorTag = "blue"
	ColorYellow ColorTag = "yellow"
	ColorGreen  ColorTag = "green"
	ColorRed    ColorTag = "red"
)

var companyLabels = map[domain.CompanyState]string{
	domain.CompanyOnboarding:      "Onboarding",
	domain.CompanyReadyToAudit:    "Ready to Audit",
	domain.CompanyAuditInProgress: "Auditing...",
	domain.CompanyCompliant:       "Compliant",
	domain.CompanyNonCompliant:    "Flagged",
}

var companyColors = map[domain.CompanyState]ColorTag{
	domain.CompanyOnboarding:      ColorGray,
	domain.CompanyReadyToAudit:    ColorBlue,
	domain.CompanyAuditInProgress: ColorYellow,
	domain.CompanyCompliant:       ColorGreen,
	domain.CompanyNonCompliant:    ColorRed,
}

func init() {
	mustCover("company transitions", companyTransitions, domain.CompanyStates)
	mustCover("document transitions", documentTransitions, domain.DocumentStates)
	mustCover("audit transitions", auditTransitions, domain.AuditStatuses)
	mustCover("company labels", companyLabels, domain.CompanyStates)
	mustCover("company colors", companyColors, domain.CompanyStates)
}

// mustCover panics if m lacks an entry for any of states.
func mustCover[S comparable, V any](name string, m map[S]V, states []S) {
	for _, s := range states {
		if _, ok := m[s]; !ok {
			panic(fmt.Sprintf("statemachine: %s missing entry for %v", name, s))
		}
	}
}

// Company answers questions about the company workflow.
var Company companyMachine

type companyMachine struct{}

func (companyMachine) CanTransition(cur, next domain.CompanyState) bool {
	return companyTransitions.allows(cur, next)
}

// CanUploadDocs is false only while an audit is running.
func (companyMachine) CanUploadDocs(s domain.CompanyState) bool {
	return s != domain.CompanyAuditInProgress
}

func (companyMachine) CanStartAudit(s domain.CompanyState) bool {
	switch s {
	case domain.CompanyReadyToAudit, domain.CompanyCompliant, domain.CompanyNonCompliant:
		return true
	}
	return false
}

// Label returns the display label; unknown states yield their raw value.
func (companyMachine) Label(s domain.CompanyState) string {
	if l, ok := companyLabels[s]; ok {
		return l
	}
	return string(s)
}

// BadgeColor returns the badge colour; unknown states are gray.
func (companyMachine) BadgeColor(s domain.CompanyState) ColorTag {
	if c, ok := companyColors[s]; ok {
		return c
	}
	return ColorGray
}

var Document documentMachine

type documentMachine struct{}

func (documentMachine) CanTransition(cur, next domain.DocumentState) bool {
	return documentTransitions.allows(cur, next)
}

func (documentMachine) IsProcessing(s domain.DocumentState) bool {
	return s == domain.DocumentUploading || s == domain.DocumentProcessing
}

var Audit auditMachine

type auditMachine struct{}

func (auditMachine) CanTransition(cur, next domain.AuditStatus) bool {
	return auditTransitions.allows(cur, next)
}

func (auditMachine) IsRunning(s domain.AuditStatus) bool {
	return s == domain.AuditQueued || s == domain.AuditRunning
}

// CanCancel is true only before processing has begun.
func (auditMachine) CanCancel(s domain.AuditStatus) bool {
	return s == domain.AuditQueued
}

func (auditMachine) IsTerminal(s domain.AuditStatus) bool {
	return s == domain.AuditCompleted || s == domain.AuditFailed
}
