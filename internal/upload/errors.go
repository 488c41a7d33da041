package upload

import (
	"errors"
	"fmt"
)

// Phase names one step of the upload protocol.
type Phase string

const (
	PhaseNegotiate Phase = "negotiate"
	PhaseTransfer  Phase = "transfer"
	PhaseConfirm   Phase = "confirm"
)

var (
	// ErrNegotiation means no upload target could be obtained (backend unavailable).
	ErrNegotiation = errors.New("upload negotiation failed")
	ErrTransfer    = errors.New("upload transfer failed")
	ErrConfirm     = errors.New("upload confirmation rejected")
)

func (p Phase) sentinel() error {
	switch p {
	case PhaseNegotiate:
		return ErrNegotiation
	case PhaseTransfer:
		return ErrTransfer
	default:
		return ErrConfirm
	}
}

// PhaseError is returned for a single file's failed upload. errors.Is matches both the
// phase sentinel and the underlying cause.
type PhaseError struct {
	Phase Phase
	File  string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("upload %s: %s: %v", e.File, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() []error { return []error{e.Phase.sentinel(), e.Err} }
