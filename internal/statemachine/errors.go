package statemachine

import "fmt"

// TransitionDeniedError reports an action the current state does not allow.
// The machine itself only answers true/false; callers build this when they block an action.
type TransitionDeniedError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionDeniedError) Error() string {
	return fmt.Sprintf("%s: transition %s -> %s not allowed", e.Entity, e.From, e.To)
}

func Denied[S ~string](entity string, from, to S) *TransitionDeniedError {
	return &TransitionDeniedError{Entity: entity, From: string(from), To: string(to)}
}
