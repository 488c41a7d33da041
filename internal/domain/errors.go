package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidDraft wraps validation failures of a CompanyDraft.
	ErrInvalidDraft = errors.New("invalid company draft")
	ErrInvalidInput = errors.New("invalid input")
)

var validate = validator.New()

// Validate checks required fields and trims surrounding whitespace in place.
func (d *CompanyDraft) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Industry = strings.TrimSpace(d.Industry)
	d.Country = strings.TrimSpace(d.Country)
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidDraft, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return nil
}
