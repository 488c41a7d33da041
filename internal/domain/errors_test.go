package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyDraftValidate(t *testing.T) {
	d := CompanyDraft{Name: "  Acme Corp ", Industry: "FinTech", Country: "USA"}
	require.NoError(t, d.Validate())
	assert.Equal(t, "Acme Corp", d.Name)
}

func TestCompanyDraftValidate_MissingFields(t *testing.T) {
	d := CompanyDraft{Name: "   ", Country: "USA"}
	err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDraft)
	assert.Contains(t, err.Error(), "Name")
	assert.Contains(t, err.Error(), "Industry")
}
