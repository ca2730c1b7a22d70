package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRange(t *testing.T) {
	asOf := NewDate(2024, 3, 31)
	tests := []struct {
		name     string
		from, to Date
		want     Range
	}{
		{"whole history", Date{}, Date{}, Range{Inception, asOf}},
		{"open end", NewDate(2024, 1, 1), Date{}, Range{NewDate(2024, 1, 1), asOf}},
		{"clamped to asOf", NewDate(2024, 1, 1), NewDate(2024, 12, 31), Range{NewDate(2024, 1, 1), asOf}},
		{"single day", asOf, asOf, Range{asOf, asOf}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reportRange(tt.from, tt.to, asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := reportRange(NewDate(2024, 4, 1), Date{}, asOf)
	assert.ErrorIs(t, err, ErrValidation, "from after asOf")
}

func TestRange_Contains(t *testing.T) {
	r := Range{NewDate(2024, 1, 1), NewDate(2024, 1, 31)}
	assert.False(t, r.Contains(NewDate(2023, 12, 31)))
	assert.True(t, r.Contains(NewDate(2024, 1, 1)))
	assert.True(t, r.Contains(NewDate(2024, 1, 15)))
	assert.True(t, r.Contains(NewDate(2024, 1, 31)))
	assert.False(t, r.Contains(NewDate(2024, 2, 1)))
}
