package portfolio

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateComparable(t *testing.T) {
	// dates are used as cache keys and compared with ==.
	assert.True(t, NewDate(2025, 7, 31) == NewDate(2025, 7, 31))
	assert.Equal(t, NewDate(2025, 8, 1), NewDate(2025, 7, 32), "normalized")
	assert.Equal(t, NewDate(2024, 2, 29), NewDate(2024, 3, 1).Add(-1))
}

func TestParseDate(t *testing.T) {
	today := Today()
	tests := []struct {
		in   string
		want Date
	}{
		{"2025-01-15", NewDate(2025, time.January, 15)},
		{"2025-7-1", NewDate(2025, time.July, 1)},
		{" 2025-07-01 ", NewDate(2025, time.July, 1)},
		{"0d", today},
		{"-0d", today},
		{"-1d", today.Add(-1)},
		{"+1d", today.Add(1)},
		{"-2w", today.Add(-14)},
		{"-1m", NewDate(today.Year(), today.Month()-1, today.Day())},
		{"+1m", NewDate(today.Year(), today.Month()+1, today.Day())},
		{"-1y", NewDate(today.Year()-1, today.Month(), today.Day())},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, in := range []string{"invalid-date", "2025-02-30x", "1d", "-3q", ""} {
		_, err := ParseDate(in)
		assert.Error(t, err, "ParseDate(%q)", in)
	}
}

func TestMinDate(t *testing.T) {
	a, b := NewDate(2024, 1, 10), NewDate(2024, 1, 9)
	assert.Equal(t, b, MinDate(a, b))
	assert.Equal(t, b, MinDate(b, a))
}

func TestDateSQL(t *testing.T) {
	tests := []struct {
		src  any
		want Date
	}{
		{"2024-05-21", NewDate(2024, 5, 21)},
		{[]byte("2024-5-1"), NewDate(2024, 5, 1)},
		{time.Date(2024, 5, 21, 13, 0, 0, 0, time.UTC), NewDate(2024, 5, 21)},
		{nil, Date{}},
	}
	for _, tt := range tests {
		var d Date
		require.NoError(t, d.Scan(tt.src), "Scan(%v)", tt.src)
		assert.Equal(t, tt.want, d)
	}
	var d Date
	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan("yesterday"))

	v, err := NewDate(2024, 5, 21).Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-05-21", v)
	v, err = Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v, "the zero date is stored as NULL")
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		From Date `json:"from"`
		To   Date `json:"to"`
	}{From: NewDate(2024, 5, 21)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"2024-05-21","to":""}`, string(b))

	var got struct{ From, To Date }
	require.NoError(t, json.Unmarshal([]byte(`{"From":"2024-05-21","To":""}`), &got))
	assert.Equal(t, NewDate(2024, 5, 21), got.From)
	assert.True(t, got.To.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"not-a-date"`), &got.From))
}
