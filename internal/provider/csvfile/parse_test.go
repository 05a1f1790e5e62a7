package csvfile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		direction model.Direction
	}{
		{"45.00", "45.00", model.DirectionIncome},
		{"-12.30", "12.30", model.DirectionExpense},
		{"(45.00)", "45.00", model.DirectionExpense},
		{"$1,234.56", "1234.56", model.DirectionIncome},
		{"($2,000.00)", "2000.00", model.DirectionExpense},
		{"€99.99", "99.99", model.DirectionIncome},
		{"A$ 10.00", "10.00", model.DirectionIncome},
		{" -£5.50 ", "5.50", model.DirectionExpense},
		{"0", "0", model.DirectionIncome},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			amount, direction, err := parseAmount(tt.in)
			require.NoError(t, err)
			assert.True(t, amount.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", amount, tt.want)
			assert.Equal(t, tt.direction, direction)
		})
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12.3.4", "()"} {
		_, _, err := parseAmount(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseDateAuto(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"2024/03/05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"03/05/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"05 Mar 2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"Mar 5, 2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"2024-03-05T10:30:00Z", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in, "auto")
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestParseDateExplicitFormat(t *testing.T) {
	// With an explicit DD/MM/YYYY, 05/03 is March 5, not May 3.
	got, err := parseDate("05/03/2024", "DD/MM/YYYY")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDate("2024.03.05", "YYYY.MM.DD")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got)

	_, err = parseDate("05-03-24", "DD/MM/YYYY")
	assert.Error(t, err, "explicit format is applied exactly")
}

func TestParseDateUnparseable(t *testing.T) {
	_, err := parseDate("yesterday", "auto")
	assert.Error(t, err)
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"", ""},
		{"auto", ""},
		{"AUTO", ""},
		{"YYYY-MM-DD", "2006-01-02"},
		{"DD/MM/YYYY", "02/01/2006"},
		{"MM/DD/YY", "01/02/06"},
	}
	for _, tt := range tests {
		got, err := layoutFor(tt.format)
		require.NoError(t, err, "format %q", tt.format)
		assert.Equal(t, tt.want, got, "format %q", tt.format)
	}

	_, err := layoutFor("D/M/YYYY")
	assert.Error(t, err, "leftover tokens are rejected")
}
