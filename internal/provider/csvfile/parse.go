package csvfile

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

// currencyMarks are stripped before amount parsing, alongside thousands
// separators and whitespace.
var currencyMarks = []string{"$", "€", "£", "¥", "R$", "A$", "US"}

// parseAmount parses a bank-export amount string. Parentheses mean
// negative ("(45.00)" is -45.00), commas are thousands separators and
// currency symbols are ignored. The sign becomes the direction and the
// returned amount is unsigned.
func parseAmount(s string) (decimal.Decimal, model.Direction, error) {
	cleaned := strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	for _, mark := range currencyMarks {
		cleaned = strings.ReplaceAll(cleaned, mark, "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("parsing amount %q: %w", s, err)
	}

	if amount.IsNegative() {
		negative = true
		amount = amount.Abs()
	}

	direction := model.DirectionIncome
	if negative {
		direction = model.DirectionExpense
	}
	return amount, direction, nil
}

// autoLayouts are tried in order when the date format is "auto".
var autoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// parseDate parses a date cell using the configured format. An empty or
// "auto" format tries common layouts; otherwise the pattern (DD/MM/YYYY
// style tokens) is applied exactly, so "05/03/2024" with DD/MM/YYYY is
// March 5, not May 3.
func parseDate(s, format string) (time.Time, error) {
	s = strings.TrimSpace(s)

	layout, err := layoutFor(format)
	if err != nil {
		return time.Time{}, err
	}

	if layout == "" {
		for _, l := range autoLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("parsing date %q: no known layout matched", s)
	}

	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q with format %s: %w", s, format, err)
	}
	return t.UTC(), nil
}

// layoutFor converts a DD/MM/YYYY-style pattern to a Go time layout.
// Empty and "auto" mean automatic detection (returned as "").
func layoutFor(format string) (string, error) {
	if format == "" || strings.EqualFold(format, "auto") {
		return "", nil
	}

	layout := format
	for _, r := range [][2]string{
		{"YYYY", "2006"},
		{"YY", "06"},
		{"MM", "01"},
		{"DD", "02"},
	} {
		layout = strings.ReplaceAll(layout, r[0], r[1])
	}

	if strings.ContainsAny(layout, "YMD") {
		return "", fmt.Errorf("unsupported date format %q", format)
	}
	return layout, nil
}
