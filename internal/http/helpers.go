package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// formatCount renders n with thousands separators (e.g. "1,234,567").
func formatCount(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// formatPct renders a signed percentage with one decimal, or "n/a".
func formatPct(p decimal.NullDecimal) string {
	if !p.Valid {
		return "n/a"
	}
	s := p.Decimal.StringFixed(1) + "%"
	if p.Decimal.IsPositive() {
		return "+" + s
	}
	return s
}

// formatShare renders an unsigned percentage with one decimal, or "n/a".
func formatShare(p decimal.NullDecimal) string {
	if !p.Valid {
		return "n/a"
	}
	return p.Decimal.StringFixed(1) + "%"
}

// pctClass picks the CSS class for a growth cell.
func pctClass(p decimal.NullDecimal) string {
	switch {
	case !p.Valid:
		return "muted"
	case p.Decimal.IsPositive():
		return "up"
	case p.Decimal.IsNegative():
		return "down"
	default:
		return ""
	}
}

// pctNumber converts a percentage for JSON, rounded to two places.
func pctNumber(p decimal.NullDecimal) *float64 {
	if !p.Valid {
		return nil
	}
	f := p.Decimal.Round(2).InexactFloat64()
	return &f
}

func monthLabel(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2006")
}

func monthValue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01")
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return stripControl(strings.TrimSpace(s))
}

// stripControl removes control characters and leaves spacing alone, so
// labels with leading or trailing blanks still match the data.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
