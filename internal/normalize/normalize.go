// Package normalize holds the canonicalization helpers every matching
// signal goes through: free text, numeric amounts, and date distances.
// All functions are pure.
package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MissingDateSentinel is returned by DaysBetween when either date is
// missing. It is large enough to never win a closest-date contest.
const MissingDateSentinel = 999

// Text canonicalizes free text: lower-case, strip everything outside
// [a-z0-9 ], collapse internal whitespace, trim. Empty input stays empty.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true // leading spaces are dropped
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Amount parses v tolerantly into an absolute decimal amount. Invalid
// input normalizes to zero, so a malformed field loses tolerance-based
// matches instead of crashing the run.
func Amount(v string) decimal.Decimal {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d.Abs()
}

// DaysBetween returns the absolute difference between two dates in whole
// days. If either date is missing (zero), it returns MissingDateSentinel.
func DaysBetween(a, b time.Time) int {
	if a.IsZero() || b.IsZero() {
		return MissingDateSentinel
	}
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Tokens returns the normalized words of s with length >= 3. These are the
// significant words used by the fuzzy-name and description indexes.
func Tokens(s string) []string {
	var words []string
	for _, w := range strings.Fields(Text(s)) {
		if len(w) >= 3 {
			words = append(words, w)
		}
	}
	return words
}

// StripDigitRuns removes digit sequences from s. Bank descriptions carry
// reference numbers that never help a name match.
func StripDigitRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
