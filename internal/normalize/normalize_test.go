package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercases", "ACME Corp", "acme corp"},
		{"strips punctuation", "ACME, Corp. Ltd!", "acme corp ltd"},
		{"collapses whitespace", "  acme   corp  ", "acme corp"},
		{"keeps digits", "Invoice 42/2026", "invoice 42 2026"},
		{"only punctuation", "---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"500.03", "500.03"},
		{"-500.03", "500.03"},
		{"1,250.00", "1250"},
		{"garbage", "0"},
		{"", "0"},
	}
	for _, tt := range tests {
		got := Amount(tt.in)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Amount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	d1 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 12, 23, 59, 0, 0, time.UTC)

	if got := DaysBetween(d1, d2); got != 2 {
		t.Errorf("DaysBetween = %d, want 2", got)
	}
	if got := DaysBetween(d2, d1); got != 2 {
		t.Errorf("DaysBetween reversed = %d, want 2", got)
	}
	if got := DaysBetween(time.Time{}, d1); got != MissingDateSentinel {
		t.Errorf("DaysBetween with missing date = %d, want sentinel %d", got, MissingDateSentinel)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("The ACME Co. of London")
	want := []string{"the", "acme", "london"}
	if len(got) != len(want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tokens[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStripDigitRuns(t *testing.T) {
	if got := StripDigitRuns("REF 0012345 ACME"); got != "REF  ACME" {
		t.Errorf("StripDigitRuns = %q", got)
	}
}
