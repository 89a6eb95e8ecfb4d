// Package report renders the human-readable run summary: per-source match
// rates and a breakdown of which strategy resolved how many records.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/ledger-recon/internal/domain"
)

// SourceSummary aggregates one source's outcome for a run.
type SourceSummary struct {
	Source            domain.Source
	Total             int
	AlreadyClassified int
	Matched           int
	FallbackAssigned  int
	Excluded          int
	Unmatched         int
	Strategies        map[string]int
	Writes            domain.WriteStats
}

// ClassifiedPercent is the share of records carrying an account code after
// the run, counting pre-existing classifications.
func (s SourceSummary) ClassifiedPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	classified := s.AlreadyClassified + s.Matched + s.FallbackAssigned
	return 100 * float64(classified) / float64(s.Total)
}

// CountStrategy records one resolution under its strategy tag.
func (s *SourceSummary) CountStrategy(strategy string) {
	if s.Strategies == nil {
		s.Strategies = make(map[string]int)
	}
	s.Strategies[strategy]++
}

// RunSummary is the complete scorecard for one reconciliation run.
type RunSummary struct {
	RunID   string
	DryRun  bool
	Sources []SourceSummary
}

// TotalWrites sums write stats across sources.
func (r *RunSummary) TotalWrites() domain.WriteStats {
	var total domain.WriteStats
	for _, s := range r.Sources {
		total.Add(s.Writes)
	}
	return total
}

// Format renders the summary as a plain-text scorecard.
func (r *RunSummary) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Reconciliation run %s", r.RunID)
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString("\n")

	for _, s := range r.Sources {
		fmt.Fprintf(&b, "\n=== %s ===\n", s.Source)
		fmt.Fprintf(&b, "Records:            %d\n", s.Total)
		fmt.Fprintf(&b, "Already classified: %d\n", s.AlreadyClassified)
		fmt.Fprintf(&b, "Newly matched:      %d\n", s.Matched)
		fmt.Fprintf(&b, "Fallback assigned:  %d\n", s.FallbackAssigned)
		if s.Excluded > 0 {
			fmt.Fprintf(&b, "Excluded:           %d\n", s.Excluded)
		}
		fmt.Fprintf(&b, "Unmatched:          %d\n", s.Unmatched)
		fmt.Fprintf(&b, "With account code:  %.1f%%\n", s.ClassifiedPercent())

		if len(s.Strategies) > 0 {
			b.WriteString("By strategy:\n")
			names := make([]string, 0, len(s.Strategies))
			for name := range s.Strategies {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(&b, "  %-26s %d\n", name, s.Strategies[name])
			}
		}

		if s.Writes.Attempted > 0 {
			fmt.Fprintf(&b, "Writes:             %d ok, %d failed\n", s.Writes.Written, s.Writes.Failed)
		}
	}

	total := r.TotalWrites()
	fmt.Fprintf(&b, "\nTotal writes: %d attempted, %d ok, %d failed\n",
		total.Attempted, total.Written, total.Failed)

	return b.String()
}
