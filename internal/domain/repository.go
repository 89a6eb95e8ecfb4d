package domain

import "context"

// WriteStats reports the outcome of applying a group of patches.
type WriteStats struct {
	Attempted int
	Written   int
	Failed    int
}

// Add accumulates another group's stats into s.
func (s *WriteStats) Add(other WriteStats) {
	s.Attempted += other.Attempted
	s.Written += other.Written
	s.Failed += other.Failed
}

// LedgerRepository is the generic read/write interface over the shared
// ledger store. Reads are paginated per source; writes merge field patches
// into each record's metadata and tolerate per-record failures.
type LedgerRepository interface {
	// ListBySource fetches all records tagged with the given source.
	// A page-level failure terminates that source's pagination early; the
	// records fetched so far are still returned.
	ListBySource(ctx context.Context, source Source) ([]*LedgerRecord, error)

	// ApplyPatches merges each patch into its record's metadata, in fixed
	// size batches. A failing record does not abort sibling writes; failures
	// are counted in the returned stats. In dry-run mode no writes happen
	// but stats are computed as if they had.
	ApplyPatches(ctx context.Context, patches []FieldPatch) (WriteStats, error)
}
