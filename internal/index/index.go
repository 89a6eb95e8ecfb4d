// Package index builds the per-run lookup structures over the invoice
// ledger. An InvoiceIndex is built in a single pass and treated as
// read-only for the rest of the run; a new run rebuilds it from scratch.
package index

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-recon/internal/domain"
	"github.com/dvloznov/ledger-recon/internal/normalize"
)

// InvoiceIndex holds four lookup structures over the invoice ledger plus
// the frequency tables used for fallback account assignment. All lists
// hold references into the loaded record set, not copies.
type InvoiceIndex struct {
	byName   map[string][]*domain.LedgerRecord
	byEmail  map[string][]*domain.LedgerRecord
	byAmount map[int64][]*domain.LedgerRecord
	// wordToNames maps each significant word (len >= 3) to the set of
	// normalized names containing it.
	wordToNames map[string]map[string]struct{}

	nameAccounts    map[string]map[string]int
	domainAccounts  map[string]map[string]int
	invoiceAccounts map[string]string
}

// FuzzyCandidate is one name from the word index scored by bag-of-words
// overlap with a query name.
type FuzzyCandidate struct {
	Name  string
	Score float64
}

// Build populates all indexes and frequency tables in one pass over the
// invoice ledger. Records lacking a name, email, or amount are simply
// omitted from the respective index.
func Build(records []*domain.LedgerRecord) *InvoiceIndex {
	ix := &InvoiceIndex{
		byName:          make(map[string][]*domain.LedgerRecord),
		byEmail:         make(map[string][]*domain.LedgerRecord),
		byAmount:        make(map[int64][]*domain.LedgerRecord),
		wordToNames:     make(map[string]map[string]struct{}),
		nameAccounts:    make(map[string]map[string]int),
		domainAccounts:  make(map[string]map[string]int),
		invoiceAccounts: make(map[string]string),
	}

	for _, rec := range records {
		name := normalize.Text(rec.CustomerName())
		email := rec.CustomerEmail()
		account := rec.AccountCode()

		if name != "" {
			ix.byName[name] = append(ix.byName[name], rec)
			for _, w := range normalize.Tokens(name) {
				names, ok := ix.wordToNames[w]
				if !ok {
					names = make(map[string]struct{})
					ix.wordToNames[w] = names
				}
				names[name] = struct{}{}
			}
			if account != "" {
				counts, ok := ix.nameAccounts[name]
				if !ok {
					counts = make(map[string]int)
					ix.nameAccounts[name] = counts
				}
				counts[account]++
			}
		}

		if email != "" {
			ix.byEmail[email] = append(ix.byEmail[email], rec)
			if dom := rec.EmailDomain(); dom != "" && account != "" {
				counts, ok := ix.domainAccounts[dom]
				if !ok {
					counts = make(map[string]int)
					ix.domainAccounts[dom] = counts
				}
				counts[account]++
			}
		}

		if !rec.Amount.IsZero() {
			bucket := AmountBucket(rec.Amount)
			ix.byAmount[bucket] = append(ix.byAmount[bucket], rec)
		}

		if inv := rec.InvoiceNumber(); inv != "" && account != "" {
			ix.invoiceAccounts[inv] = account
		}
	}

	return ix
}

// AmountBucket maps an amount to its integer index bucket: the absolute
// value rounded to the nearest whole unit.
func AmountBucket(amount decimal.Decimal) int64 {
	return amount.Abs().Round(0).IntPart()
}

// ByName returns the invoice records filed under the exact normalized name.
func (ix *InvoiceIndex) ByName(name string) []*domain.LedgerRecord {
	return ix.byName[name]
}

// ByEmail returns the invoice records filed under the normalized email.
func (ix *InvoiceIndex) ByEmail(email string) []*domain.LedgerRecord {
	return ix.byEmail[email]
}

// ByAmountBucket returns the invoice records in the given amount bucket.
func (ix *InvoiceIndex) ByAmountBucket(bucket int64) []*domain.LedgerRecord {
	return ix.byAmount[bucket]
}

// AccountForInvoice returns the account code recorded against the given
// invoice number.
func (ix *InvoiceIndex) AccountForInvoice(invoiceNumber string) (string, bool) {
	code, ok := ix.invoiceAccounts[invoiceNumber]
	return code, ok
}

// DominantAccount returns the account code seen most often for the exact
// normalized name. Equal counts are broken lexicographically by account
// code so repeated runs stay deterministic.
func (ix *InvoiceIndex) DominantAccount(name string) (string, bool) {
	code, _, ok := dominant(ix.nameAccounts[name])
	return code, ok
}

// DominantAccountByDomain returns the dominant account code for an email
// domain. A single occurrence is not enough: the top code must have been
// seen at least twice, to avoid single-sample noise.
func (ix *InvoiceIndex) DominantAccountByDomain(domain string) (string, bool) {
	code, count, ok := dominant(ix.domainAccounts[domain])
	if !ok || count < 2 {
		return "", false
	}
	return code, true
}

func dominant(counts map[string]int) (string, int, bool) {
	best := ""
	bestCount := 0
	for code, n := range counts {
		if n > bestCount || (n == bestCount && (best == "" || code < best)) {
			best = code
			bestCount = n
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestCount, true
}

// FuzzyNameCandidates returns up to limit names sharing at least one
// significant word with the query name, with overlap ratio >= 0.5, best
// score first. The overlap ratio is sharedWords / max(queryWords,
// candidateWords); ties are ordered lexicographically for determinism.
func (ix *InvoiceIndex) FuzzyNameCandidates(name string, limit int) []FuzzyCandidate {
	queryWords := normalize.Tokens(name)
	if len(queryWords) == 0 {
		return nil
	}

	querySet := make(map[string]struct{}, len(queryWords))
	for _, w := range queryWords {
		querySet[w] = struct{}{}
	}

	seen := make(map[string]struct{})
	var candidates []FuzzyCandidate
	for w := range querySet {
		for candName := range ix.wordToNames[w] {
			if _, done := seen[candName]; done {
				continue
			}
			seen[candName] = struct{}{}

			candWords := normalize.Tokens(candName)
			shared := 0
			for _, cw := range candWords {
				if _, ok := querySet[cw]; ok {
					shared++
				}
			}
			if shared == 0 {
				continue
			}
			denom := len(querySet)
			if len(candWords) > denom {
				denom = len(candWords)
			}
			score := float64(shared) / float64(denom)
			if score < 0.5 {
				continue
			}
			candidates = append(candidates, FuzzyCandidate{Name: candName, Score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Name < candidates[j].Name
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// NamesSharingWord returns the normalized names containing the given
// significant word. Used by the bank-description fuzzy lookup, which has
// its own overlap rules.
func (ix *InvoiceIndex) NamesSharingWord(word string) []string {
	set := ix.wordToNames[word]
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
