// Package assign implements the account-only fallback: when no
// transaction-level match exists, a record still receives an account code
// from historical dominance so it carries accounting metadata.
package assign

import (
	"github.com/dvloznov/ledger-recon/internal/index"
	"github.com/dvloznov/ledger-recon/internal/match"
	"github.com/dvloznov/ledger-recon/internal/normalize"
)

// Assigner resolves account codes by dominance: email domain first, then
// exact name, then fuzzy name. All rungs share the customer-fac-fallback
// strategy tag and a confidence below every cascade tier.
type Assigner struct {
	ix *index.InvoiceIndex
}

// New returns an Assigner over the given invoice index.
func New(ix *index.InvoiceIndex) *Assigner {
	return &Assigner{ix: ix}
}

// Assign attempts the dominance rungs in order. The result carries no
// matched record id: there is no transaction-level link, only aggregate
// history.
func (a *Assigner) Assign(q match.Query) (match.Result, bool) {
	if dom := emailDomain(q.Email); dom != "" {
		if code, ok := a.ix.DominantAccountByDomain(dom); ok {
			return fallbackResult(code), true
		}
	}

	name := normalize.Text(q.Name)
	if name != "" {
		if code, ok := a.ix.DominantAccount(name); ok {
			return fallbackResult(code), true
		}
		for _, cand := range a.ix.FuzzyNameCandidates(name, 0) {
			if code, ok := a.ix.DominantAccount(cand.Name); ok {
				return fallbackResult(code), true
			}
		}
	}

	return match.Result{}, false
}

func fallbackResult(code string) match.Result {
	return match.Result{
		Strategy:    match.StrategyCustomerFallbck,
		Confidence:  match.ConfidenceFallback,
		AccountCode: code,
	}
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			if i == len(email)-1 {
				return ""
			}
			return email[i+1:]
		}
	}
	return ""
}
