package match

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-recon/internal/domain"
	"github.com/dvloznov/ledger-recon/internal/index"
	"github.com/dvloznov/ledger-recon/internal/normalize"
)

// emailAmountStrategy: exact email bucket, amount within tolerance.
// Ties broken by amount closeness, then date closeness.
type emailAmountStrategy struct {
	cfg Config
}

func (s *emailAmountStrategy) Name() string { return StrategyEmailAmount }

func (s *emailAmountStrategy) Match(q Query, ix *index.InvoiceIndex) (Result, bool) {
	if q.Email == "" {
		return Result{}, false
	}
	tol := s.cfg.Tolerance(q.Amount)

	var best *domain.LedgerRecord
	var bestDiff decimal.Decimal
	bestDays := 0
	for _, rec := range ix.ByEmail(q.Email) {
		diff := rec.Amount.Abs().Sub(q.Amount.Abs()).Abs()
		if diff.GreaterThan(tol) {
			continue
		}
		days := normalize.DaysBetween(q.Date, rec.Date)
		if best == nil || diff.LessThan(bestDiff) || (diff.Equal(bestDiff) && days < bestDays) {
			best = rec
			bestDiff = diff
			bestDays = days
		}
	}
	if best == nil {
		return Result{}, false
	}
	return Result{
		Strategy:        StrategyEmailAmount,
		Confidence:      ConfidenceEmailAmount,
		MatchedRecordID: best.ID,
		AccountCode:     best.AccountCode(),
	}, true
}

// emailDateStrategy: exact email bucket, closest date within MaxDays.
type emailDateStrategy struct {
	cfg Config
}

func (s *emailDateStrategy) Name() string { return StrategyEmailDate }

func (s *emailDateStrategy) Match(q Query, ix *index.InvoiceIndex) (Result, bool) {
	if q.Email == "" {
		return Result{}, false
	}
	best, _ := closestByDate(ix.ByEmail(q.Email), q, s.cfg.MaxDays)
	if best == nil {
		return Result{}, false
	}
	return Result{
		Strategy:        StrategyEmailDate,
		Confidence:      ConfidenceEmailDate,
		MatchedRecordID: best.ID,
		AccountCode:     best.AccountCode(),
	}, true
}

// nameAmountStrategy: exact normalized-name bucket, amount within tolerance,
// closest amount wins.
type nameAmountStrategy struct {
	cfg Config
}

func (s *nameAmountStrategy) Name() string { return StrategyNameAmount }

func (s *nameAmountStrategy) Match(q Query, ix *index.InvoiceIndex) (Result, bool) {
	name := normalize.Text(q.Name)
	if name == "" {
		return Result{}, false
	}
	best := closestByAmount(ix.ByName(name), q.Amount, s.cfg.Tolerance(q.Amount))
	if best == nil {
		return Result{}, false
	}
	return Result{
		Strategy:        StrategyNameAmount,
		Confidence:      ConfidenceNameAmount,
		MatchedRecordID: best.ID,
		AccountCode:     best.AccountCode(),
	}, true
}

// nameDateStrategy: exact normalized-name bucket, closest date within
// MaxDays. Confidence drops when the closest date is over 30 days out.
type nameDateStrategy struct {
	cfg Config
}

func (s *nameDateStrategy) Name() string { return StrategyNameDate }

func (s *nameDateStrategy) Match(q Query, ix *index.InvoiceIndex) (Result, bool) {
	name := normalize.Text(q.Name)
	if name == "" {
		return Result{}, false
	}
	best, days := closestByDate(ix.ByName(name), q, s.cfg.MaxDays)
	if best == nil {
		return Result{}, false
	}
	confidence := ConfidenceNameDateNear
	if days > 30 {
		confidence = ConfidenceNameDateFar
	}
	return Result{
		Strategy:        StrategyNameDate,
		Confidence:      confidence,
		MatchedRecordID: best.ID,
		AccountCode:     best.AccountCode(),
	}, true
}

// fuzzyNameAmountStrategy: word-overlap name candidates (ratio >= 0.5),
// amount within tolerance, scanning at most maxFuzzyCandidates names in
// best-score order.
type fuzzyNameAmountStrategy struct {
	cfg Config
}

func (s *fuzzyNameAmountStrategy) Name() string { return StrategyFuzzyNameAmount }

func (s *fuzzyNameAmountStrategy) Match(q Query, ix *index.InvoiceIndex) (Result, bool) {
	if normalize.Text(q.Name) == "" {
		return Result{}, false
	}
	tol := s.cfg.Tolerance(q.Amount)
	for _, cand := range ix.FuzzyNameCandidates(q.Name, maxFuzzyCandidates) {
		if best := closestByAmount(ix.ByName(cand.Name), q.Amount, tol); best != nil {
			return Result{
				Strategy:        StrategyFuzzyNameAmount,
				Confidence:      ConfidenceFuzzyNameAmount,
				MatchedRecordID: best.ID,
				AccountCode:     best.AccountCode(),
			}, true
		}
	}
	return Result{}, false
}

// fuzzyNameStrategy: word-overlap candidates with no amount constraint;
// the first candidate carrying any known account code wins.
type fuzzyNameStrategy struct{}

func (s *fuzzyNameStrategy) Name() string { return StrategyFuzzyName }

func (s *fuzzyNameStrategy) Match(q Query, ix *index.InvoiceIndex) (Result, bool) {
	if normalize.Text(q.Name) == "" {
		return Result{}, false
	}
	for _, cand := range ix.FuzzyNameCandidates(q.Name, 0) {
		for _, rec := range ix.ByName(cand.Name) {
			if rec.HasAccountCode() {
				return Result{
					Strategy:        StrategyFuzzyName,
					Confidence:      ConfidenceFuzzyName,
					MatchedRecordID: rec.ID,
					AccountCode:     rec.AccountCode(),
				}, true
			}
		}
	}
	return Result{}, false
}

// closestByAmount returns the record whose absolute amount is nearest the
// query amount and within tolerance, or nil.
func closestByAmount(records []*domain.LedgerRecord, amount, tol decimal.Decimal) *domain.LedgerRecord {
	var best *domain.LedgerRecord
	var bestDiff decimal.Decimal
	for _, rec := range records {
		diff := rec.Amount.Abs().Sub(amount.Abs()).Abs()
		if diff.GreaterThan(tol) {
			continue
		}
		if best == nil || diff.LessThan(bestDiff) {
			best = rec
			bestDiff = diff
		}
	}
	return best
}

// closestByDate returns the record with the smallest day distance to the
// query date, provided it is within maxDays. A missing date on either side
// yields the sentinel distance and never wins.
func closestByDate(records []*domain.LedgerRecord, q Query, maxDays int) (*domain.LedgerRecord, int) {
	var best *domain.LedgerRecord
	bestDays := 0
	for _, rec := range records {
		days := normalize.DaysBetween(q.Date, rec.Date)
		if days > maxDays {
			continue
		}
		if best == nil || days < bestDays {
			best = rec
			bestDays = days
		}
	}
	return best, bestDays
}
