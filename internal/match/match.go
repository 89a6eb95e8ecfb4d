// Package match implements the candidate-matching cascade: an ordered list
// of strategies evaluated against the invoice index, stopping at the first
// one that produces a hit. Confidence values are design constants per
// strategy, not statistically calibrated.
package match

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-recon/internal/index"
)

// Strategy tags recorded in match provenance.
const (
	StrategyEmailAmount     = "email+amount"
	StrategyEmailDate       = "email+date"
	StrategyNameAmount      = "name+amount"
	StrategyNameDate        = "name+date"
	StrategyFuzzyNameAmount = "fuzzy-name+amount"
	StrategyFuzzyName       = "fuzzy-name"
	StrategyCustomerFallbck = "customer-fac-fallback"
)

// Per-strategy confidence constants.
const (
	ConfidenceEmailAmount     = 0.92
	ConfidenceEmailDate       = 0.78
	ConfidenceNameAmount      = 0.88
	ConfidenceNameDateNear    = 0.72 // date within 30 days
	ConfidenceNameDateFar     = 0.55
	ConfidenceFuzzyNameAmount = 0.70
	ConfidenceFuzzyName       = 0.50
	ConfidenceFallback        = 0.40
)

// maxFuzzyCandidates bounds how many fuzzy name candidates the
// fuzzy-name+amount tier inspects.
const maxFuzzyCandidates = 5

// Config holds the matching tunables.
type Config struct {
	// MaxDays is the widest acceptable date distance for the date tiers.
	MaxDays int
	// AmountTolerancePct is the relative amount tolerance (0.05 = 5%).
	AmountTolerancePct decimal.Decimal
	// MinAmountTolerance is the tolerance floor in currency units.
	MinAmountTolerance decimal.Decimal
}

// DefaultConfig returns the standard tunables: 365-day window, 5% amount
// tolerance with a floor of 2 currency units.
func DefaultConfig() Config {
	return Config{
		MaxDays:            365,
		AmountTolerancePct: decimal.NewFromFloat(0.05),
		MinAmountTolerance: decimal.NewFromInt(2),
	}
}

// Tolerance returns max(|amount| * pct, floor). A difference of exactly
// the tolerance is within bounds.
func (c Config) Tolerance(amount decimal.Decimal) decimal.Decimal {
	rel := amount.Abs().Mul(c.AmountTolerancePct)
	if rel.LessThan(c.MinAmountTolerance) {
		return c.MinAmountTolerance
	}
	return rel
}

// Query is one record's matching signals: whatever subset of name, email,
// amount and date the source feed carries.
type Query struct {
	Name   string
	Email  string
	Amount decimal.Decimal
	Date   time.Time
}

// Result is the outcome of a successful match: which strategy fired, its
// confidence, the invoice record it matched, and the derived account code.
type Result struct {
	Strategy        string
	Confidence      float64
	MatchedRecordID string
	AccountCode     string
}

// Strategy is one tier of the cascade.
type Strategy interface {
	Name() string
	Match(q Query, ix *index.InvoiceIndex) (Result, bool)
}

// Cascade evaluates strategies in fixed priority order and returns the
// first hit.
type Cascade struct {
	strategies []Strategy
}

// NewCascade builds the standard six-tier cascade.
func NewCascade(cfg Config) *Cascade {
	return &Cascade{strategies: []Strategy{
		&emailAmountStrategy{cfg: cfg},
		&emailDateStrategy{cfg: cfg},
		&nameAmountStrategy{cfg: cfg},
		&nameDateStrategy{cfg: cfg},
		&fuzzyNameAmountStrategy{cfg: cfg},
		&fuzzyNameStrategy{},
	}}
}

// NewCascadeWith builds a cascade from an explicit strategy list, in the
// given order. Used by tests to exercise tiers in isolation.
func NewCascadeWith(strategies ...Strategy) *Cascade {
	return &Cascade{strategies: strategies}
}

// Match runs the cascade for one query.
func (c *Cascade) Match(q Query, ix *index.InvoiceIndex) (Result, bool) {
	for _, s := range c.strategies {
		if res, ok := s.Match(q, ix); ok {
			return res, true
		}
	}
	return Result{}, false
}
