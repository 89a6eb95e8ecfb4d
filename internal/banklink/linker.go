// Package banklink matches bank-statement inflow rows to payment-gateway
// batches and payouts. Each bank row walks a small state machine: chain
// resolution by referenced transaction ids, day-window amount matching
// against a recognized gateway, description matching against the invoice
// name index, and finally gateway-dominance fallback.
package banklink

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-recon/internal/domain"
	"github.com/dvloznov/ledger-recon/internal/index"
	"github.com/dvloznov/ledger-recon/internal/match"
	"github.com/dvloznov/ledger-recon/internal/normalize"
)

// State is the terminal state a bank row reaches during linking.
type State string

const (
	StateChainResolved     State = "chain_resolved"
	StateSourceMatched     State = "source_matched"
	StateDescMatched       State = "desc_matched"
	StateFallbackAssigned  State = "fallback_assigned"
	StateTerminalUnmatched State = "unmatched"
	// StateExcluded marks rows whose description matches intercompany or
	// transfer vocabulary. They are never assigned revenue.
	StateExcluded State = "excluded"
)

// Strategy tags for the bank-linking tiers.
const (
	StrategyBankChain       = "bank-chain"
	StrategyAmountDate      = "amount+date"
	StrategyAmountOnly      = "amount-only"
	StrategyBankDescName    = "bank-desc-name"
	StrategyBankDescFuzzy   = "bank-desc-fuzzy"
	StrategyGatewayDominant = "gateway-dominant-fallback"
)

// Confidence constants for the bank tiers, decreasing down the cascade.
const (
	confidenceBankChain       = 0.90
	confidenceAmountDate      = 0.80
	confidenceAmountOnly      = 0.75
	confidenceBankDescName    = 0.65
	confidenceBankDescFuzzy   = 0.55
	confidenceGatewayDominant = 0.40
)

const dayKeyFormat = "2006-01-02"

// boilerplate words stripped from bank descriptions before name lookup.
var transferPrefixWords = map[string]struct{}{
	"transfer": {}, "trf": {}, "from": {}, "payment": {}, "pay": {},
	"credit": {}, "deposit": {}, "ref": {}, "reference": {}, "receipt": {},
	"faster": {}, "payments": {}, "bacs": {}, "chaps": {}, "sepa": {},
	"remittance": {}, "inward": {}, "incoming": {},
}

// intercompanyWords excludes a row from revenue assignment entirely.
var intercompanyWords = map[string]struct{}{
	"intercompany": {}, "interco": {}, "intracompany": {}, "sweep": {},
	"treasury": {},
}

// Outcome is the result of linking one bank row.
type Outcome struct {
	State State
	Match match.Result
}

type gatewayIndex struct {
	byDay          map[string][]*domain.LedgerRecord
	accountByTxnID map[string]string
}

// Linker links bank rows against per-gateway transaction sets. The
// resolved map carries account codes inferred for gateway records earlier
// in the same run, keyed by record id; it feeds both chain resolution and
// the gateway dominance table.
type Linker struct {
	ix              *index.InvoiceIndex
	cfg             match.Config
	gateways        map[domain.Source]*gatewayIndex
	gatewayDominant map[domain.Source]string
}

// NewLinker builds the per-gateway day and transaction-id lookups.
func NewLinker(ix *index.InvoiceIndex, cfg match.Config, gatewayRecords map[domain.Source][]*domain.LedgerRecord, resolved map[string]string) *Linker {
	l := &Linker{
		ix:              ix,
		cfg:             cfg,
		gateways:        make(map[domain.Source]*gatewayIndex),
		gatewayDominant: make(map[domain.Source]string),
	}

	for gw, records := range gatewayRecords {
		gix := &gatewayIndex{
			byDay:          make(map[string][]*domain.LedgerRecord),
			accountByTxnID: make(map[string]string),
		}
		counts := make(map[string]int)
		for _, rec := range records {
			if !rec.Date.IsZero() {
				key := rec.Date.Format(dayKeyFormat)
				gix.byDay[key] = append(gix.byDay[key], rec)
			}
			code := rec.AccountCode()
			if code == "" {
				code = resolved[rec.ID]
			}
			if code != "" {
				gix.accountByTxnID[rec.ID] = code
				counts[code]++
			}
		}
		l.gateways[gw] = gix
		if code, ok := dominantCode(counts); ok {
			l.gatewayDominant[gw] = code
		}
	}

	return l
}

// Link walks the state machine for one bank row. Rows that already carry a
// finalized account code are expected to be filtered out by the caller.
func (l *Linker) Link(row *domain.LedgerRecord) Outcome {
	if out, ok := l.resolveChain(row); ok {
		return out
	}

	gw, recognized := l.detectGateway(row)
	if recognized {
		if out, ok := l.matchWindow(row, gw); ok {
			return out
		}
		if code, ok := l.gatewayDominant[gw]; ok {
			return Outcome{State: StateFallbackAssigned, Match: match.Result{
				Strategy:    StrategyGatewayDominant,
				Confidence:  confidenceGatewayDominant,
				AccountCode: code,
			}}
		}
		return Outcome{State: StateTerminalUnmatched}
	}

	return l.matchDescription(row)
}

// resolveChain resolves a row whose metadata already references gateway
// transaction ids. Highest priority: a hit skips all further phases.
func (l *Linker) resolveChain(row *domain.LedgerRecord) (Outcome, bool) {
	for _, id := range row.TransactionIDs() {
		for _, gix := range l.gateways {
			if code, ok := gix.accountByTxnID[id]; ok {
				return Outcome{State: StateChainResolved, Match: match.Result{
					Strategy:        StrategyBankChain,
					Confidence:      confidenceBankChain,
					MatchedRecordID: id,
					AccountCode:     code,
				}}, true
			}
		}
	}
	return Outcome{}, false
}

// detectGateway identifies the gateway family from the row's tagged source
// or its free-text description.
func (l *Linker) detectGateway(row *domain.LedgerRecord) (domain.Source, bool) {
	if tag := row.GatewayTag(); tag != "" {
		for _, gw := range domain.GatewaySources {
			if tag == string(gw) {
				return gw, true
			}
		}
	}
	desc := strings.ToLower(row.Description)
	switch {
	case strings.Contains(desc, "stripe"):
		return domain.SourceStripe, true
	case strings.Contains(desc, "gocardless"):
		return domain.SourceGoCardless, true
	case strings.Contains(desc, "braintree"):
		return domain.SourceBraintree, true
	case strings.Contains(desc, "paypal"):
		return domain.SourcePayPal, true
	case strings.Contains(desc, "amex"), strings.Contains(desc, "american express"):
		return domain.SourceAmex, true
	}
	return "", false
}

// windowDays is the half-width of the day window searched per gateway.
// Braintree settles same-day, so its window is tightest.
func windowDays(gw domain.Source) int {
	switch gw {
	case domain.SourceAmex:
		return 7
	case domain.SourceBraintree:
		return 3
	default:
		return 5
	}
}

// matchWindow searches day offsets outward from the bank date for either a
// day-total sum matching the bank amount within tolerance, or a single
// transaction matching within a tighter tolerance. The first acceptable
// offset terminates the search; no optimization across the whole window.
func (l *Linker) matchWindow(row *domain.LedgerRecord, gw domain.Source) (Outcome, bool) {
	gix, ok := l.gateways[gw]
	if !ok || row.Date.IsZero() {
		return Outcome{}, false
	}

	bankAmount := row.Amount.Abs()
	sumTol := l.cfg.Tolerance(bankAmount)
	singleTol := tightTolerance(bankAmount)
	n := windowDays(gw)

	for d := 0; d <= n; d++ {
		offsets := []int{-d, d}
		if d == 0 {
			offsets = []int{0}
		}
		for _, off := range offsets {
			day := row.Date.AddDate(0, 0, off)
			txns := gix.byDay[day.Format(dayKeyFormat)]
			if len(txns) == 0 {
				continue
			}

			sum := decimal.Zero
			for _, txn := range txns {
				sum = sum.Add(txn.Amount.Abs())
			}
			if sum.Sub(bankAmount).Abs().LessThanOrEqual(sumTol) {
				code := l.dayAccountCode(gix, txns, gw)
				return Outcome{State: StateSourceMatched, Match: match.Result{
					Strategy:    StrategyAmountDate,
					Confidence:  confidenceAmountDate,
					AccountCode: code,
				}}, true
			}

			for _, txn := range txns {
				if txn.Amount.Abs().Sub(bankAmount).Abs().LessThanOrEqual(singleTol) {
					return Outcome{State: StateSourceMatched, Match: match.Result{
						Strategy:        StrategyAmountOnly,
						Confidence:      confidenceAmountOnly,
						MatchedRecordID: txn.ID,
						AccountCode:     gix.accountByTxnID[txn.ID],
					}}, true
				}
			}
		}
	}
	return Outcome{}, false
}

// dayAccountCode picks the dominant resolved code among the day's
// transactions, falling back to the gateway-wide dominant code.
func (l *Linker) dayAccountCode(gix *gatewayIndex, txns []*domain.LedgerRecord, gw domain.Source) string {
	counts := make(map[string]int)
	for _, txn := range txns {
		if code, ok := gix.accountByTxnID[txn.ID]; ok {
			counts[code]++
		}
	}
	if code, ok := dominantCode(counts); ok {
		return code
	}
	return l.gatewayDominant[gw]
}

// matchDescription handles rows with no recognized payment source: clean
// the description, then exact name lookup, then word-overlap fuzzy lookup
// against the invoice name index.
func (l *Linker) matchDescription(row *domain.LedgerRecord) Outcome {
	cleaned, excluded := CleanDescription(row.Description)
	if excluded {
		return Outcome{State: StateExcluded}
	}
	if cleaned == "" {
		return Outcome{State: StateTerminalUnmatched}
	}

	if rec := firstWithAccountCode(l.ix.ByName(cleaned)); rec != nil {
		return Outcome{State: StateDescMatched, Match: match.Result{
			Strategy:        StrategyBankDescName,
			Confidence:      confidenceBankDescName,
			MatchedRecordID: rec.ID,
			AccountCode:     rec.AccountCode(),
		}}
	}

	if name, ok := l.fuzzyDescName(cleaned); ok {
		if rec := firstWithAccountCode(l.ix.ByName(name)); rec != nil {
			return Outcome{State: StateDescMatched, Match: match.Result{
				Strategy:        StrategyBankDescFuzzy,
				Confidence:      confidenceBankDescFuzzy,
				MatchedRecordID: rec.ID,
				AccountCode:     rec.AccountCode(),
			}}
		}
	}

	return Outcome{State: StateTerminalUnmatched}
}

// fuzzyDescName finds an invoice name overlapping the cleaned description:
// at least two shared significant words, or one shared word of length >= 5
// when both names are single-word.
func (l *Linker) fuzzyDescName(cleaned string) (string, bool) {
	words := normalize.Tokens(cleaned)
	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[w] = struct{}{}
	}

	seen := make(map[string]struct{})
	for _, w := range words {
		for _, candName := range l.ix.NamesSharingWord(w) {
			if _, done := seen[candName]; done {
				continue
			}
			seen[candName] = struct{}{}

			candWords := normalize.Tokens(candName)
			shared := 0
			sharedLongest := 0
			for _, cw := range candWords {
				if _, ok := wordSet[cw]; ok {
					shared++
					if len(cw) > sharedLongest {
						sharedLongest = len(cw)
					}
				}
			}
			if shared >= 2 {
				return candName, true
			}
			if shared == 1 && len(words) == 1 && len(candWords) == 1 && sharedLongest >= 5 {
				return candName, true
			}
		}
	}
	return "", false
}

// CleanDescription strips boilerplate transfer-prefix tokens and digit
// runs, then normalizes. The excluded flag is set when the description
// carries intercompany or transfer vocabulary.
func CleanDescription(desc string) (cleaned string, excluded bool) {
	norm := normalize.Text(normalize.StripDigitRuns(desc))
	var kept []string
	for _, w := range strings.Fields(norm) {
		if _, ok := intercompanyWords[w]; ok {
			return "", true
		}
		if _, ok := transferPrefixWords[w]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " "), false
}

// tightTolerance bounds single-transaction matches within the day window:
// max(1% of the bank amount, 1 currency unit).
func tightTolerance(amount decimal.Decimal) decimal.Decimal {
	rel := amount.Abs().Mul(decimal.NewFromFloat(0.01))
	floor := decimal.NewFromInt(1)
	if rel.LessThan(floor) {
		return floor
	}
	return rel
}

func firstWithAccountCode(records []*domain.LedgerRecord) *domain.LedgerRecord {
	for _, rec := range records {
		if rec.HasAccountCode() {
			return rec
		}
	}
	return nil
}

func dominantCode(counts map[string]int) (string, bool) {
	best := ""
	bestCount := 0
	for code, n := range counts {
		if n > bestCount || (n == bestCount && (best == "" || code < best)) {
			best = code
			bestCount = n
		}
	}
	return best, best != ""
}
