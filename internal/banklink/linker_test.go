package banklink

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-recon/internal/domain"
	"github.com/dvloznov/ledger-recon/internal/index"
	"github.com/dvloznov/ledger-recon/internal/match"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func gatewayTxn(id string, source domain.Source, amount string, date time.Time, account string) *domain.LedgerRecord {
	meta := map[string]string{}
	if account != "" {
		meta[domain.MetaAccountCode] = account
	}
	return &domain.LedgerRecord{
		ID:       id,
		Amount:   decimal.RequireFromString(amount),
		Date:     date,
		Source:   source,
		Metadata: meta,
	}
}

func bankRow(id, description, amount string, date time.Time, meta map[string]string) *domain.LedgerRecord {
	if meta == nil {
		meta = map[string]string{}
	}
	return &domain.LedgerRecord{
		ID:          id,
		Amount:      decimal.RequireFromString(amount),
		Date:        date,
		Description: description,
		Source:      domain.SourceBank,
		Metadata:    meta,
	}
}

func invoice(id, name, account, amount string) *domain.LedgerRecord {
	return &domain.LedgerRecord{
		ID:     id,
		Amount: decimal.RequireFromString(amount),
		Date:   day(1),
		Source: domain.SourceInvoices,
		Metadata: map[string]string{
			domain.MetaCustomerName: name,
			domain.MetaAccountCode:  account,
		},
	}
}

func newLinker(gatewayRecords map[domain.Source][]*domain.LedgerRecord, resolved map[string]string, invoices ...*domain.LedgerRecord) *Linker {
	return NewLinker(index.Build(invoices), match.DefaultConfig(), gatewayRecords, resolved)
}

func TestChainResolutionSkipsAllOtherPhases(t *testing.T) {
	gateways := map[domain.Source][]*domain.LedgerRecord{
		domain.SourceStripe: {gatewayTxn("tx1", domain.SourceStripe, "100", day(10), "4000")},
	}
	l := newLinker(gateways, nil)

	// The amount and date are nonsense; the transaction-id reference alone
	// must resolve the row.
	row := bankRow("b1", "STRIPE PAYOUT", "999999", day(28), map[string]string{
		domain.MetaTransactionIDs: "unknown, tx1",
	})
	out := l.Link(row)
	if out.State != StateChainResolved {
		t.Fatalf("state = %s, want chain_resolved", out.State)
	}
	if out.Match.Strategy != StrategyBankChain || out.Match.AccountCode != "4000" {
		t.Errorf("match = %+v", out.Match)
	}
}

func TestDayTotalSumMatch(t *testing.T) {
	gateways := map[domain.Source][]*domain.LedgerRecord{
		domain.SourceStripe: {
			gatewayTxn("tx1", domain.SourceStripe, "300", day(10), "4000"),
			gatewayTxn("tx2", domain.SourceStripe, "200.50", day(10), "4000"),
		},
	}
	l := newLinker(gateways, nil)

	// Bank settles two days later; 300 + 200.50 = 500.50 is within 5%.
	row := bankRow("b1", "STRIPE PAYOUT REF 29381", "500.50", day(12), nil)
	out := l.Link(row)
	if out.State != StateSourceMatched {
		t.Fatalf("state = %s, want source_matched", out.State)
	}
	if out.Match.Strategy != StrategyAmountDate {
		t.Errorf("strategy = %q, want amount+date", out.Match.Strategy)
	}
	if out.Match.AccountCode != "4000" {
		t.Errorf("account = %q", out.Match.AccountCode)
	}
}

func TestSingleTransactionMatchWithinWindow(t *testing.T) {
	gateways := map[domain.Source][]*domain.LedgerRecord{
		domain.SourceGoCardless: {
			gatewayTxn("tx1", domain.SourceGoCardless, "750", day(9), "4100"),
			gatewayTxn("tx2", domain.SourceGoCardless, "112", day(9), "4100"),
		},
	}
	l := newLinker(gateways, nil)

	// The day total (862) misses, but tx1 alone is within the tighter
	// single-transaction tolerance.
	row := bankRow("b1", "GOCARDLESS LTD", "750.50", day(12), nil)
	out := l.Link(row)
	if out.State != StateSourceMatched {
		t.Fatalf("state = %s, want source_matched", out.State)
	}
	if out.Match.Strategy != StrategyAmountOnly || out.Match.MatchedRecordID != "tx1" {
		t.Errorf("match = %+v", out.Match)
	}
}

func TestWindowRespectsGatewayWidth(t *testing.T) {
	// A braintree payout 4 days out is beyond its 3-day window, so the row
	// falls to the gateway-dominant fallback.
	gateways := map[domain.Source][]*domain.LedgerRecord{
		domain.SourceBraintree: {gatewayTxn("tx1", domain.SourceBraintree, "500", day(10), "4200")},
	}
	l := newLinker(gateways, nil)

	row := bankRow("b1", "BRAINTREE DISBURSEMENT", "500", day(14), nil)
	out := l.Link(row)
	if out.State != StateFallbackAssigned {
		t.Fatalf("state = %s, want fallback_assigned", out.State)
	}
	if out.Match.Strategy != StrategyGatewayDominant || out.Match.AccountCode != "4200" {
		t.Errorf("match = %+v", out.Match)
	}

	// The same payout within an amex 7-day window would still match.
	gateways = map[domain.Source][]*domain.LedgerRecord{
		domain.SourceAmex: {gatewayTxn("tx1", domain.SourceAmex, "500", day(10), "4200")},
	}
	l = newLinker(gateways, nil)
	out = l.Link(bankRow("b2", "AMEX SETTLEMENT", "500", day(14), nil))
	if out.State != StateSourceMatched {
		t.Errorf("amex state = %s, want source_matched", out.State)
	}
}

func TestResolvedMapFeedsChainAndDominance(t *testing.T) {
	// Gateway transactions with no account code of their own, resolved
	// earlier in the run via the matcher.
	gateways := map[domain.Source][]*domain.LedgerRecord{
		domain.SourcePayPal: {
			gatewayTxn("tx1", domain.SourcePayPal, "90", day(10), ""),
			gatewayTxn("tx2", domain.SourcePayPal, "80", day(11), ""),
		},
	}
	resolved := map[string]string{"tx1": "4300", "tx2": "4300"}
	l := newLinker(gateways, resolved)

	out := l.Link(bankRow("b1", "PAYPAL TRANSFER", "42", day(25), nil))
	if out.State != StateFallbackAssigned || out.Match.AccountCode != "4300" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestDescriptionExactNameMatch(t *testing.T) {
	l := newLinker(nil, nil, invoice("i1", "Acme Corp", "4000", "500"))

	row := bankRow("b1", "FASTER PAYMENTS RECEIPT 00923 ACME CORP", "500", day(12), nil)
	out := l.Link(row)
	if out.State != StateDescMatched {
		t.Fatalf("state = %s, want desc_matched", out.State)
	}
	if out.Match.Strategy != StrategyBankDescName || out.Match.AccountCode != "4000" {
		t.Errorf("match = %+v", out.Match)
	}
}

func TestDescriptionFuzzyNeedsTwoSharedWords(t *testing.T) {
	l := newLinker(nil, nil,
		invoice("i1", "Acme Trading Company", "4000", "500"),
		invoice("i2", "Globex", "4100", "120"),
	)

	// Two shared significant words: fuzzy accepted.
	out := l.Link(bankRow("b1", "TRF 8812 ACME TRADING LLC", "500", day(12), nil))
	if out.State != StateDescMatched || out.Match.Strategy != StrategyBankDescFuzzy {
		t.Fatalf("two-word overlap: %+v", out)
	}

	// One shared word among multi-word names: rejected.
	out = l.Link(bankRow("b2", "TRF 8812 ACME LOGISTICS PARTNERS", "500", day(12), nil))
	if out.State != StateTerminalUnmatched {
		t.Errorf("one-word overlap should stay unmatched, got %s", out.State)
	}

	// Single significant word on both sides, length >= 5. The "co" token is
	// too short to count, so the exact lookup misses and fuzzy fires.
	out = l.Link(bankRow("b3", "CREDIT 4471 GLOBEX CO", "120", day(12), nil))
	if out.State != StateDescMatched || out.Match.Strategy != StrategyBankDescFuzzy || out.Match.AccountCode != "4100" {
		t.Errorf("single long word overlap: %+v", out)
	}
}

func TestIntercompanyExcluded(t *testing.T) {
	l := newLinker(nil, nil, invoice("i1", "Acme Corp", "4000", "500"))

	out := l.Link(bankRow("b1", "INTERCOMPANY TRANSFER ACME CORP", "500", day(12), nil))
	if out.State != StateExcluded {
		t.Errorf("state = %s, want excluded", out.State)
	}
	if out.Match.AccountCode != "" {
		t.Error("excluded rows must never receive an account code")
	}
}

func TestNoSignalTerminalUnmatched(t *testing.T) {
	l := newLinker(nil, nil)

	out := l.Link(bankRow("b1", "MISC 000123", "77", day(12), nil))
	if out.State != StateTerminalUnmatched {
		t.Errorf("state = %s, want unmatched", out.State)
	}
}

func TestCleanDescription(t *testing.T) {
	cleaned, excluded := CleanDescription("FASTER PAYMENTS RECEIPT 00923 ACME CORP")
	if excluded {
		t.Fatal("not intercompany")
	}
	if cleaned != "acme corp" {
		t.Errorf("cleaned = %q, want %q", cleaned, "acme corp")
	}

	if _, excluded := CleanDescription("TREASURY SWEEP 18:00"); !excluded {
		t.Error("treasury sweep must be excluded")
	}
}
