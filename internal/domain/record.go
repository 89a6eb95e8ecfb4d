package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source tags identify which feed a ledger record came from.
type Source string

const (
	SourceInvoices   Source = "invoices"
	SourceStripe     Source = "stripe"
	SourceGoCardless Source = "gocardless"
	SourcePayPal     Source = "paypal"
	SourceBraintree  Source = "braintree"
	SourceAmex       Source = "amex"
	SourceBank       Source = "bank"
)

// GatewaySources lists the payment-gateway feeds in the order they are
// loaded and matched.
var GatewaySources = []Source{SourceStripe, SourceGoCardless, SourcePayPal, SourceBraintree, SourceAmex}

// IsGateway reports whether s is one of the known payment-gateway feeds.
func (s Source) IsGateway() bool {
	for _, g := range GatewaySources {
		if s == g {
			return true
		}
	}
	return false
}

// Well-known metadata keys. Source-specific fields ride in the open metadata
// map; these are the ones the reconciliation engine reads and writes.
const (
	MetaCustomerName     = "customer_name"
	MetaCustomerEmail    = "customer_email"
	MetaInvoiceNumber    = "invoice_number"
	MetaAccountCode      = "account_code"
	MetaTransactionIDs   = "transaction_ids"
	MetaGateway          = "gateway"
	MetaDisbursementDate = "disbursement_date"
	MetaMatchedRecordID  = "matched_record_id"
	MetaMatchStrategy    = "match_strategy"
	MetaMatchConfidence  = "match_confidence"
	MetaReconRunID       = "recon_run_id"
)

// LedgerRecord is one transaction-like row from any source. Records are
// immutable inputs: the engine never mutates a record in place, it emits
// FieldPatch values that are merged into Metadata at write-back.
type LedgerRecord struct {
	ID          string
	Amount      decimal.Decimal
	Date        time.Time // zero value means the date is missing
	Description string
	Source      Source
	Reconciled  bool
	Metadata    map[string]string
}

// Meta returns the metadata value for key, or "" when absent.
func (r *LedgerRecord) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// CustomerName returns the raw customer name from metadata.
func (r *LedgerRecord) CustomerName() string { return r.Meta(MetaCustomerName) }

// CustomerEmail returns the customer email from metadata, lower-cased.
func (r *LedgerRecord) CustomerEmail() string {
	return strings.ToLower(strings.TrimSpace(r.Meta(MetaCustomerEmail)))
}

// EmailDomain returns the part after "@" of the customer email, or "".
func (r *LedgerRecord) EmailDomain() string {
	email := r.CustomerEmail()
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return ""
}

// InvoiceNumber returns the invoice number from metadata.
func (r *LedgerRecord) InvoiceNumber() string { return r.Meta(MetaInvoiceNumber) }

// AccountCode returns the financial account code from metadata.
func (r *LedgerRecord) AccountCode() string { return r.Meta(MetaAccountCode) }

// HasAccountCode reports whether the record already carries an accounting
// classification. Such records are skipped by every phase of a run.
func (r *LedgerRecord) HasAccountCode() bool { return r.AccountCode() != "" }

// GatewayTag returns the tagged payment source from metadata, lower-cased.
func (r *LedgerRecord) GatewayTag() string {
	return strings.ToLower(strings.TrimSpace(r.Meta(MetaGateway)))
}

// TransactionIDs returns the gateway transaction-id references carried by a
// bank row, split on commas. Empty slice when none.
func (r *LedgerRecord) TransactionIDs() []string {
	raw := r.Meta(MetaTransactionIDs)
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// FieldPatch is the set of metadata fields inferred for one record during a
// run. Patches are shallow-merged on top of the record's existing metadata
// at write time.
type FieldPatch struct {
	RecordID string
	Source   Source
	Fields   map[string]string
}
