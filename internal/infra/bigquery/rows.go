package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-recon/internal/domain"
)

// ledgerRow is the BigQuery shape of one ledger record. The metadata JSON
// column is selected as TO_JSON_STRING(metadata) so the open string-keyed
// map round-trips without schema coupling.
type ledgerRow struct {
	RecordID     string              `bigquery:"record_id"`     // REQUIRED
	Source       string              `bigquery:"source"`        // REQUIRED
	Amount       *big.Rat            `bigquery:"amount"`        // REQUIRED NUMERIC
	RecordDate   bigquery.NullDate   `bigquery:"record_date"`   // NULLABLE
	Description  bigquery.NullString `bigquery:"description"`   // NULLABLE
	Reconciled   bool                `bigquery:"reconciled"`    // REQUIRED
	MetadataJSON bigquery.NullString `bigquery:"metadata_json"` // TO_JSON_STRING(metadata)
}

// toRecord maps a row into the domain record.
func (r *ledgerRow) toRecord() (*domain.LedgerRecord, error) {
	rec := &domain.LedgerRecord{
		ID:         r.RecordID,
		Source:     domain.Source(r.Source),
		Reconciled: r.Reconciled,
		Metadata:   map[string]string{},
	}

	if r.Amount != nil {
		amt, err := decimal.NewFromString(r.Amount.FloatString(9))
		if err != nil {
			return nil, fmt.Errorf("toRecord: amount of %s: %w", r.RecordID, err)
		}
		rec.Amount = amt
	}
	if r.RecordDate.Valid {
		rec.Date = r.RecordDate.Date.In(time.UTC)
	}
	if r.Description.Valid {
		rec.Description = r.Description.StringVal
	}
	if r.MetadataJSON.Valid && r.MetadataJSON.StringVal != "" {
		meta, err := decodeMetadata(r.MetadataJSON.StringVal)
		if err != nil {
			return nil, fmt.Errorf("toRecord: metadata of %s: %w", r.RecordID, err)
		}
		rec.Metadata = meta
	}

	return rec, nil
}

// decodeMetadata parses the JSON metadata object into a flat string map.
// Non-string values are stringified; the engine only ever reads strings.
func decodeMetadata(raw string) (map[string]string, error) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(generic))
	for k, v := range generic {
		switch val := v.(type) {
		case string:
			meta[k] = val
		case nil:
			// dropped
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			meta[k] = string(encoded)
		}
	}
	return meta, nil
}

// encodeMetadata serializes a string map back into a JSON object.
func encodeMetadata(meta map[string]string) (string, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// mergeMetadata shallow-merges patch fields on top of the existing map.
// Neither input is mutated.
func mergeMetadata(existing, patch map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(patch))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
