// Package bigquery implements the ledger repository on top of a shared
// BigQuery client. Reads are paginated with a hard page ceiling; writes
// merge field patches into the record's metadata JSON one record at a
// time, in fixed-size batches, tolerating per-record failures.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-recon/internal/config"
	"github.com/dvloznov/ledger-recon/internal/domain"
)

// LedgerStore is the BigQuery-backed domain.LedgerRepository.
type LedgerStore struct {
	client *bigquery.Client
	log    zerolog.Logger

	project string
	dataset string
	table   string

	pageSize  int
	maxPages  int
	batchSize int
	dryRun    bool
}

var _ domain.LedgerRepository = (*LedgerStore)(nil)

// NewLedgerStore opens a client against the configured project. DryRun
// stores compute write stats without executing any UPDATE.
func NewLedgerStore(ctx context.Context, cfg config.Config, log zerolog.Logger, dryRun bool) (*LedgerStore, error) {
	client, err := bigquery.NewClient(ctx, cfg.Store.Project)
	if err != nil {
		return nil, fmt.Errorf("NewLedgerStore: bigquery client: %w", err)
	}

	return &LedgerStore{
		client:    client,
		log:       log,
		project:   cfg.Store.Project,
		dataset:   cfg.Store.Dataset,
		table:     cfg.Store.Table,
		pageSize:  cfg.Run.PageSize,
		maxPages:  cfg.Run.MaxPages,
		batchSize: cfg.Run.BatchSize,
		dryRun:    dryRun,
	}, nil
}

// Close releases the underlying client.
func (s *LedgerStore) Close() error {
	return s.client.Close()
}

func (s *LedgerStore) qualifiedTable() string {
	return "`" + s.project + "." + s.dataset + "." + s.table + "`"
}

// ListBySource reads every record tagged with source, page by page. A page
// read failure ends the source's pagination early: whatever loaded so far
// is returned and the failure is logged, so one flaky source does not sink
// the whole run.
func (s *LedgerStore) ListBySource(ctx context.Context, source domain.Source) ([]*domain.LedgerRecord, error) {
	var records []*domain.LedgerRecord

	for page := 0; page < s.maxPages; page++ {
		rows, err := s.readPage(ctx, source, page)
		if err != nil {
			s.log.Warn().Err(err).
				Str("source", string(source)).
				Int("page", page).
				Msg("page read failed, stopping pagination for source")
			break
		}
		for _, row := range rows {
			rec, err := row.toRecord()
			if err != nil {
				s.log.Warn().Err(err).
					Str("record_id", row.RecordID).
					Msg("skipping malformed row")
				continue
			}
			records = append(records, rec)
		}
		if len(rows) < s.pageSize {
			break
		}
	}

	return records, nil
}

func (s *LedgerStore) readPage(ctx context.Context, source domain.Source, page int) ([]*ledgerRow, error) {
	q := s.client.Query(`
		SELECT
			record_id,
			source,
			amount,
			record_date,
			description,
			reconciled,
			TO_JSON_STRING(metadata) AS metadata_json
		FROM ` + s.qualifiedTable() + `
		WHERE source = @source
		ORDER BY record_id
		LIMIT @page_size OFFSET @page_offset
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "source", Value: string(source)},
		{Name: "page_size", Value: int64(s.pageSize)},
		{Name: "page_offset", Value: int64(page * s.pageSize)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("readPage: query read: %w", err)
	}

	var rows []*ledgerRow
	for {
		var r ledgerRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("readPage: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// ApplyPatches merges each patch's fields into its record's metadata,
// reading and rewriting one record at a time in fixed-size batches. A
// failed record is counted and logged, never fatal.
func (s *LedgerStore) ApplyPatches(ctx context.Context, patches []domain.FieldPatch) (domain.WriteStats, error) {
	var stats domain.WriteStats

	for _, batch := range chunkPatches(patches, s.batchSize) {
		for _, patch := range batch {
			stats.Attempted++
			if err := s.applyOne(ctx, patch); err != nil {
				stats.Failed++
				s.log.Warn().Err(err).
					Str("record_id", patch.RecordID).
					Msg("patch write failed")
				continue
			}
			stats.Written++
		}
	}

	return stats, nil
}

func (s *LedgerStore) applyOne(ctx context.Context, patch domain.FieldPatch) error {
	existing, err := s.readMetadata(ctx, patch)
	if err != nil {
		return fmt.Errorf("applyOne: read metadata: %w", err)
	}

	merged := mergeMetadata(existing, patch.Fields)
	encoded, err := encodeMetadata(merged)
	if err != nil {
		return fmt.Errorf("applyOne: encode metadata: %w", err)
	}

	if s.dryRun {
		return nil
	}

	q := s.client.Query(`
		UPDATE ` + s.qualifiedTable() + `
		SET metadata = PARSE_JSON(@metadata)
		WHERE record_id = @record_id
		  AND source = @source
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "metadata", Value: encoded},
		{Name: "record_id", Value: patch.RecordID},
		{Name: "source", Value: string(patch.Source)},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("applyOne: run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("applyOne: wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("applyOne: job error: %w", err)
	}

	return nil
}

func (s *LedgerStore) readMetadata(ctx context.Context, patch domain.FieldPatch) (map[string]string, error) {
	q := s.client.Query(`
		SELECT TO_JSON_STRING(metadata) AS metadata_json
		FROM ` + s.qualifiedTable() + `
		WHERE record_id = @record_id
		  AND source = @source
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "record_id", Value: patch.RecordID},
		{Name: "source", Value: string(patch.Source)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("readMetadata: query read: %w", err)
	}

	var row struct {
		MetadataJSON bigquery.NullString `bigquery:"metadata_json"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("readMetadata: record %s not found", patch.RecordID)
	}
	if err != nil {
		return nil, fmt.Errorf("readMetadata: iter next: %w", err)
	}

	if !row.MetadataJSON.Valid || row.MetadataJSON.StringVal == "" {
		return map[string]string{}, nil
	}
	return decodeMetadata(row.MetadataJSON.StringVal)
}

// chunkPatches splits patches into batches of at most size.
func chunkPatches(patches []domain.FieldPatch, size int) [][]domain.FieldPatch {
	if size <= 0 {
		size = len(patches)
	}
	var chunks [][]domain.FieldPatch
	for start := 0; start < len(patches); start += size {
		end := start + size
		if end > len(patches) {
			end = len(patches)
		}
		chunks = append(chunks, patches[start:end])
	}
	return chunks
}
