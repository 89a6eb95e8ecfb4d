// Package engine drives one reconciliation run: load ledger sources,
// build the invoice index, match gateway records through the cascade,
// assign fallbacks, link bank rows, and write patches back.
package engine

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-recon/internal/assign"
	"github.com/dvloznov/ledger-recon/internal/banklink"
	"github.com/dvloznov/ledger-recon/internal/config"
	"github.com/dvloznov/ledger-recon/internal/domain"
	"github.com/dvloznov/ledger-recon/internal/index"
	"github.com/dvloznov/ledger-recon/internal/logger"
	"github.com/dvloznov/ledger-recon/internal/match"
	"github.com/dvloznov/ledger-recon/internal/report"
)

// Engine runs reconciliation passes against a ledger repository.
type Engine struct {
	repo   domain.LedgerRepository
	cfg    config.Config
	log    zerolog.Logger
	dryRun bool
}

// New builds an engine. When dryRun is set the engine computes every match
// and patch but never calls ApplyPatches.
func New(repo domain.LedgerRepository, cfg config.Config, log zerolog.Logger, dryRun bool) *Engine {
	return &Engine{repo: repo, cfg: cfg, log: log, dryRun: dryRun}
}

// gatewayOutcome is one gateway record's matching result.
type gatewayOutcome struct {
	rec      *domain.LedgerRecord
	result   match.Result
	matched  bool
	fallback bool
}

// Run executes one full reconciliation pass and returns its summary.
func (e *Engine) Run(ctx context.Context) (*report.RunSummary, error) {
	runID := uuid.New().String()
	log := logger.WithRun(e.log, runID)
	log.Info().Bool("dry_run", e.dryRun).Msg("starting reconciliation run")

	loaded, err := e.loadSources(ctx, log)
	if err != nil {
		return nil, err
	}

	invoices := loaded[domain.SourceInvoices]
	ix := index.Build(invoices)
	log.Info().Int("invoices", len(invoices)).Msg("invoice index built")

	matchCfg := e.matchConfig()
	cascade := match.NewCascade(matchCfg)
	assigner := assign.New(ix)

	summary := &report.RunSummary{RunID: runID, DryRun: e.dryRun}
	var patches []domain.FieldPatch
	resolved := make(map[string]string)
	gatewayRecords := make(map[domain.Source][]*domain.LedgerRecord)

	for _, gw := range domain.GatewaySources {
		records := loaded[gw]
		gatewayRecords[gw] = records

		src := report.SourceSummary{Source: gw, Total: len(records)}
		pending := make([]*domain.LedgerRecord, 0, len(records))
		for _, rec := range records {
			if rec.Reconciled || rec.HasAccountCode() {
				src.AlreadyClassified++
				continue
			}
			pending = append(pending, rec)
		}

		outcomes, err := e.matchPending(ctx, pending, ix, cascade, assigner)
		if err != nil {
			return nil, err
		}
		for _, out := range outcomes {
			switch {
			case out.matched:
				src.Matched++
				src.CountStrategy(out.result.Strategy)
			case out.fallback:
				src.FallbackAssigned++
				src.CountStrategy(out.result.Strategy)
			default:
				src.Unmatched++
				continue
			}
			if out.result.AccountCode != "" {
				resolved[out.rec.ID] = out.result.AccountCode
			}
			patches = append(patches, patchFor(out.rec, out.result, runID))
		}

		summary.Sources = append(summary.Sources, src)
	}

	linker := banklink.NewLinker(ix, matchCfg, gatewayRecords, resolved)
	for _, name := range e.cfg.Run.BankSources {
		bank := domain.Source(name)
		records := loaded[bank]

		src := report.SourceSummary{Source: bank, Total: len(records)}
		for _, rec := range records {
			if rec.Reconciled || rec.HasAccountCode() {
				src.AlreadyClassified++
				continue
			}
			out := linker.Link(rec)
			switch out.State {
			case banklink.StateChainResolved, banklink.StateSourceMatched, banklink.StateDescMatched:
				src.Matched++
				src.CountStrategy(out.Match.Strategy)
			case banklink.StateFallbackAssigned:
				src.FallbackAssigned++
				src.CountStrategy(out.Match.Strategy)
			case banklink.StateExcluded:
				src.Excluded++
				continue
			default:
				src.Unmatched++
				continue
			}
			patches = append(patches, patchFor(rec, out.Match, runID))
		}

		summary.Sources = append(summary.Sources, src)
	}

	if err := e.writeBack(ctx, log, summary, patches); err != nil {
		return nil, err
	}

	total := summary.TotalWrites()
	log.Info().
		Int("attempted", total.Attempted).
		Int("written", total.Written).
		Int("failed", total.Failed).
		Msg("reconciliation run complete")

	return summary, nil
}

// loadSources reads invoices, every gateway feed, and the configured bank
// feeds concurrently. A failed source loads as empty rather than aborting
// the run.
func (e *Engine) loadSources(ctx context.Context, log zerolog.Logger) (map[domain.Source][]*domain.LedgerRecord, error) {
	sources := []domain.Source{domain.SourceInvoices}
	sources = append(sources, domain.GatewaySources...)
	for _, name := range e.cfg.Run.BankSources {
		sources = append(sources, domain.Source(name))
	}

	loaded := make(map[domain.Source][]*domain.LedgerRecord, len(sources))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		go func(source domain.Source) {
			defer wg.Done()
			records, err := e.repo.ListBySource(ctx, source)
			if err != nil {
				log.Error().Err(err).Str("source", string(source)).Msg("source load failed")
				return
			}
			mu.Lock()
			loaded[source] = records
			mu.Unlock()
		}(source)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// matchPending runs the cascade and fallback assigner over pending records
// with a fixed worker pool. The index is never written during matching, so
// workers share it without locking.
func (e *Engine) matchPending(ctx context.Context, pending []*domain.LedgerRecord, ix *index.InvoiceIndex, cascade *match.Cascade, assigner *assign.Assigner) ([]gatewayOutcome, error) {
	jobs := make(chan *domain.LedgerRecord)
	results := make(chan gatewayOutcome)

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Run.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				out := matchOne(rec, ix, cascade, assigner)
				select {
				case results <- out:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rec := range pending {
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]gatewayOutcome, 0, len(pending))
	for out := range results {
		outcomes = append(outcomes, out)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func matchOne(rec *domain.LedgerRecord, ix *index.InvoiceIndex, cascade *match.Cascade, assigner *assign.Assigner) gatewayOutcome {
	q := match.Query{
		Name:   rec.CustomerName(),
		Email:  rec.CustomerEmail(),
		Amount: rec.Amount,
		Date:   rec.Date,
	}
	if res, ok := cascade.Match(q, ix); ok {
		return gatewayOutcome{rec: rec, result: res, matched: true}
	}
	if res, ok := assigner.Assign(q); ok {
		return gatewayOutcome{rec: rec, result: res, fallback: true}
	}
	return gatewayOutcome{rec: rec}
}

// writeBack applies patches grouped per source, in summary order. Dry runs
// count every patch as written without touching the repository.
func (e *Engine) writeBack(ctx context.Context, log zerolog.Logger, summary *report.RunSummary, patches []domain.FieldPatch) error {
	bySource := make(map[domain.Source][]domain.FieldPatch)
	for _, p := range patches {
		bySource[p.Source] = append(bySource[p.Source], p)
	}

	for i := range summary.Sources {
		src := &summary.Sources[i]
		group := bySource[src.Source]
		if len(group) == 0 {
			continue
		}

		if e.dryRun {
			src.Writes = domain.WriteStats{Attempted: len(group), Written: len(group)}
			continue
		}

		stats, err := e.repo.ApplyPatches(ctx, group)
		if err != nil {
			log.Error().Err(err).Str("source", string(src.Source)).Msg("write-back failed")
			stats.Attempted = len(group)
			stats.Failed = len(group) - stats.Written
		}
		src.Writes = stats
	}

	return ctx.Err()
}

// patchFor builds the metadata patch recording one resolution.
func patchFor(rec *domain.LedgerRecord, res match.Result, runID string) domain.FieldPatch {
	fields := map[string]string{
		domain.MetaMatchStrategy:   res.Strategy,
		domain.MetaMatchConfidence: strconv.FormatFloat(res.Confidence, 'f', 2, 64),
		domain.MetaReconRunID:      runID,
	}
	if res.AccountCode != "" {
		fields[domain.MetaAccountCode] = res.AccountCode
	}
	if res.MatchedRecordID != "" {
		fields[domain.MetaMatchedRecordID] = res.MatchedRecordID
	}
	return domain.FieldPatch{RecordID: rec.ID, Source: rec.Source, Fields: fields}
}

func (e *Engine) matchConfig() match.Config {
	return match.Config{
		MaxDays:            e.cfg.Match.MaxDays,
		AmountTolerancePct: decimal.NewFromFloat(e.cfg.Match.AmountTolerancePct),
		MinAmountTolerance: decimal.NewFromFloat(e.cfg.Match.MinAmountTolerance),
	}
}
