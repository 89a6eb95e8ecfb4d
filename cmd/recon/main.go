package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dvloznov/ledger-recon/internal/config"
	"github.com/dvloznov/ledger-recon/internal/engine"
	"github.com/dvloznov/ledger-recon/internal/gcsarchive"
	bqstore "github.com/dvloznov/ledger-recon/internal/infra/bigquery"
	"github.com/dvloznov/ledger-recon/internal/logger"
)

var (
	configPath = flag.String("config", "", "Path to TOML config file (defaults to ~/.config/ledger-recon/config.toml)")
	dryRun     = flag.Bool("dry-run", false, "Compute matches and print the summary without writing anything back")
)

func main() {
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	store, err := bqstore.NewLedgerStore(ctx, cfg, log, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to ledger store")
	}
	defer store.Close()

	e := engine.New(store, cfg, log, *dryRun)
	summary, err := e.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("reconciliation run failed")
	}

	rendered := summary.Format()
	fmt.Print(rendered)

	if cfg.Report.Bucket != "" && !*dryRun {
		archiver := gcsarchive.NewGCSArchiver(cfg.Report.Bucket, cfg.Report.Prefix)
		uri, err := archiver.ArchiveSummary(ctx, summary.RunID, []byte(rendered))
		if err != nil {
			log.Warn().Err(err).Msg("archiving run summary")
		} else {
			log.Info().Str("uri", uri).Msg("run summary archived")
		}
	}

	os.Exit(0)
}
