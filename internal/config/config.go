package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the full run configuration.
type Config struct {
	Store  StoreConfig
	Run    RunConfig
	Match  MatchConfig
	Report ReportConfig
}

// StoreConfig locates the shared ledger store.
type StoreConfig struct {
	Project string
	Dataset string
	Table   string
}

// RunConfig holds batch-run tunables.
type RunConfig struct {
	// PageSize is the fixed page size for ledger reads.
	PageSize int
	// MaxPages is the hard page-count ceiling per source, a safety bound
	// against runaway pagination on a misbehaving backend.
	MaxPages int
	// BatchSize is the fixed write-back batch size.
	BatchSize int
	// Workers is the matching worker count.
	Workers int
	// BankSources lists the bank-statement feed tags to link.
	BankSources []string
}

// MatchConfig holds the matching tunables.
type MatchConfig struct {
	MaxDays            int
	AmountTolerancePct float64
	MinAmountTolerance float64
}

// ReportConfig controls run-summary archival. An empty bucket disables it.
type ReportConfig struct {
	Bucket string
	Prefix string
}

// Load reads configuration from file and env. Env var overrides use prefix
// LEDGERRECON_, e.g. LEDGERRECON_STORE_PROJECT.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("store.project", "")
	v.SetDefault("store.dataset", "finance")
	v.SetDefault("store.table", "ledger_records")
	v.SetDefault("run.page_size", 500)
	v.SetDefault("run.max_pages", 200)
	v.SetDefault("run.batch_size", 25)
	v.SetDefault("run.workers", 8)
	v.SetDefault("run.bank_sources", []string{"bank"})
	v.SetDefault("match.max_days", 365)
	v.SetDefault("match.amount_tolerance_pct", 0.05)
	v.SetDefault("match.min_amount_tolerance", 2.0)
	v.SetDefault("report.bucket", "")
	v.SetDefault("report.prefix", "recon-runs")

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledger-recon"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERRECON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// config file is optional; env and defaults are enough
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Store.Project == "" {
		return fmt.Errorf("config: store.project is required")
	}
	if c.Run.PageSize <= 0 {
		return fmt.Errorf("config: run.page_size must be positive")
	}
	if c.Run.MaxPages <= 0 {
		return fmt.Errorf("config: run.max_pages must be positive")
	}
	if c.Run.BatchSize <= 0 {
		return fmt.Errorf("config: run.batch_size must be positive")
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("config: run.workers must be positive")
	}
	if c.Match.AmountTolerancePct < 0 || c.Match.AmountTolerancePct > 1 {
		return fmt.Errorf("config: match.amount_tolerance_pct must be in [0, 1]")
	}
	return nil
}
