package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvProject(t *testing.T) {
	t.Setenv("LEDGERRECON_STORE_PROJECT", "test-project")

	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "test-project", c.Store.Project)
	require.Equal(t, "finance", c.Store.Dataset)
	require.Equal(t, "ledger_records", c.Store.Table)
	require.Equal(t, 500, c.Run.PageSize)
	require.Equal(t, 200, c.Run.MaxPages)
	require.Equal(t, 25, c.Run.BatchSize)
	require.Equal(t, 365, c.Match.MaxDays)
	require.InDelta(t, 0.05, c.Match.AmountTolerancePct, 1e-9)
	require.Empty(t, c.Report.Bucket)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[store]
project = "file-project"
dataset = "recon"

[run]
page_size = 100
workers = 2

[match]
max_days = 90
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "file-project", c.Store.Project)
	require.Equal(t, "recon", c.Store.Dataset)
	require.Equal(t, 100, c.Run.PageSize)
	require.Equal(t, 2, c.Run.Workers)
	require.Equal(t, 90, c.Match.MaxDays)
	// untouched keys keep defaults
	require.Equal(t, 25, c.Run.BatchSize)
}

func TestLoadRejectsMissingProject(t *testing.T) {
	t.Setenv("LEDGERRECON_STORE_PROJECT", "")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "store.project")
}

func TestValidateBounds(t *testing.T) {
	c := Config{
		Store: StoreConfig{Project: "p"},
		Run:   RunConfig{PageSize: 1, MaxPages: 1, BatchSize: 1, Workers: 1},
		Match: MatchConfig{AmountTolerancePct: 1.5},
	}
	require.Error(t, c.Validate())

	c.Match.AmountTolerancePct = 0.05
	require.NoError(t, c.Validate())
}
