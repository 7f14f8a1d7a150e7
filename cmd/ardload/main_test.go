package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catapult/ardcube/pkg/config"
)

const testManifest = `
products:
  - name: ga_ls8c_ard_3
    measurements:
      - name: nbart_red
        dtype: int16
        nodata: -999
      - name: fmask
        dtype: uint8
datasets:
  - product: ga_ls8c_ard_3
    time: 2020-01-01T00:00:00Z
    grid: {crs: "EPSG:3577", x0: 0, y0: 0, res: 30, width: 2, height: 1}
    bands:
      nbart_red: [100, 200]
      fmask: [1, 2]
  - product: ga_ls8c_ard_3
    time: 2020-01-17T00:00:00Z
    grid: {crs: "EPSG:3577", x0: 0, y0: 0, res: 30, width: 2, height: 1}
    bands:
      nbart_red: [300, -999]
      fmask: [1, 1]
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(backend, path string) *config.ConfigData {
	off := "false"
	return &config.ConfigData{
		Catalog: config.CatalogData{Backend: backend, Path: path},
		Load: config.LoadData{
			Products:       []string{"ga_ls8c_ard_3"},
			MinGoodData:    0.6,
			MaskContiguity: &off,
		},
	}
}

func TestRunLoad(t *testing.T) {
	indexFiles = []string{writeFile(t, "manifest.yaml", testManifest)}
	median = []string{"nbart_red"}
	t.Cleanup(func() { indexFiles, median = nil, nil })

	var out bytes.Buffer
	require.NoError(t, runLoad(context.Background(), testConfig(config.CatalogMemory, ""), &out))

	assert.Regexp(t, `ga_ls8c_ard_3\s+2\s+1\s+none`, out.String())
	assert.Contains(t, out.String(), "result: 1 observations, 1 x 2 pixels, eager")
	assert.Contains(t, out.String(), "median: 1 observations, 1 x 2 pixels, eager")
}

func TestRunLoadFromSQLiteCatalog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	cfg := testConfig(config.CatalogSQLite, dbPath)

	s, err := openCatalog(cfg.Catalog)
	require.NoError(t, err)
	require.NoError(t, indexManifests(context.Background(), s, []string{writeFile(t, "manifest.yaml", testManifest)}))
	require.NoError(t, s.Close())

	var out bytes.Buffer
	require.NoError(t, runLoad(context.Background(), cfg, &out))
	assert.Regexp(t, `ga_ls8c_ard_3\s+2\s+1\s+none`, out.String())
}

func TestRunLoadNoData(t *testing.T) {
	indexFiles = []string{writeFile(t, "products.yaml", `
products:
  - name: ga_ls8c_ard_3
    measurements:
      - {name: nbart_red, dtype: int16}
      - {name: fmask, dtype: uint8}
`)}
	t.Cleanup(func() { indexFiles = nil })

	var out bytes.Buffer
	require.NoError(t, runLoad(context.Background(), testConfig(config.CatalogMemory, ""), &out))
	assert.Contains(t, out.String(), "no data returned for query")
}

func TestLoadConfigBackends(t *testing.T) {
	path := writeFile(t, "config.yaml", "catalog:\n  backend: memory\nload:\n  products: [ga_ls8c_ard_3]\n")
	cfg, err := loadConfig(path, "yaml")
	require.NoError(t, err)
	assert.Equal(t, config.CatalogMemory, cfg.Catalog.Backend)

	_, err = loadConfig(path, "toml")
	assert.Error(t, err)
}

func TestOpenCatalogErrors(t *testing.T) {
	for _, c := range []config.CatalogData{
		{Backend: config.CatalogSQLite},
		{Backend: config.CatalogPostgres},
		{Backend: "cassandra"},
	} {
		_, err := openCatalog(c)
		assert.Error(t, err, c.Backend)
	}
	assert.Error(t, migrateCatalog(config.CatalogData{Backend: config.CatalogMemory}))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ardload ")
}
