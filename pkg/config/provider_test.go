package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catapult/ardcube/internal/masking"
	"github.com/catapult/ardcube/internal/quality"
	"github.com/catapult/ardcube/pkg/raster"
)

const sampleYAML = `
catalog:
  backend: sqlite
  path: /var/lib/ardcube/catalog.db
quality:
  - name: test_family
    platform: LANDSAT
    variable: pq
    codes: [1]
    prefixes: [test_]
load:
  products: [ga_ls8c_ard_3, ga_ls7e_ard_3]
  min-gooddata: 0.9
  mask-contiguity: "false"
  mask-dtype: float64
  ls7-slc-off: false
  product-metadata: true
  query:
    x: [149.0, 149.2]
    y: [-35.4, -35.2]
    time: ["2020-01-01", "2020-12-31"]
    group-by: solar_day
    measurements: [nbart_red, fmask]
    dask-chunks:
      x: 1024
`

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestYAMLProvider(t *testing.T) {
	p := NewYAMLProvider(writeYAML(t, sampleYAML))
	defer p.Close()

	cfg, err := p.LoadConfig()
	require.NoError(t, err)
	assert.True(t, p.IsReadOnly())

	assert.Equal(t, CatalogSQLite, cfg.Catalog.Backend)
	assert.Equal(t, "/var/lib/ardcube/catalog.db", cfg.Catalog.Path)
	require.Len(t, cfg.Quality, 1)
	assert.Equal(t, []int{1}, cfg.Quality[0].Codes)

	opts, err := cfg.LoadOptions()
	require.NoError(t, err)
	assert.Equal(t, []string{"ga_ls8c_ard_3", "ga_ls7e_ard_3"}, opts.Products)
	assert.Equal(t, 0.9, opts.MinGoodData)
	assert.Empty(t, opts.MaskContiguity, "false disables the contiguity mask")
	assert.Equal(t, raster.Float64, opts.MaskDType)
	assert.True(t, opts.DropLS7SLCOff)
	assert.True(t, opts.ProductMetadata)
	assert.True(t, opts.MaskPixelQuality, "unset masks keep their defaults")
	assert.True(t, opts.MaskInvalidData)

	q := opts.Query
	require.NotNil(t, q.X)
	assert.Equal(t, 149.2, q.X.Max)
	require.NotNil(t, q.Time)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), q.Time.Start)
	assert.Equal(t, time.Date(2020, 12, 31, 23, 59, 59, 999999999, time.UTC), q.Time.End)
	assert.Equal(t, "solar_day", q.GroupBy)
	assert.True(t, q.Deferred())
}

func TestYAMLProviderDefaults(t *testing.T) {
	p := NewYAMLProvider(writeYAML(t, "load:\n  products: [ga_ls8c_ard_3]\n"))

	catalog, err := p.GetCatalogConfig()
	require.NoError(t, err)
	assert.Equal(t, CatalogSQLite, catalog.Backend)

	cfg, err := p.LoadConfig()
	require.NoError(t, err)
	opts, err := cfg.LoadOptions()
	require.NoError(t, err)
	assert.Equal(t, masking.DefaultContiguity, opts.MaskContiguity)
	assert.Equal(t, raster.Float32, opts.MaskDType)
	assert.False(t, opts.DropLS7SLCOff)
	assert.Nil(t, opts.Query.Time)
	assert.False(t, opts.Query.Deferred())
}

func TestYAMLProviderMissingFile(t *testing.T) {
	p := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := p.GetLoadConfig()
	assert.Error(t, err)
}

func TestLoadOptionsErrors(t *testing.T) {
	tests := []struct {
		name string
		load LoadData
	}{
		{"bad dtype", LoadData{MaskDType: "complex64"}},
		{"short x", LoadData{Query: QueryData{X: []float64{1}}}},
		{"three resolutions", LoadData{Query: QueryData{Resolution: []float64{1, 2, 3}}}},
		{"bad time", LoadData{Query: QueryData{Time: []string{"yesterday"}}}},
		{"too many times", LoadData{Query: QueryData{Time: []string{"2020-01-01", "2020-01-02", "2020-01-03"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ConfigData{Load: tt.load}
			_, err := cfg.LoadOptions()
			assert.Error(t, err)
		})
	}
}

func TestParseTime(t *testing.T) {
	ts, err := parseTime("2021-03-04T05:06:07Z", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), ts, "timestamps are not extended")

	ts, err = parseTime("", false)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestQualityTable(t *testing.T) {
	cfg := &ConfigData{Quality: []FamilyData{
		{Name: "dea_landsat_fmask", Platform: "LANDSAT", Variable: "fmask", Codes: []int{1}, Prefixes: []string{"ga_ls"}},
		{Name: "test_family", Platform: "LANDSAT", Variable: "pq", Codes: []int{7}, Prefixes: []string{"test_"}},
	}}
	table, err := cfg.QualityTable()
	require.NoError(t, err)

	f, err := table.Resolve("ga_ls8c_ard_3")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, f.Codes, "configured family replaces the built-in one")

	f, err = table.Resolve("test_product")
	require.NoError(t, err)
	assert.Equal(t, quality.Platform("LANDSAT"), f.Platform)

	cfg.Quality = append(cfg.Quality, FamilyData{Name: "broken"})
	_, err = cfg.QualityTable()
	assert.Error(t, err)
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	defer p.Close()
	assert.False(t, p.IsReadOnly())

	empty, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, CatalogSQLite, empty.Catalog.Backend)
	assert.Empty(t, empty.Load.Products)

	want, err := NewYAMLProvider(writeYAML(t, sampleYAML)).LoadConfig()
	require.NoError(t, err)
	require.NoError(t, p.SaveConfig(want))

	got, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// saving again replaces rather than appends
	want.Load.Products = want.Load.Products[:1]
	require.NoError(t, p.SaveConfig(want))
	load, err := p.GetLoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"ga_ls8c_ard_3"}, load.Products)
}
