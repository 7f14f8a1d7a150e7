package quality

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catapult/ardcube/pkg/raster"
)

func TestResolveDefaultFamilies(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		product string
		family  string
	}{
		{"s2_esa_sr_granule", "sentinel2"},
		{"s2a_ard_granule", "dea_sentinel2_fmask"},
		{"s2b_nrt_granule", "dea_sentinel2_fmask"},
		{"ls8_usgs_sr_scene", "landsat8"},
		{"ls7_usgs_sr_scene", "landsat"},
		{"ls5_usgs_sr_scene", "landsat"},
		{"ga_ls8c_ard_3", "dea_landsat_fmask"},
	}
	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			f, err := table.Resolve(tt.product)
			require.NoError(t, err)
			assert.Equal(t, tt.family, f.Name)
		})
	}
}

func TestResolveUnknownProductIsAnError(t *testing.T) {
	_, err := DefaultTable().Resolve("modis_terra")
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestTableOverridesByName(t *testing.T) {
	custom := SensorFamily{Name: "landsat8", Platform: PlatformLandsat, Variable: "qa", Codes: []int{1}, Prefixes: []string{"ls8"}}
	table, err := NewTable(append(DefaultFamilies(), custom)...)
	require.NoError(t, err)

	f, err := table.Resolve("ls8_usgs_sr_scene")
	require.NoError(t, err)
	assert.Equal(t, "qa", f.Variable)
	assert.Len(t, table.Families(), len(DefaultFamilies()))
}

func TestTableAddValidates(t *testing.T) {
	_, err := NewTable(SensorFamily{Name: "x", Platform: PlatformLandsat, Variable: "qa", Codes: []int{1}})
	assert.Error(t, err)
}

func TestWithCodes(t *testing.T) {
	f := DefaultFamilies()[0]
	g := f.WithCodes([]int{9})
	assert.True(t, g.Accepts(9))
	assert.False(t, g.Accepts(4))
	assert.True(t, f.Accepts(4))
	assert.Equal(t, f, f.WithCodes(nil))
}

func qualityStack(t *testing.T, mode raster.Mode, name string, codes []float64) *raster.Stack {
	t.Helper()
	shape := raster.Shape{T: 1, Y: 1, X: len(codes)}
	arr, err := raster.NewArray(shape, codes)
	require.NoError(t, err)
	if mode == raster.Deferred {
		arr = raster.DeferredArray(shape, func() ([]float64, error) { return codes, nil })
	}
	x := make([]float64, len(codes))
	s, err := raster.NewStack(mode, []time.Time{time.Unix(0, 0)}, []float64{0}, x, nil,
		raster.NewVariable(name, raster.Uint8, arr, nil))
	require.NoError(t, err)
	return s
}

func TestClassifySentinel2(t *testing.T) {
	f, err := DefaultTable().Resolve("s2_esa_sr_granule")
	require.NoError(t, err)

	s := qualityStack(t, raster.Eager, "scene_classification", []float64{3, 4, 5, 6, 7, 8, math.NaN(), 4.5})
	m, err := Classify(s, f)
	require.NoError(t, err)
	got, err := m.Values()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, true, true, false, false, false}, got)
}

func TestClassifyKeepsDeferredMode(t *testing.T) {
	f, err := DefaultTable().Resolve("ls7_usgs_sr_scene")
	require.NoError(t, err)

	s := qualityStack(t, raster.Deferred, "pixel_qa", []float64{66, 72})
	m, err := Classify(s, f)
	require.NoError(t, err)
	assert.True(t, m.Deferred())

	computed, err := m.Compute()
	require.NoError(t, err)
	got, _ := computed.Values()
	assert.Equal(t, []bool{true, false}, got)
}

func TestClassifyMissingBand(t *testing.T) {
	f, err := DefaultTable().Resolve("ls8_usgs_sr_scene")
	require.NoError(t, err)
	s := qualityStack(t, raster.Eager, "scene_classification", []float64{4})
	_, err = Classify(s, f)
	assert.ErrorIs(t, err, ErrMissingQualityBand)
}
