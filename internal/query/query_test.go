package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAOI(t *testing.T) {
	tests := []struct {
		name    string
		wkt     string
		lat     Range
		lon     Range
		wantErr bool
	}{
		{
			name: "polygon",
			wkt:  "POLYGON((178.0 -17.9, 178.6 -17.9, 178.6 -17.4, 178.0 -17.4, 178.0 -17.9))",
			lat:  Range{Min: -17.9, Max: -17.4},
			lon:  Range{Min: 178.0, Max: 178.6},
		},
		{
			name: "multipolygon",
			wkt:  "MULTIPOLYGON (((1 2, 3 2, 3 4, 1 2)), ((-1 -2, 0 0, -1 -2)))",
			lat:  Range{Min: -2, Max: 4},
			lon:  Range{Min: -1, Max: 3},
		},
		{name: "point", wkt: "POINT(1 2)", wantErr: true},
		{name: "unbalanced", wkt: "POLYGON((1 2, 3 4)", wantErr: true},
		{name: "bad number", wkt: "POLYGON((a 2, 3 4))", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, err := ParseAOI(tt.wkt)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lat, lat)
			assert.Equal(t, tt.lon, lon)
		})
	}
}

func TestBaseQuery(t *testing.T) {
	shift := ProjectorFunc(func(from, to string, x, y float64) (float64, float64, error) {
		assert.Equal(t, "EPSG:4326", from)
		assert.Equal(t, DefaultCubeCRS, to)
		return x * 10, y * 10, nil
	})
	q, err := BaseQuery("POLYGON((1 2, 3 2, 3 4, 1 4, 1 2))", 30, "EPSG:3460", "EPSG:4326", map[string]int{"x": 512}, "", shift)
	require.NoError(t, err)

	assert.Equal(t, &Range{Min: 10, Max: 30}, q.X)
	assert.Equal(t, &Range{Min: 20, Max: 40}, q.Y)
	assert.Equal(t, [2]float64{-30, 30}, q.Resolution)
	assert.Equal(t, DefaultCubeCRS, q.CRS)
	assert.True(t, q.Deferred())
}

func TestBaseQueryIdentityRejectsReprojection(t *testing.T) {
	_, err := BaseQuery("POLYGON((1 2, 3 4, 1 2))", 10, "", "EPSG:4326", nil, "EPSG:3460", nil)
	assert.ErrorIs(t, err, ErrUnsupportedCRS)

	q, err := BaseQuery("POLYGON((1 2, 3 4, 1 2))", 10, "", "EPSG:3460", nil, "EPSG:3460", nil)
	require.NoError(t, err)
	assert.False(t, q.Deferred())
}

func TestProductForPlatform(t *testing.T) {
	pm, err := ProductForPlatform("LANDSAT_8", []string{"red", "nir"})
	require.NoError(t, err)
	assert.Equal(t, "ls8_usgs_sr_scene", pm.Product)
	assert.Equal(t, []string{"red", "nir", "pixel_qa"}, pm.Measurements)
	assert.Equal(t, "ls8_water_classification", pm.WaterProduct)

	pm, err = ProductForPlatform("SENTINEL_2", []string{"red"})
	require.NoError(t, err)
	assert.Equal(t, "s2_esa_sr_granule", pm.Product)
	assert.Equal(t, []string{"red", "coastal_aerosol", "scene_classification"}, pm.Measurements)

	_, err = ProductForPlatform("MODIS", nil)
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestCloneIsDeep(t *testing.T) {
	q := Query{
		X:            &Range{Min: 1, Max: 2},
		Time:         &TimeRange{Start: time.Unix(0, 0)},
		Measurements: []string{"red"},
		Chunks:       map[string]int{},
	}
	c := q.Clone()
	c.X.Min = 5
	c.Measurements[0] = "blue"
	c.Chunks["x"] = 1
	assert.Equal(t, 1.0, q.X.Min)
	assert.Equal(t, "red", q.Measurements[0])
	assert.Empty(t, q.Chunks)
	assert.True(t, c.Deferred())
}

func TestTimeRangeContains(t *testing.T) {
	r := TimeRange{Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, r.Contains(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)))
}
