package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catapult/ardcube/internal/catalog"
	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/pkg/raster"
)

type fakeCatalog struct {
	stack *raster.Stack
	err   error
	seen  []query.Query
}

func (f *fakeCatalog) Load(_ context.Context, _ string, q query.Query) (*raster.Stack, error) {
	f.seen = append(f.seen, q)
	return f.stack, f.err
}

func (f *fakeCatalog) Close() error { return nil }

func deferredStack(t *testing.T) *raster.Stack {
	t.Helper()
	shape := raster.Shape{T: 2, Y: 1, X: 1}
	data := raster.DeferredArray(shape, func() ([]float64, error) { return []float64{1, 2}, nil })
	s, err := raster.NewStack(raster.Deferred,
		[]time.Time{time.Unix(0, 0), time.Unix(1, 0)}, []float64{0}, []float64{0}, nil,
		raster.NewVariable("red", raster.Int16, data, nil))
	require.NoError(t, err)
	return s
}

func TestLoadAlwaysRequestsDeferred(t *testing.T) {
	tests := []struct {
		name string
		q    query.Query
		mode raster.Mode
	}{
		{name: "eager", q: query.Query{}, mode: raster.Eager},
		{name: "lazy", q: query.Query{Lazy: true}, mode: raster.Deferred},
		{name: "chunked", q: query.Query{Chunks: map[string]int{"x": 256}}, mode: raster.Deferred},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCatalog{stack: deferredStack(t)}
			s, mode, err := New(c, nil).Load(context.Background(), "ga_ls8c_ard_3", tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, mode)
			assert.Equal(t, 2, s.Len())
			require.Len(t, c.seen, 1)
			assert.True(t, c.seen[0].Lazy)
		})
	}
}

func TestLoadMissingBand(t *testing.T) {
	c := &fakeCatalog{err: fmt.Errorf("query: %w", &catalog.MissingMeasurementError{Product: "ls8_usgs_sr_scene", Measurement: "X"})}
	_, _, err := New(c, nil).Load(context.Background(), "ls8_usgs_sr_scene", query.Query{})

	var mb *MissingBandError
	require.ErrorAs(t, err, &mb)
	assert.Equal(t, "X", mb.Band)
	assert.Equal(t, []string{"ls8_usgs_sr_scene"}, mb.Products)
	assert.ErrorIs(t, err, catalog.ErrMissingMeasurement)
	assert.Equal(t, `band "X" does not exist in this product; verify all requested measurements exist in [ls8_usgs_sr_scene]`, err.Error())
}

func TestLoadWrapsOtherErrors(t *testing.T) {
	boom := errors.New("connection refused")
	_, _, err := New(&fakeCatalog{err: boom}, nil).Load(context.Background(), "s2a_ard_granule", query.Query{})
	assert.ErrorIs(t, err, boom)
	var mb *MissingBandError
	assert.False(t, errors.As(err, &mb))
}
