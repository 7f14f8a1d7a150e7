package raster

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grid(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func mustArray(t *testing.T, shape Shape, data []float64) *Array[float64] {
	t.Helper()
	a, err := NewArray(shape, data)
	require.NoError(t, err)
	return a
}

func TestDeferredArrayDoesNotEvaluateUntilCompute(t *testing.T) {
	calls := 0
	shape := Shape{T: 1, Y: 1, X: 2}
	a := DeferredArray(shape, func() ([]float64, error) {
		calls++
		return []float64{1, 2}, nil
	})

	doubled := Map(a, func(v float64) float64 { return v * 2 })
	assert.True(t, doubled.Deferred())
	assert.Equal(t, 0, calls)

	_, err := doubled.Values()
	assert.ErrorIs(t, err, ErrDeferred)

	got, err := doubled.Compute()
	require.NoError(t, err)
	vals, err := got.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, vals)
	assert.Equal(t, 1, calls)
}

func TestDeferredArrayEvaluatesOnce(t *testing.T) {
	var calls atomic.Int32
	base := DeferredArray(Shape{T: 1, Y: 1, X: 2}, func() ([]float64, error) {
		calls.Add(1)
		return []float64{1, 2}, nil
	})
	mask := Map(base, func(v float64) bool { return v > 1 })
	scaled := Map(base, func(v float64) float64 { return v * 10 })
	masked, err := Zip(scaled, mask, func(v float64, ok bool) float64 {
		if ok {
			return v
		}
		return math.NaN()
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := masked.Compute()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err = mask.Compute()
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestDeferredArrayPropagatesErrors(t *testing.T) {
	boom := errors.New("read failed")
	a := DeferredArray(Shape{T: 1, Y: 1, X: 1}, func() ([]float64, error) { return nil, boom })
	_, err := Map(a, func(v float64) float64 { return v }).Compute()
	assert.ErrorIs(t, err, boom)
}

func TestZipShapeMismatch(t *testing.T) {
	a := Full(Shape{T: 1, Y: 2, X: 2}, 1.0)
	b := Full(Shape{T: 1, Y: 1, X: 2}, true)
	_, err := Zip(a, b, func(x float64, ok bool) float64 { return x })
	assert.ErrorIs(t, err, ErrShape)
}

func TestFrameCounts(t *testing.T) {
	m, err := NewArray(Shape{T: 2, Y: 1, X: 3}, []bool{true, false, true, false, false, false})
	require.NoError(t, err)
	counts, err := FrameCounts(m)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, counts)
}

func TestDTypeConvert(t *testing.T) {
	tests := []struct {
		name  string
		dtype DType
		in    float64
		want  float64
	}{
		{"int16 truncates", Int16, 12.9, 12},
		{"int16 saturates", Int16, 40000, math.MaxInt16},
		{"uint8 clamps negatives", Uint8, -3, 0},
		{"int nan is zero", Int32, math.NaN(), 0},
		{"float32 rounds", Float32, 0.1, float64(float32(0.1))},
		{"float64 unchanged", Float64, 0.1, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dtype.Convert(tt.in))
		})
	}
}

func TestPromote(t *testing.T) {
	assert.Equal(t, Float32, Promote(Float32, Float32))
	assert.Equal(t, Float64, Promote(Int16, Float32))
	assert.Equal(t, Int32, Promote(Int16, Uint16))
	assert.Equal(t, Int16, Promote(Uint8, Int16))
	assert.Equal(t, String, Promote(String, Float32))
}

func TestParseDType(t *testing.T) {
	d, err := ParseDType(" Float32 ")
	require.NoError(t, err)
	assert.Equal(t, Float32, d)

	_, err = ParseDType("complex128")
	assert.Error(t, err)
}

func TestZeroDTypeIsUnset(t *testing.T) {
	var d DType
	assert.Equal(t, Unset, d)
	assert.False(t, d.IsNumeric())
	assert.Equal(t, "unset", d.String())
	assert.Equal(t, 3000.0, d.Convert(3000))

	_, err := ParseDType("unset")
	assert.Error(t, err)
}

func TestVariableWhereWidensIntegers(t *testing.T) {
	shape := Shape{T: 1, Y: 1, X: 2}
	v := NewVariable("red", Int16, mustArray(t, shape, []float64{10, 20}), Attrs{"units": "1"})
	m, err := NewArray(shape, []bool{true, false})
	require.NoError(t, err)

	out, err := v.Where(m)
	require.NoError(t, err)
	assert.Equal(t, Float64, out.DType)
	assert.Equal(t, "1", out.Attrs.Units())

	vals, err := out.Data.Values()
	require.NoError(t, err)
	assert.Equal(t, 10.0, vals[0])
	assert.True(t, math.IsNaN(vals[1]))
}

func TestAsTypeDropsAttrsAndRejectsStrings(t *testing.T) {
	shape := Shape{T: 1, Y: 1, X: 1}
	v := NewVariable("red", Int16, mustArray(t, shape, []float64{3}), Attrs{"nodata": -999})
	cast, err := v.AsType(Float32)
	require.NoError(t, err)
	assert.Nil(t, cast.Attrs)
	assert.Equal(t, Float32, cast.DType)

	_, err = NewLabelVariable("product", []string{"a"}, nil).AsType(Float32)
	assert.ErrorIs(t, err, ErrUncastable)
}

func TestAttrsNodata(t *testing.T) {
	for _, v := range []any{-999, int16(-999), float32(-999), -999.0} {
		nd, ok := Attrs{"nodata": v}.Nodata()
		assert.True(t, ok)
		assert.Equal(t, -999.0, nd)
	}
	_, ok := Attrs{}.Nodata()
	assert.False(t, ok)
}

func day(d int) time.Time {
	return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC)
}

func newTestStack(t *testing.T, mode Mode, times []time.Time, fill float64) *Stack {
	t.Helper()
	shape := Shape{T: len(times), Y: 2, X: 2}
	data := make([]float64, shape.Len())
	for i := range data {
		data[i] = fill + float64(i/shape.Frame())
	}
	arr := mustArray(t, shape, data)
	if mode == Deferred {
		arr = DeferredArray(shape, func() ([]float64, error) { return data, nil })
	}
	s, err := NewStack(mode, times, grid(2), grid(2), Attrs{"crs": "EPSG:3460"},
		NewVariable("red", Int16, arr, Attrs{"nodata": -999, "units": "1"}))
	require.NoError(t, err)
	return s
}

func TestNewStackRejectsDeferredVariablesInEagerStack(t *testing.T) {
	shape := Shape{T: 1, Y: 1, X: 1}
	arr := DeferredArray(shape, func() ([]float64, error) { return []float64{1}, nil })
	_, err := NewStack(Eager, []time.Time{day(1)}, grid(1), grid(1), nil, NewVariable("red", Int16, arr, nil))
	assert.Error(t, err)
}

func TestConcatAndSortByTime(t *testing.T) {
	a := newTestStack(t, Eager, []time.Time{day(3), day(1)}, 100)
	b := newTestStack(t, Deferred, []time.Time{day(2), day(1)}, 200)

	combined, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, Deferred, combined.Mode())
	assert.Equal(t, 4, combined.Len())

	sorted, err := combined.SortByTime()
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(1), day(1), day(2), day(3)}, sorted.Times)

	computed, err := sorted.Compute()
	require.NoError(t, err)
	assert.Equal(t, Eager, computed.Mode())

	red, ok := computed.Var("red")
	require.True(t, ok)
	vals, err := red.Data.Values()
	require.NoError(t, err)

	// first pixel of each frame identifies where it came from; day(1) ties keep
	// insertion order (a before b)
	var firsts []float64
	for i := 0; i < 4; i++ {
		firsts = append(firsts, vals[i*4])
	}
	if diff := cmp.Diff([]float64{101, 201, 200, 100}, firsts); diff != "" {
		t.Errorf("frame order mismatch (-want +got):\n%s", diff)
	}
}

func TestConcatGridMismatch(t *testing.T) {
	a := newTestStack(t, Eager, []time.Time{day(1)}, 0)
	b := newTestStack(t, Eager, []time.Time{day(2)}, 0)
	b.X = []float64{5, 6}
	_, err := Concat(a, b)
	assert.ErrorIs(t, err, ErrGridMismatch)
}

func TestEmptyAndValidate(t *testing.T) {
	s, err := NewStack(Eager, nil, grid(2), grid(2), nil)
	require.NoError(t, err)
	assert.True(t, s.Empty())
	assert.ErrorIs(t, s.Validate(), ErrNoVariables)

	full := newTestStack(t, Eager, []time.Time{day(1)}, 0)
	assert.False(t, full.Empty())
	assert.NoError(t, full.Validate())
}

func TestWithVariableReplacesInPlace(t *testing.T) {
	s := newTestStack(t, Eager, []time.Time{day(1)}, 0)
	labels := NewLabelVariable("product", []string{"ls8"}, nil)
	s2, err := s.WithVariable(labels)
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "product"}, s2.Names())
	assert.Equal(t, []string{"red"}, s.Names())

	red, _ := s.Var("red")
	cast, err := red.AsType(Float32)
	require.NoError(t, err)
	s3, err := s2.WithVariable(cast)
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "product"}, s3.Names())
	v, _ := s3.Var("red")
	assert.Equal(t, Float32, v.DType)
}
