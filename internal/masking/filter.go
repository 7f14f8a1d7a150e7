package masking

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/catapult/ardcube/pkg/raster"
)

// GoodFractions returns, for every time step, the share of pixels in the full spatial
// extent that the mask marks good. A deferred mask is computed.
func GoodFractions(m *raster.Mask) ([]float64, error) {
	computed, err := m.Compute()
	if err != nil {
		return nil, fmt.Errorf("computing quality mask: %w", err)
	}
	vals, err := computed.Values()
	if err != nil {
		return nil, err
	}
	shape := computed.Shape()
	frame := shape.Frame()
	fractions := make([]float64, shape.T)
	if frame == 0 {
		return fractions, nil
	}
	buf := make([]float64, frame)
	for t := range fractions {
		for i, ok := range vals[t*frame : (t+1)*frame] {
			if ok {
				buf[i] = 1
			} else {
				buf[i] = 0
			}
		}
		fractions[t] = stat.Mean(buf, nil)
	}
	return fractions, nil
}

// FilterResult is the outcome of FilterGoodFraction.
type FilterResult struct {
	Stack     *raster.Stack
	Mask      *raster.Mask
	Kept      []int
	Fractions []float64
}

// FilterGoodFraction drops time steps whose good-pixel fraction is below minFraction. Zero
// keeps everything without evaluating the mask. Otherwise the returned mask is the
// materialised mask restricted to the kept steps, so it is not evaluated twice.
func FilterGoodFraction(s *raster.Stack, m *raster.Mask, minFraction float64) (FilterResult, error) {
	if minFraction <= 0 {
		kept := make([]int, s.Len())
		for i := range kept {
			kept[i] = i
		}
		return FilterResult{Stack: s, Mask: m, Kept: kept}, nil
	}

	computed, err := m.Compute()
	if err != nil {
		return FilterResult{}, fmt.Errorf("computing quality mask: %w", err)
	}
	fractions, err := GoodFractions(computed)
	if err != nil {
		return FilterResult{}, err
	}

	var kept []int
	for t, f := range fractions {
		if f >= minFraction {
			kept = append(kept, t)
		}
	}
	filtered, err := s.Isel(kept)
	if err != nil {
		return FilterResult{}, err
	}
	mask, err := computed.Frames(kept)
	if err != nil {
		return FilterResult{}, err
	}
	return FilterResult{Stack: filtered, Mask: mask, Kept: kept, Fractions: fractions}, nil
}
