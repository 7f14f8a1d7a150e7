package composite

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/catapult/ardcube/pkg/raster"
)

// BandMedian composites each band independently by its per-pixel median over time, ignoring
// NaN. With an even number of valid observations the lower middle value is used. It
// evaluates deferred input.
type BandMedian struct{}

// Composite implements Compositor.
func (BandMedian) Composite(ctx context.Context, s *raster.Stack) (*raster.Stack, error) {
	s, err := s.Compute()
	if err != nil {
		return nil, err
	}
	shape := s.Shape()
	frame := shape.Frame()

	var vars []*raster.Variable
	for _, v := range s.Vars() {
		if !v.DType.IsNumeric() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := v.Data.Values()
		if err != nil {
			return nil, err
		}
		out := make([]float64, frame)
		pixel := make([]float64, 0, shape.T)
		for i := range out {
			pixel = pixel[:0]
			for t := 0; t < shape.T; t++ {
				if x := in[t*frame+i]; !math.IsNaN(x) {
					pixel = append(pixel, x)
				}
			}
			if len(pixel) == 0 {
				out[i] = math.NaN()
				continue
			}
			sort.Float64s(pixel)
			out[i] = stat.Quantile(0.5, stat.Empirical, pixel, nil)
		}
		data, err := raster.NewArray(raster.Shape{T: 1, Y: shape.Y, X: shape.X}, out)
		if err != nil {
			return nil, err
		}
		vars = append(vars, raster.NewVariable(v.Name, v.DType, data, v.Attrs.Clone()))
	}
	return reduced(s, vars...)
}
