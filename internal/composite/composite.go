// Package composite reduces a cleaned observation stack to a single cloud-free frame.
package composite

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/catapult/ardcube/internal/quality"
	"github.com/catapult/ardcube/pkg/raster"
)

const (
	// Scale maps integer surface reflectance to roughly 0..1 before compositing.
	Scale = 1.0 / 10000
	// Nodata marks pixels with no valid observation in the int16 output.
	Nodata = -9999
)

// Compositor reduces a float32 stack, with NaN for missing pixels, to one time step per
// variable.
type Compositor interface {
	Composite(ctx context.Context, s *raster.Stack) (*raster.Stack, error)
}

// Geomedian composites the named measurements of s: pixels the family classifies as bad are
// dropped, values are scaled to float32 reflectance, c composites them, and the result is
// scaled back to int16 with Nodata for pixels that had no good observation.
func Geomedian(ctx context.Context, s *raster.Stack, f quality.SensorFamily, measurements []string, c Compositor) (*raster.Stack, error) {
	good, err := quality.Classify(s, f)
	if err != nil {
		return nil, err
	}

	vars := make([]*raster.Variable, 0, len(measurements))
	for _, name := range measurements {
		v, ok := s.Var(name)
		if !ok {
			return nil, fmt.Errorf("measurement %q not in stack", name)
		}
		if !v.DType.IsNumeric() {
			return nil, fmt.Errorf("measurement %q is not numeric", name)
		}
		scaled, err := toFloat32(v, good)
		if err != nil {
			return nil, err
		}
		vars = append(vars, scaled)
	}
	clean, err := raster.NewStack(s.Mode(), s.Times, s.Y, s.X, s.Attrs.Clone(), vars...)
	if err != nil {
		return nil, err
	}

	out, err := c.Composite(ctx, clean)
	if err != nil {
		return nil, fmt.Errorf("compositing: %w", err)
	}
	return out.MapVariables(fromFloat32)
}

// toFloat32 keeps good pixels that are not nodata and scales them to float32 reflectance.
func toFloat32(v *raster.Variable, good *raster.Mask) (*raster.Variable, error) {
	nodata, hasNodata := v.Attrs.Nodata()
	data, err := raster.Zip(v.Data, good, func(x float64, ok bool) float64 {
		if !ok || math.IsNaN(x) || (hasNodata && x == nodata) {
			return math.NaN()
		}
		return raster.Float32.Convert(x * Scale)
	})
	if err != nil {
		return nil, fmt.Errorf("scaling %s: %w", v.Name, err)
	}
	attrs := v.Attrs.Clone()
	delete(attrs, "nodata")
	return raster.NewVariable(v.Name, raster.Float32, data, attrs), nil
}

func fromFloat32(v *raster.Variable) (*raster.Variable, error) {
	if !v.DType.IsNumeric() {
		return v, nil
	}
	data := raster.Map(v.Data, func(x float64) float64 {
		if math.IsNaN(x) {
			return Nodata
		}
		return raster.Int16.Convert(math.Round(x / Scale))
	})
	attrs := v.Attrs.Clone()
	if attrs == nil {
		attrs = raster.Attrs{}
	}
	attrs["nodata"] = float64(Nodata)
	return raster.NewVariable(v.Name, raster.Int16, data, attrs), nil
}

// reduced returns the single-step stack a compositor builds from s.
func reduced(s *raster.Stack, vars ...*raster.Variable) (*raster.Stack, error) {
	var times []time.Time
	if len(s.Times) > 0 {
		times = []time.Time{s.Times[0]}
	}
	return raster.NewStack(raster.Eager, times, s.Y, s.X, s.Attrs.Clone(), vars...)
}
