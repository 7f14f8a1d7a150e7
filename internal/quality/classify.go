package quality

import (
	"fmt"
	"math"

	"github.com/catapult/ardcube/pkg/raster"
)

// Classify returns a mask that is true where the family's quality variable holds an
// acceptable code. NaN and fractional quality values are never good. The mask is deferred
// when the quality variable is.
func Classify(s *raster.Stack, f SensorFamily) (*raster.Mask, error) {
	qv, ok := s.Var(f.Variable)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs %q, stack has %v", ErrMissingQualityBand, f.Name, f.Variable, s.Names())
	}
	if !qv.DType.IsNumeric() {
		return nil, fmt.Errorf("%w: %q is not numeric", ErrMissingQualityBand, f.Variable)
	}

	good := make(map[int]struct{}, len(f.Codes))
	for _, c := range f.Codes {
		good[c] = struct{}{}
	}
	return raster.Map(qv.Data, func(v float64) bool {
		if math.IsNaN(v) || v != math.Trunc(v) {
			return false
		}
		_, ok := good[int(v)]
		return ok
	}), nil
}
