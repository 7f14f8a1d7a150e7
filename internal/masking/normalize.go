// Package masking cleans raster stacks: dtype normalisation, pixel-quality, contiguity and
// nodata masking, and filtering observations by their good-pixel fraction.
package masking

import (
	"go.uber.org/zap"

	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/pkg/raster"
)

// CastOutcome records what TryCast did with a variable.
type CastOutcome int

const (
	// CastApplied means the variable was converted.
	CastApplied CastOutcome = iota
	// CastUnchanged means the variable already had the target dtype.
	CastUnchanged
	// CastSkipped means the variable could not be converted and was kept as is.
	CastSkipped
)

func (o CastOutcome) String() string {
	switch o {
	case CastApplied:
		return "applied"
	case CastUnchanged:
		return "unchanged"
	case CastSkipped:
		return "skipped"
	}
	return "unknown"
}

// CastResult describes the cast of one variable.
type CastResult struct {
	Variable string
	From     raster.DType
	To       raster.DType
	Outcome  CastOutcome
	Err      error
}

// TryCast converts v to dtype and re-attaches its attributes. When the conversion is not
// possible the original variable is returned with a CastSkipped result.
func TryCast(v *raster.Variable, dtype raster.DType) (*raster.Variable, CastResult) {
	res := CastResult{Variable: v.Name, From: v.DType, To: dtype}
	if v.DType == dtype {
		res.Outcome = CastUnchanged
		return v, res
	}
	cast, err := v.AsType(dtype)
	if err != nil {
		res.Outcome = CastSkipped
		res.Err = err
		return v, res
	}
	cast.Attrs = v.Attrs.Clone()
	res.Outcome = CastApplied
	return cast, res
}

// Normalize casts every variable of s to dtype, keeping attributes. Variables that cannot be
// cast are left unchanged and logged at debug level.
func Normalize(s *raster.Stack, dtype raster.DType, logger *zap.SugaredLogger) (*raster.Stack, []CastResult, error) {
	logger = log.OrNop(logger)
	results := make([]CastResult, 0, len(s.Names()))
	out, err := s.MapVariables(func(v *raster.Variable) (*raster.Variable, error) {
		cast, res := TryCast(v, dtype)
		results = append(results, res)
		if res.Outcome == CastSkipped {
			logger.Debugw("dtype cast skipped", "variable", res.Variable, "from", res.From, "to", res.To, "reason", res.Err)
		}
		return cast, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, results, nil
}
