package masking

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/pkg/raster"
)

// DefaultContiguity is the contiguity variable of NBART surface reflectance products.
const DefaultContiguity = "nbart_contiguity"

// Options selects which masks Apply uses. Each can be toggled independently.
type Options struct {
	// PixelQuality nulls pixels where the quality mask is false.
	PixelQuality bool
	// InvalidData nulls each variable's nodata sentinel.
	InvalidData bool
	// Contiguity names the variable whose value 1 marks a pixel valid in every band.
	// Empty disables contiguity masking.
	Contiguity string
	// DType is the dtype variables are normalised to before masking. Unset means Float32.
	DType raster.DType
}

// Enabled reports whether any mask is switched on.
func (o Options) Enabled() bool {
	return o.PixelQuality || o.InvalidData || o.Contiguity != ""
}

// Apply masks s according to opts and returns the cleaned stack. Pixel-quality and
// contiguity masks are combined so a pixel failing either is nulled in every numeric
// variable; nodata sentinels are then nulled per variable. A stack with no time steps, or
// options with every mask disabled, is returned unchanged.
func Apply(s *raster.Stack, good *raster.Mask, opts Options, logger *zap.SugaredLogger) (*raster.Stack, error) {
	logger = log.OrNop(logger)
	if s.Len() == 0 || !opts.Enabled() {
		return s, nil
	}
	if opts.DType == raster.Unset {
		opts.DType = raster.Float32
	}

	var keep *raster.Mask
	if opts.PixelQuality {
		if good == nil {
			return nil, errors.New("pixel quality masking needs a quality mask")
		}
		keep = good
	}
	if opts.Contiguity != "" {
		cm, err := contiguityMask(s, opts.Contiguity)
		switch {
		case errors.Is(err, errNoContiguity):
			logger.Warnw("contiguity variable not loaded, skipping contiguity mask", "variable", opts.Contiguity)
		case err != nil:
			return nil, err
		case keep == nil:
			keep = cm
		default:
			if keep, err = raster.MaskAnd(keep, cm); err != nil {
				return nil, fmt.Errorf("combining masks: %w", err)
			}
		}
	}

	// cast first so Where does not widen to float64
	out, _, err := Normalize(s, opts.DType, logger)
	if err != nil {
		return nil, err
	}

	if keep != nil {
		out, err = out.MapVariables(func(v *raster.Variable) (*raster.Variable, error) {
			return v.Where(keep)
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.InvalidData {
		out, err = out.MapVariables(maskNodata)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

var errNoContiguity = errors.New("contiguity variable missing")

func contiguityMask(s *raster.Stack, name string) (*raster.Mask, error) {
	cv, ok := s.Var(name)
	if !ok {
		return nil, errNoContiguity
	}
	if !cv.DType.IsNumeric() {
		return nil, fmt.Errorf("contiguity variable %s is not numeric", name)
	}
	return raster.Map(cv.Data, func(v float64) bool { return v == 1 }), nil
}

// maskNodata replaces the variable's nodata sentinel with NaN and drops the nodata
// attribute, since NaN now plays that role.
func maskNodata(v *raster.Variable) (*raster.Variable, error) {
	if v.DType == raster.String {
		return v, nil
	}
	nodata, ok := v.Attrs.Nodata()
	if !ok {
		return v, nil
	}
	dtype := v.DType
	if !dtype.IsFloat() {
		dtype = raster.Float64
	}
	attrs := v.Attrs.Clone()
	delete(attrs, "nodata")
	data := raster.Map(v.Data, func(x float64) float64 {
		if x == nodata {
			return math.NaN()
		}
		return x
	})
	return &raster.Variable{Name: v.Name, DType: dtype, Attrs: attrs, Data: data}, nil
}
