package ard

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/catapult/ardcube/internal/masking"
	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/internal/quality"
	"github.com/catapult/ardcube/pkg/raster"
)

// ErrConfiguration marks a request that can never succeed as given. It is returned before
// any product is loaded.
var ErrConfiguration = errors.New("invalid load configuration")

// slcFailure is the last day of Landsat 7 scan-line-corrector data.
var slcFailure = time.Date(2003, 5, 31, 0, 0, 0, 0, time.UTC)

// Options are the caller-facing parameters of one aggregation.
type Options struct {
	// Products to load, in order. All must belong to families of one platform.
	Products []string `json:"products" yaml:"products"`
	// MinGoodData drops observations whose good-pixel fraction is below it. Zero keeps all.
	MinGoodData float64 `json:"min_gooddata" yaml:"min_gooddata"`
	// FmaskGoodData overrides the good codes of fmask families.
	FmaskGoodData []int `json:"fmask_gooddata,omitempty" yaml:"fmask_gooddata,omitempty"`

	MaskPixelQuality bool         `json:"mask_pixel_quality" yaml:"mask_pixel_quality"`
	MaskInvalidData  bool         `json:"mask_invalid_data" yaml:"mask_invalid_data"`
	MaskContiguity   string       `json:"mask_contiguity" yaml:"mask_contiguity"`
	// MaskDType is the output dtype of masked variables. Unset means Float32.
	MaskDType raster.DType `json:"mask_dtype" yaml:"mask_dtype"`

	// DropLS7SLCOff drops Landsat 7 observations after the scan-line-corrector failure.
	DropLS7SLCOff bool `json:"drop_ls7_slc_off" yaml:"drop_ls7_slc_off"`
	// ProductMetadata adds a "product" variable naming each observation's source.
	ProductMetadata bool `json:"product_metadata" yaml:"product_metadata"`
	// Concurrency above 1 loads that many products at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	Query query.Query `json:"query" yaml:"query"`
}

// DefaultOptions returns options with every mask enabled and float32 output.
func DefaultOptions() Options {
	return Options{
		MaskPixelQuality: true,
		MaskInvalidData:  true,
		MaskContiguity:   masking.DefaultContiguity,
		MaskDType:        raster.Float32,
	}
}

func (o Options) masking() masking.Options {
	return masking.Options{
		PixelQuality: o.MaskPixelQuality,
		InvalidData:  o.MaskInvalidData,
		Contiguity:   o.MaskContiguity,
		DType:        o.MaskDType,
	}
}

// resolve validates o, fills unset defaults and returns the sensor family of every product.
func (o *Options) resolve(t *quality.Table) ([]quality.SensorFamily, error) {
	if len(o.Products) == 0 {
		return nil, fmt.Errorf("%w: no products given", ErrConfiguration)
	}
	if math.IsNaN(o.MinGoodData) || o.MinGoodData < 0 || o.MinGoodData > 1 {
		return nil, fmt.Errorf("%w: min_gooddata %v outside [0, 1]", ErrConfiguration, o.MinGoodData)
	}
	if o.MaskDType == raster.Unset {
		o.MaskDType = raster.Float32
	}
	if !o.MaskDType.IsNumeric() {
		return nil, fmt.Errorf("%w: mask_dtype %s is not numeric", ErrConfiguration, o.MaskDType)
	}

	families := make([]quality.SensorFamily, len(o.Products))
	for i, p := range o.Products {
		f, err := t.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		if i > 0 && f.Platform != families[0].Platform {
			return nil, fmt.Errorf("%w: loading %s and %s products at the same time is not supported",
				ErrConfiguration, families[0].Platform, f.Platform)
		}
		if len(o.FmaskGoodData) > 0 && f.Variable == "fmask" {
			f = f.WithCodes(o.FmaskGoodData)
		}
		families[i] = f
	}
	return families, nil
}
