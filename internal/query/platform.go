package query

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

// ErrUnknownPlatform is returned for a platform name that maps to no product.
var ErrUnknownPlatform = errors.New("invalid platform name")

// ProductMeasurements is the product to load for a platform, the measurements to request
// (the caller's plus the platform's quality band) and the matching water product.
type ProductMeasurements struct {
	Product      string
	Measurements []string
	WaterProduct string
}

var landsatPlatform = regexp.MustCompile(`^LANDSAT_(\d)$`)

// ProductForPlatform maps a platform name such as "SENTINEL_2" or "LANDSAT_8" to the
// surface reflectance product and measurements to load.
func ProductForPlatform(platform string, measurements []string) (ProductMeasurements, error) {
	if platform == "SENTINEL_2" {
		// no water classification product is indexed for Sentinel-2 yet
		return ProductMeasurements{
			Product:      "s2_esa_sr_granule",
			Measurements: append(slices.Clone(measurements), "coastal_aerosol", "scene_classification"),
		}, nil
	}

	m := landsatPlatform.FindStringSubmatch(platform)
	if m == nil {
		return ProductMeasurements{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	return ProductMeasurements{
		Product:      fmt.Sprintf("ls%s_usgs_sr_scene", m[1]),
		Measurements: append(slices.Clone(measurements), "pixel_qa"),
		WaterProduct: fmt.Sprintf("ls%s_water_classification", m[1]),
	}, nil
}
