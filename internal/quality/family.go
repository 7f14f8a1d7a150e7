// Package quality maps satellite products to their sensor family and classifies pixels as
// usable or not from the family's quality-band encoding.
package quality

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrUnknownProduct is returned when no family claims a product identifier.
	ErrUnknownProduct = errors.New("product does not belong to a known sensor family")

	// ErrMissingQualityBand is returned when a stack lacks the family's quality variable.
	ErrMissingQualityBand = errors.New("quality band missing from stack")
)

// Platform groups families whose products may be loaded together.
type Platform string

const (
	PlatformLandsat   Platform = "landsat"
	PlatformSentinel2 Platform = "sentinel2"
)

// SensorFamily describes one quality encoding: which variable carries it and which coded
// values mark a good pixel.
type SensorFamily struct {
	Name     string
	Platform Platform
	Variable string
	Codes    []int
	Prefixes []string
}

// Accepts reports whether code is one of the family's good-pixel codes.
func (f SensorFamily) Accepts(code int) bool {
	return slices.Contains(f.Codes, code)
}

// WithCodes returns a copy of the family using codes as the acceptable set. An empty slice
// leaves the family unchanged.
func (f SensorFamily) WithCodes(codes []int) SensorFamily {
	if len(codes) == 0 {
		return f
	}
	f.Codes = slices.Clone(codes)
	f.Prefixes = slices.Clone(f.Prefixes)
	return f
}

// FmaskCodes documents the fmask classes used by the DEA ARD products.
var FmaskCodes = map[int]string{
	0: "nodata",
	1: "valid",
	2: "cloud",
	3: "shadow",
	4: "snow",
	5: "water",
}

// DefaultFamilies returns the built-in quality encodings.
func DefaultFamilies() []SensorFamily {
	return []SensorFamily{
		{
			Name:     "sentinel2",
			Platform: PlatformSentinel2,
			Variable: "scene_classification",
			// vegetation, not vegetated, water, unclassified
			Codes:    []int{4, 5, 6, 7},
			Prefixes: []string{"s2"},
		},
		{
			Name:     "landsat8",
			Platform: PlatformLandsat,
			Variable: "pixel_qa",
			// clear, then water
			Codes:    []int{322, 386, 834, 898, 1346, 324, 388, 836, 900, 1348},
			Prefixes: []string{"ls8"},
		},
		{
			Name:     "landsat",
			Platform: PlatformLandsat,
			Variable: "pixel_qa",
			Codes:    []int{66, 130, 68, 132},
			Prefixes: []string{"ls5", "ls7"},
		},
		{
			Name:     "dea_landsat_fmask",
			Platform: PlatformLandsat,
			Variable: "fmask",
			Codes:    []int{1, 4, 5},
			Prefixes: []string{"ga_ls"},
		},
		{
			Name:     "dea_sentinel2_fmask",
			Platform: PlatformSentinel2,
			Variable: "fmask",
			Codes:    []int{1, 4, 5},
			Prefixes: []string{"s2a_ard", "s2b_ard", "s2a_nrt", "s2b_nrt"},
		},
	}
}

// Table resolves product identifiers to sensor families by longest matching prefix.
type Table struct {
	families map[string]SensorFamily
}

// NewTable builds a table from families. A later family replaces an earlier one of the
// same name, which lets configuration override the defaults.
func NewTable(families ...SensorFamily) (*Table, error) {
	t := &Table{families: make(map[string]SensorFamily)}
	for _, f := range families {
		if err := t.Add(f); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// DefaultTable returns a table holding DefaultFamilies.
func DefaultTable() *Table {
	t, _ := NewTable(DefaultFamilies()...)
	return t
}

// Add registers or replaces a family.
func (t *Table) Add(f SensorFamily) error {
	switch {
	case f.Name == "":
		return errors.New("sensor family needs a name")
	case f.Variable == "":
		return fmt.Errorf("sensor family %s needs a quality variable", f.Name)
	case len(f.Prefixes) == 0:
		return fmt.Errorf("sensor family %s needs at least one product prefix", f.Name)
	case len(f.Codes) == 0:
		return fmt.Errorf("sensor family %s needs at least one acceptable code", f.Name)
	case f.Platform == "":
		return fmt.Errorf("sensor family %s needs a platform", f.Name)
	}
	t.families[f.Name] = f
	return nil
}

// Families returns the registered families sorted by name.
func (t *Table) Families() []SensorFamily {
	out := make([]SensorFamily, 0, len(t.families))
	for _, f := range t.families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve returns the family whose prefix is the longest match for product.
func (t *Table) Resolve(product string) (SensorFamily, error) {
	var (
		best    SensorFamily
		bestLen int
		found   bool
	)
	for _, f := range t.families {
		for _, p := range f.Prefixes {
			if !strings.HasPrefix(product, p) {
				continue
			}
			// ties on length go to the lexically smaller family name so results do
			// not depend on map order
			if len(p) > bestLen || (len(p) == bestLen && f.Name < best.Name) {
				best, bestLen, found = f, len(p), true
			}
		}
	}
	if !found {
		return SensorFamily{}, fmt.Errorf("%w: %q", ErrUnknownProduct, product)
	}
	return best, nil
}
