package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultCubeCRS is the CRS the data cube indexes its products in.
const DefaultCubeCRS = "EPSG:3460"

// ErrUnsupportedCRS is returned by a Projector that cannot convert between two CRSs.
var ErrUnsupportedCRS = errors.New("unsupported coordinate reference system transform")

// Projector converts a point between coordinate reference systems.
type Projector interface {
	Transform(fromCRS, toCRS string, x, y float64) (float64, float64, error)
}

// ProjectorFunc adapts a function to Projector.
type ProjectorFunc func(fromCRS, toCRS string, x, y float64) (float64, float64, error)

func (f ProjectorFunc) Transform(fromCRS, toCRS string, x, y float64) (float64, float64, error) {
	return f(fromCRS, toCRS, x, y)
}

// Identity passes points through when both CRSs are the same and fails otherwise.
var Identity Projector = ProjectorFunc(func(fromCRS, toCRS string, x, y float64) (float64, float64, error) {
	if !strings.EqualFold(fromCRS, toCRS) {
		return 0, 0, fmt.Errorf("%w: %s -> %s", ErrUnsupportedCRS, fromCRS, toCRS)
	}
	return x, y, nil
})

// ParseAOI returns the latitude and longitude extents of a WKT POLYGON or MULTIPOLYGON.
// Coordinates are read as "lon lat" pairs.
func ParseAOI(wkt string) (lat, lon Range, err error) {
	s := strings.TrimSpace(wkt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "POLYGON") && !strings.HasPrefix(upper, "MULTIPOLYGON") {
		return Range{}, Range{}, fmt.Errorf("unsupported AOI geometry: %.30q", s)
	}
	open := strings.Index(s, "(")
	if open < 0 || strings.Count(s, "(") != strings.Count(s, ")") {
		return Range{}, Range{}, fmt.Errorf("malformed AOI: %.30q", s)
	}
	body := strings.NewReplacer("(", " ", ")", " ").Replace(s[open:])

	minLon, maxLon := math.Inf(1), math.Inf(-1)
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	for _, pair := range strings.Split(body, ",") {
		fields := strings.Fields(pair)
		if len(fields) < 2 {
			return Range{}, Range{}, fmt.Errorf("malformed AOI coordinate %q", strings.TrimSpace(pair))
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Range{}, Range{}, fmt.Errorf("AOI longitude: %w", err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Range{}, Range{}, fmt.Errorf("AOI latitude: %w", err)
		}
		minLon, maxLon = math.Min(minLon, x), math.Max(maxLon, x)
		minLat, maxLat = math.Min(minLat, y), math.Max(maxLat, y)
	}
	return Range{Min: minLat, Max: maxLat}, Range{Min: minLon, Max: maxLon}, nil
}

// BaseQuery builds a query covering the AOI, reprojected from aoiCRS into cubeCRS. A nil
// chunks map requests eager loading; an empty cubeCRS selects DefaultCubeCRS.
func BaseQuery(aoi string, res float64, outputCRS, aoiCRS string, chunks map[string]int, cubeCRS string, p Projector) (Query, error) {
	if cubeCRS == "" {
		cubeCRS = DefaultCubeCRS
	}
	if p == nil {
		p = Identity
	}
	lat, lon, err := ParseAOI(aoi)
	if err != nil {
		return Query{}, err
	}

	xA, yA, err := p.Transform(aoiCRS, cubeCRS, lon.Min, lat.Min)
	if err != nil {
		return Query{}, fmt.Errorf("projecting AOI: %w", err)
	}
	xB, yB, err := p.Transform(aoiCRS, cubeCRS, lon.Max, lat.Max)
	if err != nil {
		return Query{}, fmt.Errorf("projecting AOI: %w", err)
	}

	return Query{
		Y:          &Range{Min: yA, Max: yB},
		X:          &Range{Min: xA, Max: xB},
		OutputCRS:  outputCRS,
		Resolution: [2]float64{-res, res},
		Chunks:     chunks,
		CRS:        cubeCRS,
	}, nil
}
