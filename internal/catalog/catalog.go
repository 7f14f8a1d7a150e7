// Package catalog indexes analysis-ready datasets and resolves a product name and query
// into a raster stack. Backends share the stack assembly in assemble.go and differ only in
// where products, datasets and pixel blobs live.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/pkg/raster"
)

var (
	// ErrUnknownProduct is returned when the catalog has no product of the given name.
	ErrUnknownProduct = errors.New("product not found in catalog")

	// ErrMissingMeasurement matches every *MissingMeasurementError.
	ErrMissingMeasurement = errors.New("measurement does not exist in product")
)

// MissingMeasurementError reports a requested measurement that the product does not have.
type MissingMeasurementError struct {
	Product     string
	Measurement string
}

func (e *MissingMeasurementError) Error() string {
	return fmt.Sprintf("measurement %q does not exist in product %s", e.Measurement, e.Product)
}

// Is makes errors.Is(err, ErrMissingMeasurement) true.
func (e *MissingMeasurementError) Is(target error) bool {
	return target == ErrMissingMeasurement
}

// Catalog loads the datasets of one product matching a query as a stack. The stack is
// deferred when q.Deferred() is true and eager otherwise.
type Catalog interface {
	Load(ctx context.Context, product string, q query.Query) (*raster.Stack, error)
	Close() error
}

// Measurement is one band of a product.
type Measurement struct {
	Name   string       `json:"name" yaml:"name"`
	DType  raster.DType `json:"dtype" yaml:"dtype"`
	Nodata *float64     `json:"nodata,omitempty" yaml:"nodata,omitempty"`
	Units  string       `json:"units,omitempty" yaml:"units,omitempty"`
}

func (m Measurement) attrs() raster.Attrs {
	attrs := raster.Attrs{}
	if m.Nodata != nil {
		attrs["nodata"] = *m.Nodata
	}
	if m.Units != "" {
		attrs["units"] = m.Units
	}
	return attrs
}

// Product is a named collection of datasets sharing one set of measurements.
type Product struct {
	Name         string        `json:"name" yaml:"name"`
	Measurements []Measurement `json:"measurements" yaml:"measurements"`
}

func (p Product) measurement(name string) (Measurement, bool) {
	for _, m := range p.Measurements {
		if m.Name == name {
			return m, true
		}
	}
	return Measurement{}, false
}

// Grid is the pixel grid of a dataset. X0 and Y0 are the centre of the top-left pixel; y
// decreases down the rows.
type Grid struct {
	CRS    string  `json:"crs" yaml:"crs"`
	X0     float64 `json:"x0" yaml:"x0"`
	Y0     float64 `json:"y0" yaml:"y0"`
	Res    float64 `json:"res" yaml:"res"`
	Width  int     `json:"width" yaml:"width"`
	Height int     `json:"height" yaml:"height"`
}

// Xs returns the x coordinate of every column.
func (g Grid) Xs() []float64 {
	xs := make([]float64, g.Width)
	for i := range xs {
		xs[i] = g.X0 + float64(i)*g.Res
	}
	return xs
}

// Ys returns the y coordinate of every row.
func (g Grid) Ys() []float64 {
	ys := make([]float64, g.Height)
	for i := range ys {
		ys[i] = g.Y0 - float64(i)*g.Res
	}
	return ys
}

// Pixels returns the number of pixels in one band.
func (g Grid) Pixels() int { return g.Width * g.Height }

// Intersects reports whether the grid's footprint overlaps the query's x and y ranges.
// A nil range is unbounded.
func (g Grid) Intersects(q query.Query) bool {
	half := g.Res / 2
	if q.X != nil && !q.X.Overlaps(g.X0-half, g.X0+float64(g.Width-1)*g.Res+half) {
		return false
	}
	if q.Y != nil && !q.Y.Overlaps(g.Y0-float64(g.Height-1)*g.Res-half, g.Y0+half) {
		return false
	}
	return true
}

func (g Grid) validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid has no pixels: %dx%d", g.Width, g.Height)
	}
	if g.Res <= 0 || math.IsNaN(g.Res) {
		return fmt.Errorf("grid resolution must be positive, got %v", g.Res)
	}
	return nil
}

// Dataset is one acquisition of a product: a grid and a pixel array per measurement.
type Dataset struct {
	ID    uuid.UUID            `json:"id" yaml:"id"`
	Time  time.Time            `json:"time" yaml:"time"`
	Grid  Grid                 `json:"grid" yaml:"grid"`
	Bands map[string][]float64 `json:"bands" yaml:"bands"`
}

// validate checks d against p and assigns an ID when d has none.
func (d *Dataset) validate(p Product) error {
	if err := d.Grid.validate(); err != nil {
		return fmt.Errorf("dataset %s: %w", d.ID, err)
	}
	for _, m := range p.Measurements {
		band, ok := d.Bands[m.Name]
		if !ok {
			return fmt.Errorf("dataset %s: %w", d.ID, &MissingMeasurementError{Product: p.Name, Measurement: m.Name})
		}
		if len(band) != d.Grid.Pixels() {
			return fmt.Errorf("dataset %s: band %s has %d pixels, grid has %d", d.ID, m.Name, len(band), d.Grid.Pixels())
		}
	}
	for name := range d.Bands {
		if _, ok := p.measurement(name); !ok {
			return fmt.Errorf("dataset %s: %w", d.ID, &MissingMeasurementError{Product: p.Name, Measurement: name})
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
