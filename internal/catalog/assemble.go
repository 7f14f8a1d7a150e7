package catalog

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/pkg/raster"
)

// record is a dataset as seen by a backend. Band data is fetched on demand.
type record struct {
	id    uuid.UUID
	time  time.Time
	grid  Grid
	fetch func(ctx context.Context, measurement string) ([]float64, error)
}

func selectMeasurements(p Product, q query.Query) ([]Measurement, error) {
	if len(q.Measurements) == 0 {
		return p.Measurements, nil
	}
	out := make([]Measurement, 0, len(q.Measurements))
	seen := make(map[string]bool, len(q.Measurements))
	for _, name := range q.Measurements {
		if seen[name] {
			continue
		}
		seen[name] = true
		m, ok := p.measurement(name)
		if !ok {
			return nil, &MissingMeasurementError{Product: p.Name, Measurement: name}
		}
		out = append(out, m)
	}
	return out, nil
}

func filterRecords(recs []record, q query.Query) []record {
	out := make([]record, 0, len(recs))
	for _, r := range recs {
		if q.Time != nil && !q.Time.Contains(r.time) {
			continue
		}
		if !r.grid.Intersects(q) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].time.Before(out[j].time) })
	return out
}

// solarDay approximates local solar date. Longitude is only known for geographic grids;
// projected grids fall back to the UTC date.
func solarDay(r record) string {
	t := r.time.UTC()
	if strings.EqualFold(r.grid.CRS, "EPSG:4326") {
		lon := r.grid.X0 + float64(r.grid.Width-1)*r.grid.Res/2
		t = t.Add(time.Duration(lon / 15 * float64(time.Hour)))
	}
	return t.Format("2006-01-02")
}

// groupRecords splits time-sorted records into the observations of the output stack.
func groupRecords(recs []record, groupBy string) ([][]record, error) {
	switch groupBy {
	case "", "time":
		groups := make([][]record, len(recs))
		for i, r := range recs {
			groups[i] = []record{r}
		}
		return groups, nil
	case query.GroupBySolarDay:
		var groups [][]record
		lastKey := ""
		for _, r := range recs {
			key := solarDay(r)
			if len(groups) > 0 && key == lastKey {
				groups[len(groups)-1] = append(groups[len(groups)-1], r)
				continue
			}
			groups = append(groups, []record{r})
			lastKey = key
		}
		return groups, nil
	}
	return nil, fmt.Errorf("unsupported group_by %q", groupBy)
}

// assemble builds the stack for product p from the backend's records. With no matching
// records the stack has no variables, which callers treat as "no data".
func assemble(ctx context.Context, p Product, recs []record, q query.Query) (*raster.Stack, error) {
	measurements, err := selectMeasurements(p, q)
	if err != nil {
		return nil, err
	}
	mode := raster.Eager
	if q.Deferred() {
		mode = raster.Deferred
	}

	recs = filterRecords(recs, q)
	if len(recs) == 0 {
		return raster.NewStack(mode, nil, nil, nil, nil)
	}

	grid := recs[0].grid
	for _, r := range recs[1:] {
		if r.grid != grid {
			return nil, fmt.Errorf("%w: product %s datasets %s and %s", raster.ErrGridMismatch, p.Name, recs[0].id, r.id)
		}
	}
	groups, err := groupRecords(recs, q.GroupBy)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(groups))
	for i, g := range groups {
		times[i] = g[0].time
	}
	shape := raster.Shape{T: len(groups), Y: grid.Height, X: grid.Width}

	// reads may run long after Load returns, at Compute time
	readCtx := context.WithoutCancel(ctx)
	vars := make([]*raster.Variable, 0, len(measurements))
	for _, m := range measurements {
		load := func() ([]float64, error) {
			return readMeasurement(readCtx, groups, m, grid.Pixels())
		}
		var arr *raster.Array[float64]
		if mode == raster.Deferred {
			arr = raster.DeferredArray(shape, load)
		} else {
			data, err := load()
			if err != nil {
				return nil, err
			}
			if arr, err = raster.NewArray(shape, data); err != nil {
				return nil, err
			}
		}
		vars = append(vars, raster.NewVariable(m.Name, m.DType, arr, m.attrs()))
	}

	attrs := raster.Attrs{"crs": grid.CRS, "resolution": grid.Res}
	return raster.NewStack(mode, times, grid.Ys(), grid.Xs(), attrs, vars...)
}

// readMeasurement reads one measurement for every group. Grouped datasets are fused: the
// first valid value in time order wins.
func readMeasurement(ctx context.Context, groups [][]record, m Measurement, pixels int) ([]float64, error) {
	out := make([]float64, 0, len(groups)*pixels)
	for _, g := range groups {
		var frame []float64
		for _, r := range g {
			band, err := r.fetch(ctx, m.Name)
			if err != nil {
				return nil, fmt.Errorf("reading %s of dataset %s: %w", m.Name, r.id, err)
			}
			if len(band) != pixels {
				return nil, fmt.Errorf("dataset %s band %s has %d pixels, want %d", r.id, m.Name, len(band), pixels)
			}
			if frame == nil {
				frame = slices.Clone(band)
				continue
			}
			for i, v := range frame {
				if missing(v, m) {
					frame[i] = band[i]
				}
			}
		}
		for _, v := range frame {
			out = append(out, m.DType.Convert(v))
		}
	}
	return out, nil
}

func missing(v float64, m Measurement) bool {
	if math.IsNaN(v) {
		return true
	}
	return m.Nodata != nil && v == *m.Nodata
}
