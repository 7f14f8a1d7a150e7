// Package query describes the spatiotemporal query handed to a catalog, and builds queries
// from an area of interest and a platform name.
package query

import (
	"maps"
	"slices"
	"time"
)

// Range is a closed interval. Min and Max may be given in either order.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Bounds returns the interval ordered low to high.
func (r Range) Bounds() (lo, hi float64) {
	if r.Min <= r.Max {
		return r.Min, r.Max
	}
	return r.Max, r.Min
}

// Overlaps reports whether [lo, hi] intersects the range.
func (r Range) Overlaps(lo, hi float64) bool {
	a, b := r.Bounds()
	return lo <= b && hi >= a
}

// TimeRange is a closed time interval. A zero End means unbounded.
type TimeRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Contains reports whether t lies within the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Query is the spatiotemporal request forwarded to a catalog. Apart from the execution
// mode it is opaque to the loading pipeline.
type Query struct {
	X          *Range     `json:"x,omitempty" yaml:"x,omitempty"`
	Y          *Range     `json:"y,omitempty" yaml:"y,omitempty"`
	Time       *TimeRange `json:"time,omitempty" yaml:"time,omitempty"`
	Resolution [2]float64 `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	CRS        string     `json:"crs,omitempty" yaml:"crs,omitempty"`
	OutputCRS  string     `json:"output_crs,omitempty" yaml:"output-crs,omitempty"`
	// GroupBy "solar_day" fuses observations of one product taken on the same day.
	GroupBy      string   `json:"group_by,omitempty" yaml:"group-by,omitempty"`
	Measurements []string `json:"measurements,omitempty" yaml:"measurements,omitempty"`
	// Lazy requests deferred execution. A non-nil Chunks also implies it.
	Lazy   bool           `json:"lazy,omitempty" yaml:"lazy,omitempty"`
	Chunks map[string]int `json:"chunks,omitempty" yaml:"chunks,omitempty"`
}

// GroupBySolarDay is the GroupBy value that fuses same-day observations.
const GroupBySolarDay = "solar_day"

// Deferred reports whether the query asks for deferred execution.
func (q Query) Deferred() bool {
	return q.Lazy || q.Chunks != nil
}

// Clone returns a deep copy so callers can adjust a query without touching the original.
func (q Query) Clone() Query {
	out := q
	if q.X != nil {
		x := *q.X
		out.X = &x
	}
	if q.Y != nil {
		y := *q.Y
		out.Y = &y
	}
	if q.Time != nil {
		tr := *q.Time
		out.Time = &tr
	}
	out.Measurements = slices.Clone(q.Measurements)
	out.Chunks = maps.Clone(q.Chunks)
	return out
}
