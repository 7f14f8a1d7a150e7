package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/catapult/ardcube/internal/ard"
	"github.com/catapult/ardcube/internal/quality"
	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/pkg/raster"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetCatalogConfig() (*CatalogData, error)
	GetQualityFamilies() ([]FamilyData, error)
	GetLoadConfig() (*LoadData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Catalog CatalogData  `json:"catalog"`
	Quality []FamilyData `json:"quality,omitempty"`
	Load    LoadData     `json:"load"`
}

// Catalog backends
const (
	CatalogMemory   = "memory"
	CatalogSQLite   = "sqlite"
	CatalogPostgres = "postgres"
)

// CatalogData selects and locates the dataset catalog
type CatalogData struct {
	Backend          string `json:"backend"`
	Path             string `json:"path,omitempty"`
	ConnectionString string `json:"connection_string,omitempty"`
}

// FamilyData adds a sensor family or replaces a built-in one of the same name
type FamilyData struct {
	Name     string   `json:"name"`
	Platform string   `json:"platform"`
	Variable string   `json:"variable"`
	Codes    []int    `json:"codes"`
	Prefixes []string `json:"prefixes"`
}

// LoadData holds the parameters of a load. Unset pointer fields take the defaults of
// ard.DefaultOptions.
type LoadData struct {
	Products         []string  `json:"products"`
	MinGoodData      float64   `json:"min_gooddata,omitempty"`
	FmaskGoodData    []int     `json:"fmask_gooddata,omitempty"`
	MaskPixelQuality *bool     `json:"mask_pixel_quality,omitempty"`
	MaskInvalidData  *bool     `json:"mask_invalid_data,omitempty"`
	MaskContiguity   *string   `json:"mask_contiguity,omitempty"`
	MaskDType        string    `json:"mask_dtype,omitempty"`
	LS7SLCOff        *bool     `json:"ls7_slc_off,omitempty"`
	ProductMetadata  bool      `json:"product_metadata,omitempty"`
	Concurrency      int       `json:"concurrency,omitempty"`
	Query            QueryData `json:"query"`
}

// QueryData is the spatiotemporal query of a load
type QueryData struct {
	X            []float64      `json:"x,omitempty"`
	Y            []float64      `json:"y,omitempty"`
	Time         []string       `json:"time,omitempty"`
	Resolution   []float64      `json:"resolution,omitempty"`
	CRS          string         `json:"crs,omitempty"`
	OutputCRS    string         `json:"output_crs,omitempty"`
	GroupBy      string         `json:"group_by,omitempty"`
	Measurements []string       `json:"measurements,omitempty"`
	Lazy         bool           `json:"lazy,omitempty"`
	Chunks       map[string]int `json:"dask_chunks,omitempty"`
}

// QualityTable returns the built-in sensor families merged with the configured ones.
func (c *ConfigData) QualityTable() (*quality.Table, error) {
	t := quality.DefaultTable()
	for _, f := range c.Quality {
		err := t.Add(quality.SensorFamily{
			Name:     f.Name,
			Platform: quality.Platform(f.Platform),
			Variable: f.Variable,
			Codes:    f.Codes,
			Prefixes: f.Prefixes,
		})
		if err != nil {
			return nil, fmt.Errorf("quality family %q: %w", f.Name, err)
		}
	}
	return t, nil
}

// LoadOptions converts the load section into aggregator options.
func (c *ConfigData) LoadOptions() (ard.Options, error) {
	l := c.Load
	o := ard.DefaultOptions()
	o.Products = l.Products
	o.MinGoodData = l.MinGoodData
	o.FmaskGoodData = l.FmaskGoodData
	o.ProductMetadata = l.ProductMetadata
	o.Concurrency = l.Concurrency
	if l.MaskPixelQuality != nil {
		o.MaskPixelQuality = *l.MaskPixelQuality
	}
	if l.MaskInvalidData != nil {
		o.MaskInvalidData = *l.MaskInvalidData
	}
	if l.LS7SLCOff != nil {
		o.DropLS7SLCOff = !*l.LS7SLCOff
	}
	if l.MaskContiguity != nil {
		o.MaskContiguity = *l.MaskContiguity
		if strings.EqualFold(o.MaskContiguity, "false") {
			o.MaskContiguity = ""
		}
	}
	if l.MaskDType != "" {
		d, err := raster.ParseDType(l.MaskDType)
		if err != nil {
			return ard.Options{}, fmt.Errorf("mask_dtype: %w", err)
		}
		o.MaskDType = d
	}

	q, err := l.Query.query()
	if err != nil {
		return ard.Options{}, err
	}
	o.Query = q
	return o, nil
}

func (d QueryData) query() (query.Query, error) {
	q := query.Query{
		CRS:          d.CRS,
		OutputCRS:    d.OutputCRS,
		GroupBy:      d.GroupBy,
		Measurements: d.Measurements,
		Lazy:         d.Lazy,
		Chunks:       d.Chunks,
	}
	var err error
	if q.X, err = pair("x", d.X); err != nil {
		return q, err
	}
	if q.Y, err = pair("y", d.Y); err != nil {
		return q, err
	}
	switch len(d.Resolution) {
	case 0:
	case 2:
		q.Resolution = [2]float64{d.Resolution[0], d.Resolution[1]}
	default:
		return q, fmt.Errorf("resolution needs two values, got %d", len(d.Resolution))
	}
	switch len(d.Time) {
	case 0:
	case 1, 2:
		tr := &query.TimeRange{}
		if tr.Start, err = parseTime(d.Time[0], false); err != nil {
			return q, err
		}
		if len(d.Time) == 2 {
			if tr.End, err = parseTime(d.Time[1], true); err != nil {
				return q, err
			}
		}
		q.Time = tr
	default:
		return q, fmt.Errorf("time needs one or two values, got %d", len(d.Time))
	}
	return q, nil
}

func pair(name string, v []float64) (*query.Range, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 2:
		return &query.Range{Min: v[0], Max: v[1]}, nil
	}
	return nil, fmt.Errorf("%s needs two values, got %d", name, len(v))
}

// parseTime accepts RFC 3339 timestamps and plain dates. An empty string is unbounded. A
// plain date used as the end of a range covers the whole day.
func parseTime(s string, end bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if end {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
