// Package ard loads analysis-ready observations from several products of one platform,
// drops and masks poor quality pixels, and returns one time-sorted stack.
package ard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/catapult/ardcube/internal/catalog"
	"github.com/catapult/ardcube/internal/loader"
	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/internal/masking"
	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/internal/quality"
	"github.com/catapult/ardcube/pkg/raster"
)

// ProductLoader loads one product as a deferred stack and reports the mode the query asked for.
type ProductLoader interface {
	Load(ctx context.Context, product string, q query.Query) (*raster.Stack, raster.Mode, error)
}

// SkipReason says why a product contributed nothing.
type SkipReason int

const (
	NotSkipped SkipReason = iota
	// SkipNoData means the product had no observations left to return.
	SkipNoData
	// SkipStructural means the loaded data could not be processed, for example it had no
	// variables or lacked the quality band.
	SkipStructural
)

func (r SkipReason) String() string {
	switch r {
	case NotSkipped:
		return "none"
	case SkipNoData:
		return "no data"
	case SkipStructural:
		return "structural"
	}
	return fmt.Sprintf("SkipReason(%d)", int(r))
}

// Outcome records what happened to one product.
type Outcome struct {
	Product string
	// Found is the number of observations loaded, Kept the number returned.
	Found int
	Kept  int
	Skip  SkipReason
	// Err is the cause of a structural skip.
	Err error
}

// Result is the combined stack and one outcome per requested product, in request order.
// Data is nil when no product yielded observations.
type Result struct {
	Data     *raster.Stack
	Outcomes []Outcome
}

// Empty reports whether no product yielded observations.
func (r *Result) Empty() bool { return r.Data == nil }

// Aggregator combines products loaded through a ProductLoader.
type Aggregator struct {
	loader ProductLoader
	table  *quality.Table
	logger *zap.SugaredLogger
}

// New returns an aggregator. A nil table uses the default sensor families.
func New(l ProductLoader, t *quality.Table, logger *zap.SugaredLogger) *Aggregator {
	if t == nil {
		t = quality.DefaultTable()
	}
	return &Aggregator{loader: l, table: t, logger: log.OrNop(logger)}
}

// Aggregate loads every product in opts, filters and masks each, and returns the
// concatenation sorted by time. Per-product structural failures are recorded in the result
// and do not fail the call. Configuration and missing-band errors do.
//
// Stacks are not resampled: every product that returns data must be on the same pixel grid,
// otherwise Aggregate fails with raster.ErrGridMismatch naming the two products.
func (a *Aggregator) Aggregate(ctx context.Context, opts Options) (*Result, error) {
	families, err := opts.resolve(a.table)
	if err != nil {
		return nil, err
	}

	deferred := opts.Query.Deferred()
	if opts.MinGoodData > 0 && deferred {
		a.logger.Warnw("min_gooddata above zero evaluates the quality band of deferred data, which can be slow",
			"min_gooddata", opts.MinGoodData)
	}

	parts := make([]part, len(opts.Products))
	if opts.Concurrency > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for i, product := range opts.Products {
			g.Go(func() error {
				p, err := a.product(gctx, product, families[i], opts)
				parts[i] = p
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, product := range opts.Products {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p, err := a.product(ctx, product, families[i], opts)
			if err != nil {
				return nil, err
			}
			parts[i] = p
		}
	}

	res := &Result{Outcomes: make([]Outcome, len(parts))}
	var (
		stacks []*raster.Stack
		names  []string
	)
	for i, p := range parts {
		res.Outcomes[i] = p.outcome
		if p.stack != nil {
			stacks = append(stacks, p.stack)
			names = append(names, p.outcome.Product)
		}
	}
	if len(stacks) == 0 {
		a.logger.Info("no data returned for query")
		return res, nil
	}

	for i, s := range stacks[1:] {
		if !slices.Equal(s.Y, stacks[0].Y) || !slices.Equal(s.X, stacks[0].X) {
			return nil, fmt.Errorf("%w: %s and %s are on different pixel grids", raster.ErrGridMismatch, names[0], names[i+1])
		}
	}

	a.logger.Debugw("combining and sorting data", "products", len(stacks))
	combined, err := raster.Concat(stacks...)
	if err != nil {
		return nil, fmt.Errorf("combining products: %w", err)
	}
	if combined, err = combined.SortByTime(); err != nil {
		return nil, err
	}
	if !deferred {
		if combined, err = combined.Compute(); err != nil {
			return nil, fmt.Errorf("evaluating combined data: %w", err)
		}
	}
	a.logger.Infow("returning observations", "observations", combined.Len(), "mode", combined.Mode())
	res.Data = combined
	return res, nil
}

type part struct {
	stack   *raster.Stack
	outcome Outcome
}

func structural(err error) bool {
	return errors.Is(err, raster.ErrNoVariables) ||
		errors.Is(err, raster.ErrGridMismatch) ||
		errors.Is(err, raster.ErrShape) ||
		errors.Is(err, quality.ErrMissingQualityBand)
}

// product runs one product through load, filter and mask. A returned error aborts the
// aggregation; structural failures come back as a skipped part instead.
func (a *Aggregator) product(ctx context.Context, product string, f quality.SensorFamily, opts Options) (part, error) {
	out := Outcome{Product: product}
	skip := func(reason SkipReason, err error) (part, error) {
		out.Skip, out.Err = reason, err
		if err != nil {
			a.logger.Infow("skipping product", "product", product, "reason", reason, "error", err)
		} else {
			a.logger.Infow("no data for product", "product", product)
		}
		return part{outcome: out}, nil
	}

	s, _, err := a.loader.Load(ctx, product, opts.Query)
	var mb *loader.MissingBandError
	switch {
	case errors.As(err, &mb):
		return part{}, &loader.MissingBandError{Band: mb.Band, Products: slices.Clone(opts.Products)}
	case errors.Is(err, catalog.ErrUnknownProduct):
		return part{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	case err != nil && structural(err):
		return skip(SkipStructural, err)
	case err != nil:
		return part{}, err
	}

	out.Found = s.Len()
	if s.Len() == 0 {
		return skip(SkipNoData, nil)
	}
	if err := s.Validate(); err != nil {
		return skip(SkipStructural, err)
	}

	if opts.DropLS7SLCOff && strings.Contains(product, "ls7") {
		if s, err = dropSLCOff(s); err != nil {
			return part{}, err
		}
		if s.Len() == 0 {
			return skip(SkipNoData, nil)
		}
	}

	var good *raster.Mask
	if opts.MinGoodData > 0 || opts.MaskPixelQuality {
		if good, err = quality.Classify(s, f); err != nil {
			if structural(err) {
				return skip(SkipStructural, err)
			}
			return part{}, err
		}
	}

	filtered, err := masking.FilterGoodFraction(s, good, opts.MinGoodData)
	if err != nil {
		if structural(err) {
			return skip(SkipStructural, err)
		}
		return part{}, fmt.Errorf("filtering %s: %w", product, err)
	}
	s = filtered.Stack
	if s.Len() == 0 {
		return skip(SkipNoData, nil)
	}

	if s, err = masking.Apply(s, filtered.Mask, opts.masking(), a.logger); err != nil {
		if structural(err) {
			return skip(SkipStructural, err)
		}
		return part{}, fmt.Errorf("masking %s: %w", product, err)
	}

	if opts.ProductMetadata {
		labels := make([]string, s.Len())
		for i := range labels {
			labels[i] = product
		}
		if s, err = s.WithVariable(raster.NewLabelVariable("product", labels, nil)); err != nil {
			return part{}, err
		}
	}

	out.Kept = s.Len()
	a.logger.Debugw("product ready", "product", product, "found", out.Found, "kept", out.Kept)
	return part{stack: s, outcome: out}, nil
}

// dropSLCOff keeps observations up to the Landsat 7 scan-line-corrector failure.
func dropSLCOff(s *raster.Stack) (*raster.Stack, error) {
	var idx []int
	for i, t := range s.Times {
		if t.Before(slcFailure) {
			idx = append(idx, i)
		}
	}
	return s.Isel(idx)
}
