// Package loader requests one product's observations from the catalog. Loads are always
// deferred at the catalog so quality decisions can be made before pixels are read; the mode
// the caller asked for is returned alongside and applied once filtering is done.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/catapult/ardcube/internal/catalog"
	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/pkg/raster"
)

// MissingBandError reports a requested measurement that a product does not have. Products is
// the full product list of the request so the caller can correct the query.
type MissingBandError struct {
	Band     string
	Products []string
}

func (e *MissingBandError) Error() string {
	return fmt.Sprintf("band %q does not exist in this product; verify all requested measurements exist in [%s]",
		e.Band, strings.Join(e.Products, ", "))
}

// Is makes errors.Is(err, catalog.ErrMissingMeasurement) true.
func (e *MissingBandError) Is(target error) bool {
	return target == catalog.ErrMissingMeasurement
}

// Loader loads products from a catalog.
type Loader struct {
	catalog catalog.Catalog
	logger  *zap.SugaredLogger
}

// New returns a loader reading from c.
func New(c catalog.Catalog, logger *zap.SugaredLogger) *Loader {
	return &Loader{catalog: c, logger: log.OrNop(logger)}
}

// Load returns a deferred stack for product and the execution mode q asks for.
func (l *Loader) Load(ctx context.Context, product string, q query.Query) (*raster.Stack, raster.Mode, error) {
	mode := raster.Eager
	if q.Deferred() {
		mode = raster.Deferred
	}

	dq := q.Clone()
	dq.Lazy = true
	s, err := l.catalog.Load(ctx, product, dq)
	if err != nil {
		var mm *catalog.MissingMeasurementError
		if errors.As(err, &mm) {
			return nil, mode, &MissingBandError{Band: mm.Measurement, Products: []string{product}}
		}
		return nil, mode, fmt.Errorf("loading %s: %w", product, err)
	}

	l.logger.Infow("loaded product", "product", product, "observations", s.Len(), "mode", mode)
	return s, mode, nil
}
