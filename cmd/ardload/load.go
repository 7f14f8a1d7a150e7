package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/catapult/ardcube/internal/ard"
	"github.com/catapult/ardcube/internal/composite"
	"github.com/catapult/ardcube/internal/loader"
	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/pkg/config"
	"github.com/catapult/ardcube/pkg/raster"
)

var (
	indexFiles []string
	median     []string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load, filter and mask the configured products",
	Long: `Load every configured product from the catalog, drop observations below the
good-data threshold, mask poor quality pixels and print a summary of the combined stack.

With --median the cleaned stack is also reduced to a per-pixel median of the named
measurements.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile, cfgBackend)
		if err != nil {
			return err
		}
		return runLoad(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func init() {
	loadCmd.Flags().StringSliceVar(&indexFiles, "index", nil, "YAML manifests to index before loading")
	loadCmd.Flags().StringSliceVar(&median, "median", nil, "Measurements to reduce to a per-pixel median composite")
}

func runLoad(ctx context.Context, cfg *config.ConfigData, w io.Writer) error {
	table, err := cfg.QualityTable()
	if err != nil {
		return err
	}
	opts, err := cfg.LoadOptions()
	if err != nil {
		return err
	}

	c, err := openCatalog(cfg.Catalog)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := indexManifests(ctx, c, indexFiles); err != nil {
		return err
	}

	agg := ard.New(loader.New(c, log.Named("loader")), table, log.Named("ard"))
	res, err := agg.Aggregate(ctx, opts)
	if err != nil {
		return err
	}
	if err := printOutcomes(w, res); err != nil {
		return err
	}
	if res.Empty() {
		fmt.Fprintln(w, "no data returned for query")
		return nil
	}
	printStack(w, "result", res.Data)

	if len(median) == 0 {
		return nil
	}
	family, err := table.Resolve(opts.Products[0])
	if err != nil {
		return err
	}
	composited, err := composite.Geomedian(ctx, res.Data, family, median, composite.BandMedian{})
	if err != nil {
		return err
	}
	printStack(w, "median", composited)
	return nil
}

func printOutcomes(w io.Writer, res *ard.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tFOUND\tKEPT\tSKIPPED")
	for _, o := range res.Outcomes {
		skip := o.Skip.String()
		if o.Err != nil {
			skip = fmt.Sprintf("%s: %v", skip, o.Err)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", o.Product, o.Found, o.Kept, skip)
	}
	return tw.Flush()
}

func printStack(w io.Writer, title string, s *raster.Stack) {
	shape := s.Shape()
	fmt.Fprintf(w, "%s: %d observations, %d x %d pixels, %s\n", title, shape.T, shape.Y, shape.X, s.Mode())
	for _, v := range s.Vars() {
		fmt.Fprintf(w, "  %-24s %s\n", v.Name, v.DType)
	}
}
