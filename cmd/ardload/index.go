package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/catapult/ardcube/internal/catalog"
	"github.com/catapult/ardcube/internal/log"
)

// manifest is a YAML document of product definitions and the datasets to index under them.
type manifest struct {
	Products []catalog.Product `yaml:"products"`
	Datasets []struct {
		Product         string `yaml:"product"`
		catalog.Dataset `yaml:",inline"`
	} `yaml:"datasets"`
}

var indexCmd = &cobra.Command{
	Use:   "index MANIFEST...",
	Short: "Add products and datasets from YAML manifests to the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile, cfgBackend)
		if err != nil {
			return err
		}
		c, err := openCatalog(cfg.Catalog)
		if err != nil {
			return err
		}
		defer c.Close()
		return indexManifests(cmd.Context(), c, args)
	},
}

func indexManifests(ctx context.Context, s store, paths []string) error {
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var m manifest
		if err := yaml.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("parsing manifest %s: %w", path, err)
		}
		for _, p := range m.Products {
			if err := s.AddProduct(ctx, p); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		for _, d := range m.Datasets {
			if err := s.Index(ctx, d.Product, d.Dataset); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Debugw("indexed dataset", "product", d.Product, "time", d.Time)
		}
		log.Infow("indexed manifest", "path", path, "products", len(m.Products), "datasets", len(m.Datasets))
	}
	return nil
}
