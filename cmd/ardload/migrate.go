package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catapult/ardcube/internal/catalog"
	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/pkg/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the catalog schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile, cfgBackend)
		if err != nil {
			return err
		}
		return migrateCatalog(cfg.Catalog)
	},
}

func migrateCatalog(c config.CatalogData) error {
	logger := log.Named("catalog")
	switch c.Backend {
	case config.CatalogSQLite, "":
		s, err := catalog.NewSQLite(c.Path, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Migrate(); err != nil {
			return err
		}
	case config.CatalogPostgres:
		pg, err := catalog.NewPostgres(c.ConnectionString, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(); err != nil {
			return err
		}
	case config.CatalogMemory:
		return fmt.Errorf("the memory catalog has no schema to migrate")
	default:
		return fmt.Errorf("unsupported catalog backend: %s", c.Backend)
	}
	log.Infow("catalog schema is up to date", "backend", c.Backend)
	return nil
}
