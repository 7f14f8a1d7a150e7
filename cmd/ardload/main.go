// Command ardload loads analysis-ready observations from a dataset catalog and reports what
// the quality filters kept.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/catapult/ardcube/internal/catalog"
	"github.com/catapult/ardcube/internal/constants"
	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/pkg/config"
)

var (
	cfgFile    string
	cfgBackend string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "ardload",
	Short:         "Load quality-filtered satellite observations",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Init(debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ardload %s\n", constants.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Path to configuration source (YAML file or SQLite database)")
	rootCmd.PersistentFlags().StringVar(&cfgBackend, "config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Turn on debugging output")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("ardload: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error

	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the --config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}

// store is a catalog that can also take new products and datasets.
type store interface {
	catalog.Catalog
	AddProduct(ctx context.Context, p catalog.Product) error
	Index(ctx context.Context, product string, d catalog.Dataset) error
}

// memoryStore gives the in-memory catalog the error-returning AddProduct of the database
// backends.
type memoryStore struct {
	*catalog.Memory
}

func (m memoryStore) AddProduct(_ context.Context, p catalog.Product) error {
	m.Memory.AddProduct(p)
	return nil
}

// openCatalog opens the configured catalog backend, applying migrations for the database
// backends.
func openCatalog(c config.CatalogData) (store, error) {
	logger := log.Named("catalog")
	switch c.Backend {
	case config.CatalogMemory:
		return memoryStore{catalog.NewMemory()}, nil
	case config.CatalogSQLite, "":
		if c.Path == "" {
			return nil, fmt.Errorf("sqlite catalog needs a path")
		}
		return catalog.NewSQLite(c.Path, logger)
	case config.CatalogPostgres:
		if c.ConnectionString == "" {
			return nil, fmt.Errorf("postgres catalog needs a connection-string")
		}
		pg, err := catalog.NewPostgres(c.ConnectionString, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
	return nil, fmt.Errorf("unsupported catalog backend: %s", c.Backend)
}
