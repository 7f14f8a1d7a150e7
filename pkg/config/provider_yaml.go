package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Catalog CatalogYAML  `yaml:"catalog"`
		Quality []FamilyYAML `yaml:"quality,omitempty"`
		Load    LoadYAML     `yaml:"load"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Catalog: CatalogData{
			Backend:          yamlConfig.Catalog.Backend,
			Path:             yamlConfig.Catalog.Path,
			ConnectionString: yamlConfig.Catalog.ConnectionString,
		},
		Quality: make([]FamilyData, len(yamlConfig.Quality)),
	}
	if config.Catalog.Backend == "" {
		config.Catalog.Backend = CatalogSQLite
	}

	for i, family := range yamlConfig.Quality {
		config.Quality[i] = FamilyData{
			Name:     family.Name,
			Platform: family.Platform,
			Variable: family.Variable,
			Codes:    family.Codes,
			Prefixes: family.Prefixes,
		}
	}

	load := yamlConfig.Load
	config.Load = LoadData{
		Products:         load.Products,
		MinGoodData:      load.MinGoodData,
		FmaskGoodData:    load.FmaskGoodData,
		MaskPixelQuality: load.MaskPixelQuality,
		MaskInvalidData:  load.MaskInvalidData,
		MaskContiguity:   load.MaskContiguity,
		MaskDType:        load.MaskDType,
		LS7SLCOff:        load.LS7SLCOff,
		ProductMetadata:  load.ProductMetadata,
		Concurrency:      load.Concurrency,
		Query: QueryData{
			X:            load.Query.X,
			Y:            load.Query.Y,
			Time:         load.Query.Time,
			Resolution:   load.Query.Resolution,
			CRS:          load.Query.CRS,
			OutputCRS:    load.Query.OutputCRS,
			GroupBy:      load.Query.GroupBy,
			Measurements: load.Query.Measurements,
			Lazy:         load.Query.Lazy,
			Chunks:       load.Query.Chunks,
		},
	}

	y.config = config
	return config, nil
}

// GetCatalogConfig returns the catalog configuration
func (y *YAMLProvider) GetCatalogConfig() (*CatalogData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Catalog, nil
}

// GetQualityFamilies returns the configured sensor families
func (y *YAMLProvider) GetQualityFamilies() ([]FamilyData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return y.config.Quality, nil
}

// GetLoadConfig returns the load parameters
func (y *YAMLProvider) GetLoadConfig() (*LoadData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Load, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags
type CatalogYAML struct {
	Backend          string `yaml:"backend,omitempty"`
	Path             string `yaml:"path,omitempty"`
	ConnectionString string `yaml:"connection-string,omitempty"`
}

type FamilyYAML struct {
	Name     string   `yaml:"name"`
	Platform string   `yaml:"platform"`
	Variable string   `yaml:"variable"`
	Codes    []int    `yaml:"codes"`
	Prefixes []string `yaml:"prefixes"`
}

type LoadYAML struct {
	Products         []string  `yaml:"products"`
	MinGoodData      float64   `yaml:"min-gooddata,omitempty"`
	FmaskGoodData    []int     `yaml:"fmask-gooddata,omitempty"`
	MaskPixelQuality *bool     `yaml:"mask-pixel-quality,omitempty"`
	MaskInvalidData  *bool     `yaml:"mask-invalid-data,omitempty"`
	MaskContiguity   *string   `yaml:"mask-contiguity,omitempty"`
	MaskDType        string    `yaml:"mask-dtype,omitempty"`
	LS7SLCOff        *bool     `yaml:"ls7-slc-off,omitempty"`
	ProductMetadata  bool      `yaml:"product-metadata,omitempty"`
	Concurrency      int       `yaml:"concurrency,omitempty"`
	Query            QueryYAML `yaml:"query,omitempty"`
}

type QueryYAML struct {
	X            []float64      `yaml:"x,omitempty"`
	Y            []float64      `yaml:"y,omitempty"`
	Time         []string       `yaml:"time,omitempty"`
	Resolution   []float64      `yaml:"resolution,omitempty"`
	CRS          string         `yaml:"crs,omitempty"`
	OutputCRS    string         `yaml:"output-crs,omitempty"`
	GroupBy      string         `yaml:"group-by,omitempty"`
	Measurements []string       `yaml:"measurements,omitempty"`
	Lazy         bool           `yaml:"lazy,omitempty"`
	Chunks       map[string]int `yaml:"dask-chunks,omitempty"`
}
