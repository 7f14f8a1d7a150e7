package config

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS catalog_settings (
	id                INTEGER PRIMARY KEY CHECK (id = 1),
	backend           TEXT NOT NULL,
	path              TEXT,
	connection_string TEXT
);
CREATE TABLE IF NOT EXISTS quality_families (
	name     TEXT PRIMARY KEY,
	platform TEXT NOT NULL,
	variable TEXT NOT NULL,
	codes    TEXT NOT NULL,
	prefixes TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS load_settings (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	min_gooddata       REAL NOT NULL DEFAULT 0,
	fmask_gooddata     TEXT,
	mask_pixel_quality INTEGER,
	mask_invalid_data  INTEGER,
	mask_contiguity    TEXT,
	mask_dtype         TEXT,
	ls7_slc_off        INTEGER,
	product_metadata   INTEGER NOT NULL DEFAULT 0,
	concurrency        INTEGER NOT NULL DEFAULT 0,
	query              TEXT
);
CREATE TABLE IF NOT EXISTS load_products (
	position INTEGER PRIMARY KEY,
	product  TEXT NOT NULL
);
`

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create config schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	catalog, err := s.GetCatalogConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog config: %w", err)
	}
	config.Catalog = *catalog

	families, err := s.GetQualityFamilies()
	if err != nil {
		return nil, fmt.Errorf("failed to load quality families: %w", err)
	}
	config.Quality = families

	load, err := s.GetLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load load settings: %w", err)
	}
	config.Load = *load

	return config, nil
}

// GetCatalogConfig returns the catalog configuration from the database
func (s *SQLiteProvider) GetCatalogConfig() (*CatalogData, error) {
	var path, connectionString sql.NullString
	catalog := &CatalogData{}
	err := s.db.QueryRow(`SELECT backend, path, connection_string FROM catalog_settings WHERE id = 1`).
		Scan(&catalog.Backend, &path, &connectionString)
	if errors.Is(err, sql.ErrNoRows) {
		return &CatalogData{Backend: CatalogSQLite}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog settings: %w", err)
	}
	catalog.Path = path.String
	catalog.ConnectionString = connectionString.String
	return catalog, nil
}

// GetQualityFamilies returns the configured sensor families from the database
func (s *SQLiteProvider) GetQualityFamilies() ([]FamilyData, error) {
	rows, err := s.db.Query(`SELECT name, platform, variable, codes, prefixes FROM quality_families ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality families: %w", err)
	}
	defer rows.Close()

	var families []FamilyData
	for rows.Next() {
		var f FamilyData
		var codes, prefixes string
		if err := rows.Scan(&f.Name, &f.Platform, &f.Variable, &codes, &prefixes); err != nil {
			return nil, fmt.Errorf("failed to scan quality family row: %w", err)
		}
		if err := json.Unmarshal([]byte(codes), &f.Codes); err != nil {
			return nil, fmt.Errorf("quality family %s codes: %w", f.Name, err)
		}
		if err := json.Unmarshal([]byte(prefixes), &f.Prefixes); err != nil {
			return nil, fmt.Errorf("quality family %s prefixes: %w", f.Name, err)
		}
		families = append(families, f)
	}
	return families, rows.Err()
}

// GetLoadConfig returns the load parameters from the database
func (s *SQLiteProvider) GetLoadConfig() (*LoadData, error) {
	load := &LoadData{}

	var (
		fmaskGoodData, maskContiguity, maskDType, query sql.NullString
		maskPixelQuality, maskInvalidData, ls7SLCOff    sql.NullBool
	)
	err := s.db.QueryRow(`
		SELECT min_gooddata, fmask_gooddata, mask_pixel_quality, mask_invalid_data,
		       mask_contiguity, mask_dtype, ls7_slc_off, product_metadata, concurrency, query
		FROM load_settings WHERE id = 1
	`).Scan(
		&load.MinGoodData, &fmaskGoodData, &maskPixelQuality, &maskInvalidData,
		&maskContiguity, &maskDType, &ls7SLCOff, &load.ProductMetadata, &load.Concurrency, &query,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to query load settings: %w", err)
	default:
		if fmaskGoodData.Valid {
			if err := json.Unmarshal([]byte(fmaskGoodData.String), &load.FmaskGoodData); err != nil {
				return nil, fmt.Errorf("fmask_gooddata: %w", err)
			}
		}
		if query.Valid {
			if err := json.Unmarshal([]byte(query.String), &load.Query); err != nil {
				return nil, fmt.Errorf("query: %w", err)
			}
		}
		if maskPixelQuality.Valid {
			load.MaskPixelQuality = &maskPixelQuality.Bool
		}
		if maskInvalidData.Valid {
			load.MaskInvalidData = &maskInvalidData.Bool
		}
		if ls7SLCOff.Valid {
			load.LS7SLCOff = &ls7SLCOff.Bool
		}
		if maskContiguity.Valid {
			load.MaskContiguity = &maskContiguity.String
		}
		load.MaskDType = maskDType.String
	}

	rows, err := s.db.Query(`SELECT product FROM load_products ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query load products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var product string
		if err := rows.Scan(&product); err != nil {
			return nil, fmt.Errorf("failed to scan load product row: %w", err)
		}
		load.Products = append(load.Products, product)
	}
	return load, rows.Err()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig saves complete configuration to the database
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Clear existing data
	for _, table := range []string{"catalog_settings", "quality_families", "load_settings", "load_products"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	c := configData.Catalog
	_, err = tx.Exec(`INSERT INTO catalog_settings (id, backend, path, connection_string) VALUES (1, ?, ?, ?)`,
		c.Backend, nullString(c.Path), nullString(c.ConnectionString))
	if err != nil {
		return fmt.Errorf("failed to insert catalog settings: %w", err)
	}

	for _, f := range configData.Quality {
		if err := insertFamily(tx, f); err != nil {
			return fmt.Errorf("failed to insert quality family %s: %w", f.Name, err)
		}
	}

	if err := insertLoad(tx, &configData.Load); err != nil {
		return fmt.Errorf("failed to insert load settings: %w", err)
	}

	// Commit transaction
	return tx.Commit()
}

func insertFamily(tx *sql.Tx, f FamilyData) error {
	codes, err := json.Marshal(f.Codes)
	if err != nil {
		return err
	}
	prefixes, err := json.Marshal(f.Prefixes)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO quality_families (name, platform, variable, codes, prefixes) VALUES (?, ?, ?, ?, ?)`,
		f.Name, f.Platform, f.Variable, string(codes), string(prefixes))
	return err
}

func insertLoad(tx *sql.Tx, load *LoadData) error {
	query, err := json.Marshal(load.Query)
	if err != nil {
		return err
	}
	var fmaskGoodData sql.NullString
	if len(load.FmaskGoodData) > 0 {
		b, err := json.Marshal(load.FmaskGoodData)
		if err != nil {
			return err
		}
		fmaskGoodData = sql.NullString{String: string(b), Valid: true}
	}
	var maskContiguity sql.NullString
	if load.MaskContiguity != nil {
		maskContiguity = sql.NullString{String: *load.MaskContiguity, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO load_settings (
			id, min_gooddata, fmask_gooddata, mask_pixel_quality, mask_invalid_data,
			mask_contiguity, mask_dtype, ls7_slc_off, product_metadata, concurrency, query
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		load.MinGoodData, fmaskGoodData, nullBool(load.MaskPixelQuality), nullBool(load.MaskInvalidData),
		maskContiguity, nullString(load.MaskDType), nullBool(load.LS7SLCOff), load.ProductMetadata,
		load.Concurrency, string(query),
	)
	if err != nil {
		return err
	}

	for i, product := range load.Products {
		if _, err := tx.Exec(`INSERT INTO load_products (position, product) VALUES (?, ?)`, i, product); err != nil {
			return fmt.Errorf("product %s: %w", product, err)
		}
	}
	return nil
}

// Helper functions for handling nullable fields
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{Valid: false}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
