package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/pkg/raster"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLite is a catalog stored in a single SQLite file. Band pixels are kept as msgpack blobs.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
}

// NewSQLite opens the catalog at path and brings its schema up to date.
func NewSQLite(path string, logger *zap.SugaredLogger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite catalog: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLite{db: db, path: path, logger: log.OrNop(logger)}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate runs all pending schema migrations.
func (s *SQLite) Migrate() error {
	src, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: s.logger}
	// m is not closed: that would close s.db.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	s.logger.Debugw("catalog schema ready", "path", s.path, "version", version)
	return nil
}

type migrateLogger struct {
	logger *zap.SugaredLogger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// AddProduct registers p, replacing the measurements of an existing product of that name.
func (s *SQLite) AddProduct(ctx context.Context, p Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO products (name) VALUES (?)`, p.Name); err != nil {
		return fmt.Errorf("failed to insert product %s: %w", p.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM measurements WHERE product = ?`, p.Name); err != nil {
		return fmt.Errorf("failed to clear measurements of %s: %w", p.Name, err)
	}
	for i, m := range p.Measurements {
		var nodata sql.NullFloat64
		if m.Nodata != nil {
			nodata = sql.NullFloat64{Float64: *m.Nodata, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO measurements (product, position, name, dtype, nodata, units) VALUES (?, ?, ?, ?, ?, ?)`,
			p.Name, i, m.Name, m.DType.String(), nodata, m.Units)
		if err != nil {
			return fmt.Errorf("failed to insert measurement %s of %s: %w", m.Name, p.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) product(ctx context.Context, name string) (Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, dtype, nodata, units FROM measurements WHERE product = ? ORDER BY position`, name)
	if err != nil {
		return Product{}, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	p := Product{Name: name}
	for rows.Next() {
		var (
			m      Measurement
			dtype  string
			nodata sql.NullFloat64
		)
		if err := rows.Scan(&m.Name, &dtype, &nodata, &m.Units); err != nil {
			return Product{}, fmt.Errorf("failed to scan measurement: %w", err)
		}
		if m.DType, err = raster.ParseDType(dtype); err != nil {
			return Product{}, fmt.Errorf("measurement %s of %s: %w", m.Name, name, err)
		}
		if nodata.Valid {
			v := nodata.Float64
			m.Nodata = &v
		}
		p.Measurements = append(p.Measurements, m)
	}
	if err := rows.Err(); err != nil {
		return Product{}, err
	}

	if len(p.Measurements) == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE name = ?`, name).Scan(&exists)
		if err != nil {
			return Product{}, fmt.Errorf("failed to query product: %w", err)
		}
		if exists == 0 {
			return Product{}, fmt.Errorf("%w: %s", ErrUnknownProduct, name)
		}
	}
	return p, nil
}

// Index stores a dataset and its bands.
func (s *SQLite) Index(ctx context.Context, product string, d Dataset) error {
	p, err := s.product(ctx, product)
	if err != nil {
		return err
	}
	if err := d.validate(p); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	g := d.Grid
	_, err = tx.ExecContext(ctx,
		`INSERT INTO datasets (id, product, time_ns, crs, x0, y0, res, width, height) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), product, d.Time.UnixNano(), g.CRS, g.X0, g.Y0, g.Res, g.Width, g.Height)
	if err != nil {
		return fmt.Errorf("failed to insert dataset %s: %w", d.ID, err)
	}
	for name, pixels := range d.Bands {
		blob, err := encodeBand(pixels)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO bands (dataset_id, measurement, pixels) VALUES (?, ?, ?)`, d.ID.String(), name, blob)
		if err != nil {
			return fmt.Errorf("failed to insert band %s of dataset %s: %w", name, d.ID, err)
		}
	}
	return tx.Commit()
}

// Load implements Catalog.
func (s *SQLite) Load(ctx context.Context, product string, q query.Query) (*raster.Stack, error) {
	p, err := s.product(ctx, product)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time_ns, crs, x0, y0, res, width, height FROM datasets WHERE product = ? ORDER BY time_ns`, product)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var recs []record
	for rows.Next() {
		var (
			id     string
			timeNS int64
			r      record
		)
		g := &r.grid
		if err := rows.Scan(&id, &timeNS, &g.CRS, &g.X0, &g.Y0, &g.Res, &g.Width, &g.Height); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		if r.id, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("dataset id %q: %w", id, err)
		}
		r.time = time.Unix(0, timeNS).UTC()
		r.fetch = s.fetcher(id)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assemble(ctx, p, recs, q)
}

func (s *SQLite) fetcher(datasetID string) func(context.Context, string) ([]float64, error) {
	return func(ctx context.Context, measurement string) ([]float64, error) {
		var blob []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT pixels FROM bands WHERE dataset_id = ? AND measurement = ?`, datasetID, measurement).Scan(&blob)
		if err != nil {
			return nil, fmt.Errorf("failed to read band: %w", err)
		}
		return decodeBand(blob)
	}
}

// Close implements Catalog.
func (s *SQLite) Close() error {
	return s.db.Close()
}
