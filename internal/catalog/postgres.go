package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/catapult/ardcube/internal/log"
	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/pkg/raster"
)

type productModel struct {
	Name      string    `gorm:"primaryKey;column:name"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
}

func (productModel) TableName() string { return "ard_products" }

type measurementModel struct {
	Product  string   `gorm:"primaryKey;column:product"`
	Name     string   `gorm:"primaryKey;column:name"`
	Position int      `gorm:"column:position;not null"`
	DType    string   `gorm:"column:dtype;not null"`
	Nodata   *float64 `gorm:"column:nodata"`
	Units    string   `gorm:"column:units;not null;default:''"`
}

func (measurementModel) TableName() string { return "ard_measurements" }

type datasetModel struct {
	ID      uuid.UUID `gorm:"primaryKey;type:uuid;column:id"`
	Product string    `gorm:"column:product;not null;index:idx_ard_datasets_product_time"`
	Time    time.Time `gorm:"column:time;not null;index:idx_ard_datasets_product_time"`
	CRS     string    `gorm:"column:crs;not null"`
	X0      float64   `gorm:"column:x0"`
	Y0      float64   `gorm:"column:y0"`
	Res     float64   `gorm:"column:res"`
	Width   int       `gorm:"column:width"`
	Height  int       `gorm:"column:height"`
}

func (datasetModel) TableName() string { return "ard_datasets" }

type bandModel struct {
	DatasetID   uuid.UUID `gorm:"primaryKey;type:uuid;column:dataset_id"`
	Measurement string    `gorm:"primaryKey;column:measurement"`
	Pixels      []byte    `gorm:"column:pixels;not null"`
}

func (bandModel) TableName() string { return "ard_bands" }

// Postgres is a catalog stored in PostgreSQL through gorm.
type Postgres struct {
	DB     *gorm.DB
	logger *zap.SugaredLogger
}

// NewPostgres connects to the database at dsn.
func NewPostgres(dsn string, l *zap.SugaredLogger) (*Postgres, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	l = log.OrNop(l)
	l.Info("connecting to PostgreSQL catalog...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to PostgreSQL catalog: %w", err)
	}
	return &Postgres{DB: db, logger: l}, nil
}

// Migrate creates or updates the catalog tables.
func (p *Postgres) Migrate() error {
	if err := p.DB.AutoMigrate(&productModel{}, &measurementModel{}, &datasetModel{}, &bandModel{}); err != nil {
		return fmt.Errorf("catalog migration failed: %w", err)
	}
	return nil
}

// AddProduct registers prod, replacing the measurements of an existing product of that name.
func (p *Postgres) AddProduct(ctx context.Context, prod Product) error {
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&productModel{Name: prod.Name}).Error; err != nil {
			return fmt.Errorf("failed to insert product %s: %w", prod.Name, err)
		}
		if err := tx.Where("product = ?", prod.Name).Delete(&measurementModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear measurements of %s: %w", prod.Name, err)
		}
		for i, m := range prod.Measurements {
			row := measurementModel{
				Product:  prod.Name,
				Name:     m.Name,
				Position: i,
				DType:    m.DType.String(),
				Nodata:   m.Nodata,
				Units:    m.Units,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to insert measurement %s of %s: %w", m.Name, prod.Name, err)
			}
		}
		return nil
	})
}

func (p *Postgres) product(ctx context.Context, name string) (Product, error) {
	var pm productModel
	err := p.DB.WithContext(ctx).Where("name = ?", name).First(&pm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, fmt.Errorf("%w: %s", ErrUnknownProduct, name)
	}
	if err != nil {
		return Product{}, fmt.Errorf("error querying product %s: %w", name, err)
	}

	var rows []measurementModel
	if err := p.DB.WithContext(ctx).Where("product = ?", name).Order("position").Find(&rows).Error; err != nil {
		return Product{}, fmt.Errorf("error querying measurements of %s: %w", name, err)
	}
	prod := Product{Name: name}
	for _, r := range rows {
		dtype, err := raster.ParseDType(r.DType)
		if err != nil {
			return Product{}, fmt.Errorf("measurement %s of %s: %w", r.Name, name, err)
		}
		prod.Measurements = append(prod.Measurements, Measurement{Name: r.Name, DType: dtype, Nodata: r.Nodata, Units: r.Units})
	}
	return prod, nil
}

// Index stores a dataset and its bands.
func (p *Postgres) Index(ctx context.Context, product string, d Dataset) error {
	prod, err := p.product(ctx, product)
	if err != nil {
		return err
	}
	if err := d.validate(prod); err != nil {
		return err
	}
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := datasetModel{
			ID:      d.ID,
			Product: product,
			Time:    d.Time.UTC(),
			CRS:     d.Grid.CRS,
			X0:      d.Grid.X0,
			Y0:      d.Grid.Y0,
			Res:     d.Grid.Res,
			Width:   d.Grid.Width,
			Height:  d.Grid.Height,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert dataset %s: %w", d.ID, err)
		}
		for name, pixels := range d.Bands {
			blob, err := encodeBand(pixels)
			if err != nil {
				return err
			}
			if err := tx.Create(&bandModel{DatasetID: d.ID, Measurement: name, Pixels: blob}).Error; err != nil {
				return fmt.Errorf("failed to insert band %s of dataset %s: %w", name, d.ID, err)
			}
		}
		return nil
	})
}

// Load implements Catalog.
func (p *Postgres) Load(ctx context.Context, product string, q query.Query) (*raster.Stack, error) {
	prod, err := p.product(ctx, product)
	if err != nil {
		return nil, err
	}

	tx := p.DB.WithContext(ctx).Where("product = ?", product)
	if q.Time != nil && !q.Time.Start.IsZero() {
		tx = tx.Where("time >= ?", q.Time.Start)
	}
	if q.Time != nil && !q.Time.End.IsZero() {
		tx = tx.Where("time <= ?", q.Time.End)
	}
	var rows []datasetModel
	if err := tx.Order("time").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error querying datasets of %s: %w", product, err)
	}

	recs := make([]record, len(rows))
	for i, r := range rows {
		recs[i] = record{
			id:    r.ID,
			time:  r.Time.UTC(),
			grid:  Grid{CRS: r.CRS, X0: r.X0, Y0: r.Y0, Res: r.Res, Width: r.Width, Height: r.Height},
			fetch: p.fetcher(r.ID),
		}
	}
	return assemble(ctx, prod, recs, q)
}

func (p *Postgres) fetcher(id uuid.UUID) func(context.Context, string) ([]float64, error) {
	return func(ctx context.Context, measurement string) ([]float64, error) {
		var b bandModel
		err := p.DB.WithContext(ctx).Where("dataset_id = ? AND measurement = ?", id, measurement).First(&b).Error
		if err != nil {
			return nil, fmt.Errorf("error querying band: %w", err)
		}
		return decodeBand(b.Pixels)
	}
}

// Close implements Catalog.
func (p *Postgres) Close() error {
	db, err := p.DB.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
