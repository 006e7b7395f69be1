package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/quality-check/internal/config"
	"github.com/example/quality-check/internal/prediction"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "analysis_records"

// AnalysisRecord is one persisted classification of a stored image.
// ImageKey is indexed but not unique: analysing the same key twice stores
// two records.
type AnalysisRecord struct {
	ID            uint                  `gorm:"primaryKey" json:"-"`
	ImageKey      string                `gorm:"column:image_key;size:1024;not null;index" json:"imageKey"`
	Status        string                `gorm:"column:status;size:255" json:"status"`
	Confidence    prediction.Confidence `gorm:"column:confidence;size:64" json:"confidence"`
	RawPrediction int                   `gorm:"column:raw_prediction" json:"rawPrediction"`
	UploadDate    string                `gorm:"column:upload_date;size:32;index" json:"uploadDate"`
	ImageURL      string                `gorm:"column:image_url;size:2048" json:"imageUrl"`
}

// TableName overrides the default table name.
func (AnalysisRecord) TableName() string {
	return DefaultTable
}

// Open connects gorm to the configured record store.
func Open(ctx context.Context, driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported record store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// AnalysisRepository stores and scans analysis records.
type AnalysisRepository struct {
	db     *gorm.DB
	table  string
	logger *zap.Logger
}

// NewAnalysisRepository creates a repository writing to table.
func NewAnalysisRepository(db *gorm.DB, table string, logger *zap.Logger) *AnalysisRepository {
	if table == "" {
		table = DefaultTable
	}
	return &AnalysisRepository{db: db, table: table, logger: logger.Named("analysis_repository")}
}

// AutoMigrate ensures the schema is available.
func (r *AnalysisRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).Table(r.table).AutoMigrate(&AnalysisRecord{})
}

// Save inserts record. It never updates an existing row.
func (r *AnalysisRepository) Save(ctx context.Context, record *AnalysisRecord) error {
	return r.db.WithContext(ctx).Table(r.table).Create(record).Error
}

// ScanAll reads every record in storage order.
func (r *AnalysisRepository) ScanAll(ctx context.Context) ([]AnalysisRecord, error) {
	var records []AnalysisRecord
	if err := r.db.WithContext(ctx).Table(r.table).Find(&records).Error; err != nil {
		return nil, err
	}
	r.logger.Debug("scanned analysis records", zap.Int("count", len(records)), zap.String("table", r.table))
	return records, nil
}
