package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"voicecaption/models"
)

// AssetRecord is the persisted form of a media asset
type AssetRecord struct {
	ID        string    `gorm:"primaryKey;size:96"`
	RequestID string    `gorm:"index;size:64;not null"`
	Path      string    `gorm:"uniqueIndex;not null"`
	Kind      string    `gorm:"size:32;not null"`
	Size      int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	DeletedAt gorm.DeletedAt
}

// TableName pins the table name
func (AssetRecord) TableName() string { return "media_assets" }

func recordFromAsset(a models.MediaAsset) AssetRecord {
	return AssetRecord{
		ID:        a.ID,
		RequestID: a.RequestID,
		Path:      a.Path,
		Kind:      string(a.Kind),
		Size:      a.Size,
		CreatedAt: a.CreatedAt,
	}
}

func (r AssetRecord) asset() models.MediaAsset {
	return models.MediaAsset{
		ID:        r.ID,
		RequestID: r.RequestID,
		Path:      r.Path,
		Kind:      models.AssetKind(r.Kind),
		Size:      r.Size,
		CreatedAt: r.CreatedAt,
	}
}

// GormCatalog stores assets in PostgreSQL through gorm.
// Deletes are soft so a deleted asset's path stays reserved by the unique index.
type GormCatalog struct {
	db *gorm.DB
}

// OpenGormCatalog connects to PostgreSQL and migrates the schema
func OpenGormCatalog(dsn string, log zerolog.Logger) (*GormCatalog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(&log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewGormCatalog(db)
}

// NewGormCatalog wraps an existing gorm handle
func NewGormCatalog(db *gorm.DB) (*GormCatalog, error) {
	if err := db.AutoMigrate(&AssetRecord{}); err != nil {
		return nil, fmt.Errorf("migrate media_assets: %w", err)
	}
	return &GormCatalog{db: db}, nil
}

func (c *GormCatalog) Save(ctx context.Context, asset models.MediaAsset) error {
	rec := recordFromAsset(asset)
	if err := c.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrDuplicatePath
		}
		return fmt.Errorf("save asset %s: %w", asset.ID, err)
	}
	return nil
}

func (c *GormCatalog) Get(ctx context.Context, id string) (models.MediaAsset, error) {
	var rec AssetRecord
	err := c.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.MediaAsset{}, models.ErrAssetNotFound
	}
	if err != nil {
		return models.MediaAsset{}, fmt.Errorf("get asset %s: %w", id, err)
	}
	return rec.asset(), nil
}

func (c *GormCatalog) Delete(ctx context.Context, id string) error {
	res := c.db.WithContext(ctx).Where("id = ?", id).Delete(&AssetRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete asset %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrAssetNotFound
	}
	return nil
}

func (c *GormCatalog) ListByRequest(ctx context.Context, requestID string) ([]models.MediaAsset, error) {
	var recs []AssetRecord
	err := c.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at asc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list assets for %s: %w", requestID, err)
	}
	result := make([]models.MediaAsset, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.asset())
	}
	return result, nil
}
