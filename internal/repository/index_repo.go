package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/esg-insight/internal/database"
	"github.com/fyerfyer/esg-insight/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// indexRepo 索引清单仓储实现
type indexRepo struct {
	db *gorm.DB
}

// NewIndexRepository 使用全局数据库连接创建索引清单仓储
func NewIndexRepository() IndexRepository {
	return &indexRepo{db: database.MustDB()}
}

// NewIndexRepositoryWithDB 使用指定的数据库连接创建索引清单仓储
func NewIndexRepositoryWithDB(db *gorm.DB) IndexRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &indexRepo{db: db}
}

// WithContext 创建带有上下文的仓储
func (r *indexRepo) WithContext(ctx context.Context) IndexRepository {
	return &indexRepo{db: r.db.WithContext(ctx)}
}

// Upsert 按索引ID整体替换清单
func (r *indexRepo) Upsert(record *models.IndexRecord) error {
	if record.IndexID == "" {
		return errors.New("index ID cannot be empty")
	}
	record.UpdatedAt = time.Now()
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "index_id"}},
		UpdateAll: true,
	}).Create(record).Error
}

// Get 获取索引清单
func (r *indexRepo) Get(indexID string) (*models.IndexRecord, error) {
	var record models.IndexRecord
	err := r.db.Where("index_id = ?", indexID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrIndexRecordNotFound, indexID)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List 按构建时间倒序列出索引清单
func (r *indexRepo) List() ([]*models.IndexRecord, error) {
	var records []*models.IndexRecord
	err := r.db.Order("built_at DESC").Find(&records).Error
	return records, err
}

// Delete 删除索引清单
func (r *indexRepo) Delete(indexID string) error {
	res := r.db.Where("index_id = ?", indexID).Delete(&models.IndexRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrIndexRecordNotFound, indexID)
	}
	return nil
}
