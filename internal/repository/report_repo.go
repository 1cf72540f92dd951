package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyerfyer/esg-insight/internal/database"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// reportRepo 报告仓储实现
type reportRepo struct {
	db *gorm.DB
}

// NewReportRepository 使用全局数据库连接创建报告仓储
func NewReportRepository() ReportRepository {
	return &reportRepo{db: database.MustDB()}
}

// NewReportRepositoryWithDB 使用指定的数据库连接创建报告仓储
func NewReportRepositoryWithDB(db *gorm.DB) ReportRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &reportRepo{db: db}
}

// WithContext 创建带有上下文的仓储
func (r *reportRepo) WithContext(ctx context.Context) ReportRepository {
	return &reportRepo{db: r.db.WithContext(ctx)}
}

// Create 创建报告记录
func (r *reportRepo) Create(report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	return r.db.Create(report).Error
}

// Update 更新报告记录
func (r *reportRepo) Update(report *models.Report) error {
	if report.ID == "" {
		return errors.New("report ID cannot be empty")
	}
	return r.db.Save(report).Error
}

// GetByID 根据ID获取报告
func (r *reportRepo) GetByID(id string) (*models.Report, error) {
	var report models.Report
	err := r.db.Where("id = ?", id).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// List 分页列出报告
func (r *reportRepo) List(offset, limit int, status models.ReportStatus) ([]*models.Report, int64, error) {
	var reports []*models.Report
	var total int64

	query := r.db.Model(&models.Report{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// Delete 删除报告记录
func (r *reportRepo) Delete(id string) error {
	res := r.db.Where("id = ?", id).Delete(&models.Report{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
	}
	return nil
}
