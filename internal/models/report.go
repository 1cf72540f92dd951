package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReportStatus 报告处理状态
type ReportStatus string

const (
	// ReportStatusScored 已提取并评分
	ReportStatusScored ReportStatus = "scored"
	// ReportStatusIndexed 已评分并建立索引
	ReportStatusIndexed ReportStatus = "indexed"
	// ReportStatusFailed 处理失败
	ReportStatusFailed ReportStatus = "failed"
)

// Report 上传的ESG报告及其评分
type Report struct {
	ID            string         `gorm:"primaryKey"`
	FileName      string         `gorm:"not null"`
	FileType      string         `gorm:"not null"`
	StoragePath   string         `gorm:"not null"`
	FileSize      int64          `gorm:"not null"`
	TextLength    int            `gorm:"not null;default:0"` // 提取文本的字符数
	Environmental float64        `gorm:"not null;default:0"`
	Social        float64        `gorm:"not null;default:0"`
	Governance    float64        `gorm:"not null;default:0"`
	MatchedTerms  datatypes.JSON `gorm:"type:json"` // 各类别命中的关键词次数
	IndexID       string         `gorm:"index"`
	Status        ReportStatus   `gorm:"not null;index"`
	Error         string         `gorm:"type:text"`
	UploadedAt    time.Time      `gorm:"not null;index"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

// BeforeCreate 创建前设置时间
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if r.UploadedAt.IsZero() {
		r.UploadedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// BeforeUpdate 更新前刷新更新时间
func (r *Report) BeforeUpdate(tx *gorm.DB) error {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName 表名
func (Report) TableName() string {
	return "reports"
}
