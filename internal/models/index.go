package models

import (
	"time"

	"gorm.io/datatypes"
)

// IndexRecord 索引清单，记录每次构建使用的嵌入模型和版本
type IndexRecord struct {
	IndexID    string         `gorm:"primaryKey"`
	Model      string         `gorm:"not null"`
	Dimension  int            `gorm:"not null"`
	ChunkCount int            `gorm:"not null"`
	Version    string         `gorm:"not null"`
	Sources    datatypes.JSON `gorm:"type:json"` // 参与构建的来源ID列表
	BuiltAt    time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

// TableName 表名
func (IndexRecord) TableName() string {
	return "index_records"
}
