package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TurnRole 对话轮次的角色
type TurnRole string

const (
	// RoleUser 用户提问
	RoleUser TurnRole = "user"
	// RoleAssistant 模型回答
	RoleAssistant TurnRole = "assistant"
)

// Session 问答会话
type Session struct {
	ID        string         `gorm:"primaryKey"`
	Title     string         `gorm:"not null"`
	IndexID   string         `gorm:"index"` // 默认提问的索引，可为空
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
	Metadata  datatypes.JSON `gorm:"type:json"`
}

// BeforeCreate 创建前设置时间
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return nil
}

// TableName 表名
func (Session) TableName() string {
	return "sessions"
}

// Turn 会话中的一轮消息，只追加不修改
type Turn struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	SessionID string         `gorm:"not null;index"`
	Role      TurnRole       `gorm:"not null;type:varchar(20)"`
	Content   string         `gorm:"type:text;not null"`
	Mode      string         `gorm:"type:varchar(20)"`
	Sources   datatypes.JSON `gorm:"type:json"` // 回答引用的片段
	CreatedAt time.Time      `gorm:"not null"`
}

// BeforeCreate 创建前设置时间
func (t *Turn) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return nil
}

// TableName 表名
func (Turn) TableName() string {
	return "session_turns"
}
