package repository

import (
	"context"

	"github.com/fyerfyer/esg-insight/internal/models"
)

// SessionRepository 会话仓储接口
// 负责会话和对话轮次的存储
type SessionRepository interface {
	// CreateSession 创建会话
	CreateSession(session *models.Session) error

	// GetSession 获取会话
	GetSession(id string) (*models.Session, error)

	// ListSessions 分页列出会话，按更新时间倒序
	ListSessions(offset, limit int) ([]*models.Session, int64, error)

	// DeleteSession 删除会话及其所有轮次
	DeleteSession(id string) error

	// AppendTurns 在一个事务中追加轮次
	AppendTurns(sessionID string, turns ...*models.Turn) error

	// ListTurns 按时间顺序列出会话轮次
	ListTurns(sessionID string) ([]*models.Turn, error)

	// ClearTurns 清空会话轮次但保留会话
	ClearTurns(sessionID string) error

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) SessionRepository
}

// ReportRepository 报告仓储接口
type ReportRepository interface {
	// Create 创建报告记录
	Create(report *models.Report) error

	// Update 更新报告记录
	Update(report *models.Report) error

	// GetByID 根据ID获取报告
	GetByID(id string) (*models.Report, error)

	// List 分页列出报告，可按状态筛选
	List(offset, limit int, status models.ReportStatus) ([]*models.Report, int64, error)

	// Delete 删除报告记录
	Delete(id string) error

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) ReportRepository
}

// IndexRepository 索引清单仓储接口
type IndexRepository interface {
	// Upsert 创建或替换索引清单
	Upsert(record *models.IndexRecord) error

	// Get 获取索引清单
	Get(indexID string) (*models.IndexRecord, error)

	// List 列出所有索引清单
	List() ([]*models.IndexRecord, error)

	// Delete 删除索引清单
	Delete(indexID string) error

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) IndexRepository
}
