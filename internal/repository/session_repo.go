package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/esg-insight/internal/database"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// sessionRepo 会话仓储实现
type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepository 使用全局数据库连接创建会话仓储
func NewSessionRepository() SessionRepository {
	return &sessionRepo{db: database.MustDB()}
}

// NewSessionRepositoryWithDB 使用指定的数据库连接创建会话仓储
func NewSessionRepositoryWithDB(db *gorm.DB) SessionRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &sessionRepo{db: db}
}

// WithContext 创建带有上下文的仓储
func (r *sessionRepo) WithContext(ctx context.Context) SessionRepository {
	return &sessionRepo{db: r.db.WithContext(ctx)}
}

// CreateSession 创建会话，ID为空时生成UUID
func (r *sessionRepo) CreateSession(session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	return r.db.Create(session).Error
}

// GetSession 获取会话
func (r *sessionRepo) GetSession(id string) (*models.Session, error) {
	var session models.Session
	err := r.db.Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions 分页列出会话
func (r *sessionRepo) ListSessions(offset, limit int) ([]*models.Session, int64, error) {
	var sessions []*models.Session
	var total int64

	query := r.db.Model(&models.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// DeleteSession 删除会话及其所有轮次
func (r *sessionRepo) DeleteSession(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.Turn{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
		}
		return nil
	})
}

// AppendTurns 追加轮次并刷新会话更新时间
func (r *sessionRepo) AppendTurns(sessionID string, turns ...*models.Turn) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if len(turns) == 0 {
		return nil
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ?", sessionID).
			Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
		}

		for _, t := range turns {
			t.SessionID = sessionID
		}
		return tx.Create(turns).Error
	})
}

// ListTurns 按时间顺序列出轮次
func (r *sessionRepo) ListTurns(sessionID string) ([]*models.Turn, error) {
	if _, err := r.GetSession(sessionID); err != nil {
		return nil, err
	}

	var turns []*models.Turn
	err := r.db.Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&turns).Error
	return turns, err
}

// ClearTurns 清空会话轮次
func (r *sessionRepo) ClearTurns(sessionID string) error {
	if _, err := r.GetSession(sessionID); err != nil {
		return err
	}
	return r.db.Where("session_id = ?", sessionID).Delete(&models.Turn{}).Error
}
