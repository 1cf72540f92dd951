package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/esg-insight/internal/llm"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/fyerfyer/esg-insight/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// SessionService 会话服务
// 负责会话的持久化，以及与检索服务之间的 Session 装载和回写
type SessionService struct {
	repo   repository.SessionRepository
	logger *logrus.Logger
}

// SessionOption 会话服务配置选项
type SessionOption func(*SessionService)

// WithSessionLogger 设置日志记录器
func WithSessionLogger(logger *logrus.Logger) SessionOption {
	return func(s *SessionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSessionService 创建会话服务
func NewSessionService(repo repository.SessionRepository, opts ...SessionOption) *SessionService {
	s := &SessionService{repo: repo, logger: logrus.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 创建会话
func (s *SessionService) Create(ctx context.Context, title, indexID string) (*models.Session, error) {
	if title == "" {
		title = "ESG session " + time.Now().Format("2006-01-02 15:04:05")
	}
	session := &models.Session{Title: title, IndexID: indexID}
	if err := s.repo.WithContext(ctx).CreateSession(session); err != nil {
		s.logger.WithError(err).Error("Failed to create session")
		return nil, newError(KindInternal, "session.Create", err)
	}
	s.logger.WithField("session_id", session.ID).Info("Session created")
	return session, nil
}

// Get 获取会话
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.WithContext(ctx).GetSession(id)
	if err != nil {
		return nil, wrapSessionError("session.Get", err)
	}
	return session, nil
}

// List 分页列出会话
func (s *SessionService) List(ctx context.Context, offset, limit int) ([]*models.Session, int64, error) {
	sessions, total, err := s.repo.WithContext(ctx).ListSessions(offset, limit)
	if err != nil {
		return nil, 0, newError(KindInternal, "session.List", err)
	}
	return sessions, total, nil
}

// Turns 列出会话轮次
func (s *SessionService) Turns(ctx context.Context, id string) ([]*models.Turn, error) {
	turns, err := s.repo.WithContext(ctx).ListTurns(id)
	if err != nil {
		return nil, wrapSessionError("session.Turns", err)
	}
	return turns, nil
}

// Load 把持久化的会话装载为 Session
func (s *SessionService) Load(ctx context.Context, id string) (*Session, error) {
	turns, err := s.Turns(ctx, id)
	if err != nil {
		return nil, err
	}
	history := make([]Turn, len(turns))
	for i, t := range turns {
		history[i] = Turn{Role: llm.MessageRole(t.Role), Content: t.Content, At: t.CreatedAt}
	}
	return NewSession(id, history...), nil
}

// SaveNew 把 Session 中第 from 轮之后新增的轮次写回数据库
func (s *SessionService) SaveNew(ctx context.Context, session *Session, from int, mode Mode, sources []llm.SourceReference) error {
	turns := session.Turns()
	if from >= len(turns) {
		return nil
	}

	var sourcesJSON datatypes.JSON
	if len(sources) > 0 {
		data, err := json.Marshal(sources)
		if err != nil {
			return newError(KindInternal, "session.SaveNew", err)
		}
		sourcesJSON = datatypes.JSON(data)
	}

	rows := make([]*models.Turn, 0, len(turns)-from)
	for _, t := range turns[from:] {
		row := &models.Turn{
			Role:      models.TurnRole(t.Role),
			Content:   t.Content,
			Mode:      string(mode),
			CreatedAt: t.At,
		}
		if t.Role == llm.RoleAssistant {
			row.Sources = sourcesJSON
		}
		rows = append(rows, row)
	}

	if err := s.repo.WithContext(ctx).AppendTurns(session.ID(), rows...); err != nil {
		return wrapSessionError("session.SaveNew", err)
	}
	return nil
}

// Clear 清空会话轮次
func (s *SessionService) Clear(ctx context.Context, id string) error {
	if err := s.repo.WithContext(ctx).ClearTurns(id); err != nil {
		return wrapSessionError("session.Clear", err)
	}
	s.logger.WithField("session_id", id).Info("Session cleared")
	return nil
}

// Delete 删除会话
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.WithContext(ctx).DeleteSession(id); err != nil {
		return wrapSessionError("session.Delete", err)
	}
	s.logger.WithField("session_id", id).Info("Session deleted")
	return nil
}

func wrapSessionError(op string, err error) error {
	if errors.Is(err, models.ErrSessionNotFound) {
		return newError(KindNotFound, op, err)
	}
	return newError(KindInternal, op, fmt.Errorf("session storage: %w", err))
}
