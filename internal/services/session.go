package services

import (
	"errors"
	"sync"
	"time"

	"github.com/fyerfyer/esg-insight/internal/llm"
)

// Turn 会话中的一轮
type Turn struct {
	Role    llm.MessageRole
	Content string
	At      time.Time
}

// Session 调用方持有的会话
// 只能追加或整体清空，可以被多个goroutine安全使用
type Session struct {
	id    string
	mu    sync.RWMutex
	turns []Turn
}

// NewSession 创建会话，可带上已持久化的历史
func NewSession(id string, history ...Turn) *Session {
	s := &Session{id: id}
	s.turns = append(s.turns, history...)
	return s
}

// ID 会话ID
func (s *Session) ID() string {
	return s.id
}

// Append 追加一轮
func (s *Session) Append(role llm.MessageRole, content string) error {
	if role != llm.RoleUser && role != llm.RoleAssistant {
		return errors.New("turn role must be user or assistant")
	}
	s.mu.Lock()
	s.turns = append(s.turns, Turn{Role: role, Content: content, At: time.Now()})
	s.mu.Unlock()
	return nil
}

// Turns 返回所有轮次的副本
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

// Len 轮次数量
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// History 以大模型消息格式返回最近limit轮，limit<=0时返回全部
func (s *Session) History(limit int) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return msgs
}

// Clear 清空会话
func (s *Session) Clear() {
	s.mu.Lock()
	s.turns = nil
	s.mu.Unlock()
}
