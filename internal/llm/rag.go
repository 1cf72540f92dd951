package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultRAGTemplate 默认RAG提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Context}} - 检索到的报告片段
// {{.History}} - 最近的对话记录，可以为空
const DefaultRAGTemplate = `You are an ESG analyst assistant. Answer the question using only the report excerpts below.
If the excerpts do not contain the answer, reply exactly "I don't know" and nothing else.

Report excerpts:
{{.Context}}
{{.History}}
Question: {{.Question}}`

// SearchTemplate 不基于检索的通用搜索提示词
const SearchTemplate = `Give 3 recent search results with title and link for the query: {{.Question}}`

// AlertPrompt ESG资讯提示词
const AlertPrompt = `Get latest ESG news or regulation updates (2025). Respond briefly.`

// SourceReference 引用来源
type SourceReference struct {
	SourceID string  `json:"source_id"` // 来源文档
	Offset   int     `json:"offset"`    // 片段在原文中的位置
	Content  string  `json:"content"`   // 引用内容
	Score    float32 `json:"score"`     // 相似度
}

// RAGResponse RAG响应结构
type RAGResponse struct {
	Answer  string            // 回答内容
	Model   string            // 实际使用的模型
	Sources []SourceReference // 引用来源
}

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	Template       string        // 提示词模板
	MaxTokens      int           // 最大Token数
	Temperature    float32       // 温度参数
	Timeout        time.Duration // 超时时间
	HistoryTurns   int           // 放入提示词的最近对话条数
	IncludeSources bool          // 是否带上引用来源
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:       DefaultRAGTemplate,
		MaxTokens:      1024,
		Temperature:    0.2,
		Timeout:        60 * time.Second,
		HistoryTurns:   4,
		IncludeSources: true,
	}
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithTemplate 设置提示词模板
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.Template = template
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// WithHistoryTurns 设置放入提示词的对话条数
func WithHistoryTurns(n int) RAGOption {
	return func(c *RAGConfig) {
		c.HistoryTurns = n
	}
}

// WithSources 设置是否包含引用来源
func WithSources(include bool) RAGOption {
	return func(c *RAGConfig) {
		c.IncludeSources = include
	}
}

// RAGService 基于检索片段生成回答
type RAGService struct {
	config *RAGConfig
	mu     sync.RWMutex
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &RAGService{config: cfg}
}

// Answer 用指定模型根据片段和问题生成回答
func (r *RAGService) Answer(ctx context.Context, client Client, question string, sources []SourceReference, history []Message) (*RAGResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	cfg := *r.config
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	prompt := r.BuildPrompt(question, sources, history)
	resp, err := client.Generate(ctx, prompt,
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	out := &RAGResponse{Answer: resp.Text, Model: client.Name()}
	if cfg.IncludeSources {
		out.Sources = sources
	}
	return out, nil
}

// Search 不带检索上下文的一次通用查询
func (r *RAGService) Search(ctx context.Context, client Client, question string) (*RAGResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	timeout := r.config.Timeout
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Generate(ctx, strings.ReplaceAll(SearchTemplate, "{{.Question}}", question))
	if err != nil {
		return nil, fmt.Errorf("failed to generate search response: %w", err)
	}
	return &RAGResponse{Answer: resp.Text, Model: client.Name()}, nil
}

// BuildPrompt 构建增强提示词
func (r *RAGService) BuildPrompt(question string, sources []SourceReference, history []Message) string {
	r.mu.RLock()
	template := r.config.Template
	turns := r.config.HistoryTurns
	r.mu.RUnlock()

	prompt := strings.ReplaceAll(template, "{{.Question}}", question)
	prompt = strings.ReplaceAll(prompt, "{{.History}}", formatHistory(history, turns))
	prompt = strings.ReplaceAll(prompt, "{{.Context}}", formatContext(sources))
	return prompt
}

// SetTemplate 设置自定义提示词模板
func (r *RAGService) SetTemplate(template string) *RAGService {
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}

// formatContext 格式化上下文内容
func formatContext(sources []SourceReference) string {
	var sb strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&sb, "[%d] (%s) %s\n\n", i+1, s.SourceID, strings.TrimSpace(s.Content))
	}
	return sb.String()
}

// formatHistory 只保留最近的若干条对话
func formatHistory(history []Message, limit int) string {
	if limit <= 0 || len(history) == 0 {
		return ""
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	var sb strings.Builder
	sb.WriteString("\nConversation so far:\n")
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}
