package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient 本地Ollama生成客户端
type OllamaClient struct {
	client *api.Client
	cfg    *Config
}

// NewOllamaClient 创建Ollama客户端，不需要API密钥
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.Model == "" {
		cfg.Model = ModelOllama
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, NewLLMError(ErrCodeInvalidRequest, "invalid ollama url: "+err.Error())
	}
	return &OllamaClient{
		client: api.NewClient(u, &http.Client{Timeout: cfg.Timeout}),
		cfg:    cfg,
	}, nil
}

// Name 返回模型名称
func (c *OllamaClient) Name() string {
	return "ollama/" + c.cfg.Model
}

// Generate 单轮生成
func (c *OllamaClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 多轮对话，关闭流式输出一次拿到完整结果
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}
	o, maxTokens, temp := resolveOptions(c.cfg, options)

	msgs := make([]api.Message, 0, len(messages)+1)
	if o.System != "" {
		msgs = append(msgs, api.Message{Role: string(RoleSystem), Content: o.System})
	}
	for _, m := range messages {
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.cfg.Model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": temp,
			"num_predict": maxTokens,
		},
	}

	var sb strings.Builder
	var tokens int
	err := c.client.Chat(ctx, req, func(r api.ChatResponse) error {
		sb.WriteString(r.Message.Content)
		if r.Done {
			tokens = r.PromptEvalCount + r.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeNetworkError)
	}

	return &Response{
		Text:       sb.String(),
		TokenCount: tokens,
		ModelName:  c.cfg.Model,
		FinishTime: time.Now(),
	}, nil
}

func init() {
	RegisterClient("ollama", NewOllamaClient)
}
