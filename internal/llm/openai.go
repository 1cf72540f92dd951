package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
)

// OpenAIClient 兼容OpenAI协议的聊天补全客户端
// Groq 通过同一协议接入，只是地址和默认模型不同
type OpenAIClient struct {
	client   openai.Client
	cfg      *Config
	provider string
}

// NewOpenAIClient 创建OpenAI客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	return newOpenAICompatible("openai", "", ModelOpenAIMini, opts...)
}

// NewGroqClient 创建Groq客户端
func NewGroqClient(opts ...Option) (Client, error) {
	return newOpenAICompatible("groq", defaultGroqBaseURL, ModelGroqSmall, opts...)
}

func newOpenAICompatible(provider, baseURL, model string, opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, provider+": "+ErrMsgInvalidAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:   openai.NewClient(reqOpts...),
		cfg:      cfg,
		provider: provider,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.provider + "/" + c.cfg.Model
}

// Generate 单轮生成
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}
	o, maxTokens, temp := resolveOptions(c.cfg, options)

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.Model),
		Messages:    toOpenAIMessages(o.System, messages),
		Temperature: openai.Float(float64(temp)),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, "no choices returned")
	}

	return &Response{
		Text:       resp.Choices[0].Message.Content,
		TokenCount: int(resp.Usage.TotalTokens),
		ModelName:  resp.Model,
		FinishTime: time.Now(),
	}, nil
}

func toOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// wrapOpenAIError 将SDK错误转换为LLM错误
func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError(apiErr.StatusCode, apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, err.Error())
	}
	return WrapError(err, ErrCodeNetworkError)
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
	RegisterClient("groq", NewGroqClient)
}
