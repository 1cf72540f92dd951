package llm

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient Google Gemini生成客户端
type GeminiClient struct {
	client *genai.Client
	cfg    *Config
}

// NewGeminiClient 创建Gemini客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, "gemini: "+ErrMsgInvalidAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = ModelGeminiFlash
	}

	clientCfg := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	c, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, WrapError(err, ErrCodeInvalidRequest)
	}
	return &GeminiClient{client: c, cfg: cfg}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return "gemini/" + c.cfg.Model
}

// Generate 单轮生成
func (c *GeminiClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 多轮对话，system消息合并为SystemInstruction
func (c *GeminiClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}
	o, maxTokens, temp := resolveOptions(c.cfg, options)

	conf := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temp),
		MaxOutputTokens: int32(maxTokens),
	}

	system := []string{}
	if o.System != "" {
		system = append(system, o.System)
	}
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		conf.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, conf)
	if err != nil {
		return nil, WrapError(err, ErrCodeServerError)
	}
	if len(result.Candidates) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, "no candidates returned")
	}

	resp := &Response{
		Text:       result.Text(),
		ModelName:  c.cfg.Model,
		FinishTime: time.Now(),
	}
	if result.UsageMetadata != nil {
		resp.TokenCount = int(result.UsageMetadata.TotalTokenCount)
	}
	return resp, nil
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
