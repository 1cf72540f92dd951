package embedding

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "text-embedding-004"
	geminiMaxBatch     = 100
)

// GeminiClient Google Gemini嵌入客户端
type GeminiClient struct {
	client     *genai.Client
	model      string
	dimensions int32
}

// NewGeminiClient 创建Gemini嵌入客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "gemini: "+ErrMsgInvalidAPIKey)
	}

	clientCfg := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	c, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "failed to create gemini client: "+err.Error())
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiClient{client: c, model: model, dimensions: int32(cfg.Dimensions)}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return "gemini/" + c.model
}

// Embed 生成查询向量
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vectors, err := c.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文档向量
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, 0, len(texts))
	for _, batch := range splitIntoBatches(texts, geminiMaxBatch) {
		vectors, err := c.embed(ctx, batch, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

func (c *GeminiClient) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
	}

	conf := &genai.EmbedContentConfig{TaskType: taskType}
	if c.dimensions > 0 {
		conf.OutputDimensionality = &c.dimensions
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, conf)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeServerError, "gemini embed failed: "+err.Error())
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		vectors = append(vectors, e.Values)
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
