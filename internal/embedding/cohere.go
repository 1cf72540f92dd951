package embedding

import (
	"context"
	"strings"
)

const (
	defaultCohereURL   = "https://api.cohere.ai/v1/embed"
	defaultCohereModel = "embed-english-light-v3.0"
	cohereMaxBatch     = 96
)

// cohereRequest Cohere embed接口请求体
type cohereRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
	Truncate  string   `json:"truncate,omitempty"`
}

// cohereResponse Cohere embed接口响应体
type cohereResponse struct {
	ID         string      `json:"id"`
	Embeddings [][]float32 `json:"embeddings"`
}

// CohereClient Cohere嵌入客户端
// 文档片段使用 search_document，查询使用 search_query
type CohereClient struct {
	rest  *restClient
	url   string
	model string
}

// NewCohereClient 创建Cohere嵌入客户端
func NewCohereClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "cohere: "+ErrMsgInvalidAPIKey)
	}

	url := cfg.BaseURL
	if url == "" {
		url = defaultCohereURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultCohereModel
	}

	return &CohereClient{
		rest:  newRESTClient(cfg),
		url:   strings.TrimRight(url, "/"),
		model: model,
	}, nil
}

// Name 返回模型名称
func (c *CohereClient) Name() string {
	return "cohere/" + c.model
}

// Embed 生成查询向量
func (c *CohereClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vectors, err := c.embed(ctx, []string{text}, "search_query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文档向量，超过单次上限时分段请求
func (c *CohereClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, 0, len(texts))
	for _, batch := range splitIntoBatches(texts, cohereMaxBatch) {
		vectors, err := c.embed(ctx, batch, "search_document")
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

func (c *CohereClient) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	var resp cohereResponse
	err := c.rest.post(ctx, c.url, cohereRequest{
		Texts:     texts,
		Model:     c.model,
		InputType: inputType,
		Truncate:  "END",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if err := checkVectors(resp.Embeddings, len(texts)); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

func init() {
	RegisterClient("cohere", NewCohereClient)
}
