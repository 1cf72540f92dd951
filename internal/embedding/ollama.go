package embedding

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// OllamaClient 本地Ollama嵌入客户端
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient 创建Ollama嵌入客户端，不需要API密钥
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "invalid ollama url: "+err.Error())
	}

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}

	return &OllamaClient{
		client: api.NewClient(u, &http.Client{Timeout: cfg.Timeout}),
		model:  model,
	}, nil
}

// Name 返回模型名称
func (c *OllamaClient) Name() string {
	return "ollama/" + c.model
}

// Embed 生成单条文本的向量表示
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.client.Embed(ctx, &api.EmbedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeNetworkError, "ollama embed failed: "+err.Error())
	}
	if err := checkVectors(resp.Embeddings, len(texts)); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

func init() {
	RegisterClient("ollama", NewOllamaClient)
}
