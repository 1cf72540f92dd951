package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIClient OpenAI嵌入客户端，也可指向兼容OpenAI协议的服务
type OpenAIClient struct {
	client     openai.Client
	model      string
	dimensions int
	batchSize  int
}

// NewOpenAIClient 创建OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "openai: "+ErrMsgInvalidAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
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
		client:     openai.NewClient(reqOpts...),
		model:      model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return "openai/" + c.model
}

// Embed 生成单条文本的向量表示
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
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
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, 0, len(texts))
	for _, batch := range splitIntoBatches(texts, c.batchSize) {
		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: openai.EmbeddingModel(c.model),
		}
		if c.dimensions > 0 {
			params.Dimensions = openai.Int(int64(c.dimensions))
		}

		resp, err := c.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, wrapOpenAIError(err)
		}

		vectors := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if int(item.Index) >= len(vectors) {
				return nil, NewEmbeddingError(ErrCodeBadResponse, fmt.Sprintf("unexpected embedding index %d", item.Index))
			}
			vectors[item.Index] = toFloat32(item.Embedding)
		}
		if err := checkVectors(vectors, len(batch)); err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

// wrapOpenAIError 将SDK错误转换为嵌入错误
func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError(apiErr.StatusCode, apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError(ErrCodeTimeout, err.Error())
	}
	return NewEmbeddingError(ErrCodeNetworkError, err.Error())
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
