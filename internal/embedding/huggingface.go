package embedding

import (
	"context"
	"strings"
)

const (
	defaultHuggingFaceURL   = "https://router.huggingface.co/hf-inference/models"
	defaultHuggingFaceModel = "sentence-transformers/all-MiniLM-L6-v2"
)

// huggingFaceRequest feature-extraction 管道请求体
type huggingFaceRequest struct {
	Inputs  []string           `json:"inputs"`
	Options huggingFaceOptions `json:"options"`
}

type huggingFaceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// HuggingFaceClient HuggingFace推理接口嵌入客户端
type HuggingFaceClient struct {
	rest      *restClient
	endpoint  string
	model     string
	batchSize int
}

// NewHuggingFaceClient 创建HuggingFace嵌入客户端
func NewHuggingFaceClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "huggingface: "+ErrMsgInvalidAPIKey)
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultHuggingFaceURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultHuggingFaceModel
	}

	return &HuggingFaceClient{
		rest:      newRESTClient(cfg),
		endpoint:  strings.TrimRight(base, "/") + "/" + model + "/pipeline/feature-extraction",
		model:     model,
		batchSize: cfg.BatchSize,
	}, nil
}

// Name 返回模型名称
func (c *HuggingFaceClient) Name() string {
	return "huggingface/" + c.model
}

// Embed 生成单条文本的向量表示
func (c *HuggingFaceClient) Embed(ctx context.Context, text string) ([]float32, error) {
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
func (c *HuggingFaceClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, 0, len(texts))
	for _, batch := range splitIntoBatches(texts, c.batchSize) {
		var vectors [][]float32
		req := huggingFaceRequest{Inputs: batch, Options: huggingFaceOptions{WaitForModel: true}}
		if err := c.rest.post(ctx, c.endpoint, req, &vectors); err != nil {
			return nil, err
		}
		if err := checkVectors(vectors, len(batch)); err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

func init() {
	RegisterClient("huggingface", NewHuggingFaceClient)
}
