package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const defaultHashingDimensions = 256

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

var hashingStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"does": {}, "do": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "what": {}, "which": {}, "while": {}, "with": {},
}

// HashingClient 本地特征哈希嵌入
// 不依赖网络，适合离线演示和测试，语义能力只到词袋级别
type HashingClient struct {
	dimensions int
}

// NewHashingClient 创建特征哈希嵌入客户端
func NewHashingClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	dim := cfg.Dimensions
	if dim <= 0 {
		dim = defaultHashingDimensions
	}
	return &HashingClient{dimensions: dim}, nil
}

// Name 返回模型名称，包含维度以便区分
func (c *HashingClient) Name() string {
	return fmt.Sprintf("hashing/%d", c.dimensions)
}

// Embed 生成单条文本的向量表示
func (c *HashingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	return c.vector(text), nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *HashingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, NewEmbeddingError(ErrCodeTimeout, err.Error())
		}
		out[i] = c.vector(t)
	}
	return out, nil
}

// vector 词频按哈希桶累加，符号位减少冲突偏差，最后做L2归一化
func (c *HashingClient) vector(text string) []float32 {
	v := make([]float32, c.dimensions)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := hashingStopwords[tok]; stop {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(c.dimensions))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func init() {
	RegisterClient("hashing", NewHashingClient)
}
