package vectordb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyerfyer/esg-insight/internal/document"
)

// 常用错误定义
var (
	ErrIndexNotFound    = errors.New("index not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidIndexID   = errors.New("invalid index ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrEmptyIndex       = errors.New("index has no chunks")
)

// Chunk 索引中的文本片段
type Chunk = document.Chunk

// Index 一个完整的索引：片段、向量以及构建时使用的嵌入模型
type Index struct {
	ID        string       `json:"id"`
	Model     string       `json:"model"`     // 构建时使用的嵌入模型标识
	Dimension int          `json:"dimension"` // 向量维度
	Distance  DistanceType `json:"distance"`  // 相似度度量
	Version   string       `json:"version"`   // 每次重建都会变化
	BuiltAt   time.Time    `json:"built_at"`
	Chunks    []Chunk      `json:"chunks"`
	Vectors   [][]float32  `json:"vectors"`
}

// Validate 检查片段与向量一一对应且维度一致
func (idx *Index) Validate() error {
	if err := ValidateIndexID(idx.ID); err != nil {
		return err
	}
	if len(idx.Chunks) == 0 {
		return ErrEmptyIndex
	}
	if len(idx.Chunks) != len(idx.Vectors) {
		return fmt.Errorf("%d chunks but %d vectors", len(idx.Chunks), len(idx.Vectors))
	}
	for i, v := range idx.Vectors {
		if err := ValidateVector(v, idx.Dimension); err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}
	return nil
}

// DistanceType 向量距离计算方法
// 每个索引在构建时记录自己的度量，查询时按索引记录的度量计算
type DistanceType string

const (
	Cosine     DistanceType = "cosine"
	DotProduct DistanceType = "dot"
	Euclidean  DistanceType = "l2"
)

// ParseDistance 解析距离度量名称，空字符串视为余弦距离
func ParseDistance(s string) (DistanceType, error) {
	switch d := DistanceType(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Cosine, nil
	case Cosine, DotProduct, Euclidean:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported distance type: %s", s)
	}
}

// Match 最近邻查询结果
type Match struct {
	Chunk    Chunk   `json:"chunk"`
	Position int     `json:"position"` // 片段在索引中的序号
	Score    float32 `json:"score"`    // 相似度得分，越大越相似
	Distance float32 `json:"distance"` // 计算的距离
}

// Store 索引存储接口
// Save 以整体替换的方式写入；读者看到的要么是旧索引，要么是完整的新索引
type Store interface {
	// Save 保存索引，替换同一ID下的旧内容
	Save(ctx context.Context, idx *Index) error

	// Load 读取完整索引，不存在时返回 ErrIndexNotFound
	Load(ctx context.Context, indexID string) (*Index, error)

	// NearestNeighbors 返回与查询向量最相似的k个片段
	NearestNeighbors(ctx context.Context, indexID string, query []float32, k int) ([]Match, error)

	// Delete 删除索引
	Delete(ctx context.Context, indexID string) error

	// Exists 判断索引是否存在
	Exists(ctx context.Context, indexID string) (bool, error)

	// Close 释放资源
	Close() error
}

// Config 索引存储配置
type Config struct {
	Type             string // 存储类型，如 "memory", "file", "faiss", "qdrant", "pgvector"
	Path             string // 本地目录
	URL              string // 远程服务地址或连接串
	APIKey           string // 远程服务密钥
	CollectionPrefix string // 远程集合或表名前缀
}

// Factory 索引存储工厂函数类型
type Factory func(config Config) (Store, error)

// storeRegistry 注册可用的索引存储实现
var storeRegistry = map[string]Factory{}

// RegisterStore 注册索引存储工厂函数
func RegisterStore(name string, factory Factory) {
	storeRegistry[name] = factory
}

// NewStore 根据配置创建索引存储
func NewStore(config Config) (Store, error) {
	if config.Type == "" {
		config.Type = "memory"
	}
	factory, ok := storeRegistry[config.Type]
	if !ok {
		return nil, fmt.Errorf("vector store type not registered: %s (available: %s)",
			config.Type, strings.Join(Stores(), ", "))
	}
	return factory(config)
}

// Stores 返回已注册的存储类型
func Stores() []string {
	names := make([]string, 0, len(storeRegistry))
	for name := range storeRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateIndexID 索引ID是类似路径的字符串，不允许为空或包含上级目录
func ValidateIndexID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > 256 {
		return ErrInvalidIndexID
	}
	for _, part := range strings.Split(id, "/") {
		if part == ".." {
			return ErrInvalidIndexID
		}
	}
	return nil
}
