package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache 缓存接口
// 回答缓存和告警缓存都存JSON字符串
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix 删除指定前缀下的所有键，用于索引删除后的失效
	DeletePrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
}

// Factory 缓存工厂函数类型
type Factory func(config Config) (Cache, error)

// 注册的缓存实现
var registry = make(map[string]Factory)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 创建缓存实例，未知类型回退到内存缓存
func NewCache(config Config) (Cache, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryCache(config)
}

// Config 缓存配置
type Config struct {
	Type            string        // "memory" 或 "redis"
	RedisAddr       string        // Redis连接地址
	RedisPassword   string        // Redis密码
	RedisDB         int           // Redis数据库编号
	Namespace       string        // Redis键前缀，Clear只清理该前缀
	DefaultTTL      time.Duration // 默认过期时间
	CleanupInterval time.Duration // 内存缓存清理间隔
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		Namespace:       "esg",
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute * 10,
	}
}

// 缓存键前缀
const (
	PrefixAnswer = "answer"
	PrefixAlerts = "alerts"
	PrefixScore  = "score"
)

// GenerateCacheKey 用冒号连接各部分生成缓存键
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// AnswerKey 回答缓存键
// 包含索引版本，重建索引后旧回答自然失效
func AnswerKey(indexID, version, mode, question string) string {
	return GenerateCacheKey(PrefixAnswer, indexID, version, mode, Fingerprint(question))
}

// IndexPrefix 某个索引下所有回答缓存的前缀
func IndexPrefix(indexID string) string {
	return GenerateCacheKey(PrefixAnswer, indexID) + ":"
}

// Fingerprint 规范化文本后取sha256前16字节
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// GetJSON 读取并解码JSON缓存项
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) (bool, error) {
	raw, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		// 格式不兼容的旧数据当作未命中
		_ = c.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON 编码为JSON后写入缓存
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}
