package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCache 内存缓存和Redis缓存共用的行为测试
func testCache(t *testing.T, c Cache) {
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", "value1", 0))
	val, found, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	val, found, err = c.Get(ctx, "non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	require.NoError(t, c.Set(ctx, "to-delete", "x", 0))
	require.NoError(t, c.Delete(ctx, "to-delete"))
	_, found, err = c.Get(ctx, "to-delete")
	assert.NoError(t, err)
	assert.False(t, found)

	// 前缀删除只影响匹配的键
	require.NoError(t, c.Set(ctx, AnswerKey("acme", "v1", "concise", "q1"), "a", 0))
	require.NoError(t, c.Set(ctx, AnswerKey("acme", "v1", "concise", "q2"), "b", 0))
	require.NoError(t, c.Set(ctx, AnswerKey("other", "v1", "concise", "q1"), "c", 0))
	require.NoError(t, c.DeletePrefix(ctx, IndexPrefix("acme")))

	_, found, _ = c.Get(ctx, AnswerKey("acme", "v1", "concise", "q1"))
	assert.False(t, found)
	_, found, _ = c.Get(ctx, AnswerKey("acme", "v1", "concise", "q2"))
	assert.False(t, found)
	_, found, _ = c.Get(ctx, AnswerKey("other", "v1", "concise", "q1"))
	assert.True(t, found)

	require.NoError(t, c.Clear(ctx))
	_, found, _ = c.Get(ctx, "key1")
	assert.False(t, found)
	_, found, _ = c.Get(ctx, AnswerKey("other", "v1", "concise", "q1"))
	assert.False(t, found)
}

// TestMemoryCache 测试内存缓存
func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	})
	require.NoError(t, err)
	testCache(t, c)
}

// TestMemoryCacheExpiration 测试过期
func TestMemoryCacheExpiration(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "expire-soon", "temp", 100*time.Millisecond))
	time.Sleep(300 * time.Millisecond)

	_, found, err := c.Get(ctx, "expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(Config{
		Type:       "redis",
		RedisAddr:  mr.Addr(),
		Namespace:  "test",
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)
	defer c.(*RedisCache).Close()

	testCache(t, c)
}

// TestRedisCacheNamespace 测试键带命名空间且Clear不影响其他键
func TestRedisCacheNamespace(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("foreign", "keep"))

	c, err := NewRedisCache(Config{RedisAddr: mr.Addr(), Namespace: "esg"})
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "alerts", "[]", time.Minute))
	assert.True(t, mr.Exists("esg:alerts"))

	mr.FastForward(2 * time.Minute)
	_, found, err := c.Get(ctx, "alerts")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "alerts", "[]", time.Minute))
	require.NoError(t, c.Clear(ctx))
	assert.False(t, mr.Exists("esg:alerts"))
	assert.True(t, mr.Exists("foreign"))
}

// TestRedisCacheUnavailable 连接失败时返回错误
func TestRedisCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(Config{RedisAddr: addr})
	assert.Error(t, err)
}

// TestCacheFactory 测试缓存工厂函数
func TestCacheFactory(t *testing.T) {
	c, err := NewCache(DefaultConfig())
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	// 未知类型回退为内存缓存
	c, err = NewCache(Config{Type: "unknown-type"})
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	mr := miniredis.RunT(t)
	c, err = NewCache(Config{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
}

// TestJSONHelpers 测试JSON编解码辅助函数
func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(DefaultConfig())
	require.NoError(t, err)

	type payload struct {
		Answer string   `json:"answer"`
		Lines  []string `json:"lines"`
	}
	in := payload{Answer: "net zero by 2040", Lines: []string{"a", "b"}}
	require.NoError(t, SetJSON(ctx, c, "p", in, 0))

	var out payload
	found, err := GetJSON(ctx, c, "p", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)

	// 无法解码的数据视为未命中并被删除
	require.NoError(t, c.Set(ctx, "broken", "{not json", 0))
	found, err = GetJSON(ctx, c, "broken", &out)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, _ = c.Get(ctx, "broken")
	assert.False(t, found)
}

// TestGenerateCacheKey 测试缓存键生成
func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:part1:part2:part3", GenerateCacheKey("prefix", "part1", "part2", "part3"))
}

// TestAnswerKey 问题规范化后生成相同键，版本不同则键不同
func TestAnswerKey(t *testing.T) {
	a := AnswerKey("acme", "v1", "concise", "What are the  Scope 1 emissions?")
	b := AnswerKey("acme", "v1", "concise", "what are the scope 1 emissions?")
	c := AnswerKey("acme", "v2", "concise", "what are the scope 1 emissions?")
	d := AnswerKey("acme", "v1", "detailed", "what are the scope 1 emissions?")

	assert.Equal(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, b, d)
	assert.Contains(t, a, IndexPrefix("acme"))
}
