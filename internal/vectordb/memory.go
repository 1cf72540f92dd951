package vectordb

import (
	"context"
	"sync"
)

// MemoryStore 进程内索引存储
// Save 构造完整副本后一次性替换映射中的指针
type MemoryStore struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewMemoryStore 创建内存索引存储
func NewMemoryStore(config Config) (Store, error) {
	return &MemoryStore{indexes: make(map[string]*Index)}, nil
}

// Save 保存索引
func (s *MemoryStore) Save(ctx context.Context, idx *Index) error {
	if err := idx.Validate(); err != nil {
		return err
	}
	cp := cloneIndex(idx)

	s.mu.Lock()
	s.indexes[idx.ID] = cp
	s.mu.Unlock()
	return nil
}

// Load 读取索引副本
func (s *MemoryStore) Load(ctx context.Context, indexID string) (*Index, error) {
	s.mu.RLock()
	idx, ok := s.indexes[indexID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrIndexNotFound
	}
	return cloneIndex(idx), nil
}

// NearestNeighbors 线性扫描查询
func (s *MemoryStore) NearestNeighbors(ctx context.Context, indexID string, query []float32, k int) ([]Match, error) {
	s.mu.RLock()
	idx, ok := s.indexes[indexID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrIndexNotFound
	}
	// 已保存的索引不会被原地修改，持有指针读取即可
	return BruteForceSearch(idx, query, k)
}

// Delete 删除索引
func (s *MemoryStore) Delete(ctx context.Context, indexID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[indexID]; !ok {
		return ErrIndexNotFound
	}
	delete(s.indexes, indexID)
	return nil
}

// Exists 判断索引是否存在
func (s *MemoryStore) Exists(ctx context.Context, indexID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.indexes[indexID]
	s.mu.RUnlock()
	return ok, nil
}

// Close 内存存储无需释放资源
func (s *MemoryStore) Close() error {
	return nil
}

func init() {
	RegisterStore("memory", NewMemoryStore)
}
