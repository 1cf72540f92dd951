package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// FileStore 基于本地目录的索引存储
// 每个索引保存为一个JSON文件，写入临时文件后rename，保证读者看不到半写的文件
// 同一目录可能被多个进程共享，缓存的索引每次使用前都和磁盘上的文件比对
type FileStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*cachedIndex // 已加载的索引
}

// cachedIndex 已加载的索引和加载时文件的状态
type cachedIndex struct {
	idx  *Index
	stat os.FileInfo
}

// fresh 文件没有被替换过时缓存仍然有效
// rename 会换成新的文件，SameFile 能识别出来
func (c *cachedIndex) fresh(current os.FileInfo) bool {
	return os.SameFile(c.stat, current) &&
		c.stat.ModTime().Equal(current.ModTime()) &&
		c.stat.Size() == current.Size()
}

// NewFileStore 创建文件索引存储
func NewFileStore(config Config) (Store, error) {
	dir := config.Path
	if dir == "" {
		dir = "./data/indexes"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return &FileStore{dir: dir, cache: make(map[string]*cachedIndex)}, nil
}

// path 索引ID转义后作为文件名
func (s *FileStore) path(indexID string) string {
	return filepath.Join(s.dir, url.PathEscape(indexID)+".json")
}

// Save 原子地写入整个索引
func (s *FileStore) Save(ctx context.Context, idx *Index) error {
	if err := idx.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.path(idx.ID)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	if stat, err := os.Stat(path); err == nil {
		s.cache[idx.ID] = &cachedIndex{idx: cloneIndex(idx), stat: stat}
	} else {
		delete(s.cache, idx.ID)
	}
	return nil
}

// Load 读取索引，优先使用缓存
func (s *FileStore) Load(ctx context.Context, indexID string) (*Index, error) {
	idx, err := s.get(indexID)
	if err != nil {
		return nil, err
	}
	return cloneIndex(idx), nil
}

// get 返回内部共享的索引，调用方不能修改
// 文件被其他进程替换或删除后重新读取
func (s *FileStore) get(indexID string) (*Index, error) {
	if err := ValidateIndexID(indexID); err != nil {
		return nil, err
	}
	path := s.path(indexID)

	stat, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		delete(s.cache, indexID)
		s.mu.Unlock()
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}

	s.mu.RLock()
	c, ok := s.cache[indexID]
	s.mu.RUnlock()
	if ok && c.fresh(stat) {
		return c.idx, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 先打开再取状态，保证解码的内容和记录的状态属于同一个文件
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		delete(s.cache, indexID)
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	defer f.Close()

	stat, err = f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}
	if c, ok := s.cache[indexID]; ok && c.fresh(stat) {
		return c.idx, nil
	}

	idx := &Index{}
	if err := json.NewDecoder(f).Decode(idx); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", indexID, err)
	}
	s.cache[indexID] = &cachedIndex{idx: idx, stat: stat}
	return idx, nil
}

// NearestNeighbors 线性扫描查询
func (s *FileStore) NearestNeighbors(ctx context.Context, indexID string, query []float32, k int) ([]Match, error) {
	idx, err := s.get(indexID)
	if err != nil {
		return nil, err
	}
	return BruteForceSearch(idx, query, k)
}

// Delete 删除索引文件
func (s *FileStore) Delete(ctx context.Context, indexID string) error {
	if err := ValidateIndexID(indexID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, indexID)
	err := os.Remove(s.path(indexID))
	if errors.Is(err, os.ErrNotExist) {
		return ErrIndexNotFound
	}
	return err
}

// Exists 判断索引文件是否存在
func (s *FileStore) Exists(ctx context.Context, indexID string) (bool, error) {
	if err := ValidateIndexID(indexID); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(indexID))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Close 清空缓存
func (s *FileStore) Close() error {
	s.mu.Lock()
	s.cache = make(map[string]*cachedIndex)
	s.mu.Unlock()
	return nil
}

func init() {
	RegisterStore("file", NewFileStore)
}
