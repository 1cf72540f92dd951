//go:build faiss

package vectordb

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissStore 使用Faiss平面索引做最近邻查询
// 片段和原始向量仍由文件存储持久化，Faiss索引在首次查询时从中重建
type FaissStore struct {
	files   *FileStore
	mu      sync.Mutex
	indexes map[string]*faissEntry
}

type faissEntry struct {
	version  string
	distance DistanceType
	index    *faiss.IndexFlat
}

// NewFaissStore 创建Faiss索引存储
func NewFaissStore(config Config) (Store, error) {
	files, err := NewFileStore(config)
	if err != nil {
		return nil, err
	}
	return &FaissStore{
		files:   files.(*FileStore),
		indexes: make(map[string]*faissEntry),
	}, nil
}

// createFaissIndex 余弦距离使用归一化向量上的内积
func createFaissIndex(dimension int, distType DistanceType) (*faiss.IndexFlat, error) {
	metric := faiss.MetricL2
	if distType == Cosine || distType == DotProduct {
		metric = faiss.MetricInnerProduct
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// build 从完整索引构建Faiss索引
func build(idx *Index) (*faissEntry, error) {
	distType := distanceOrDefault(idx.Distance)
	fi, err := createFaissIndex(idx.Dimension, distType)
	if err != nil {
		return nil, fmt.Errorf("failed to create faiss index: %w", err)
	}

	flat := make([]float32, 0, len(idx.Vectors)*idx.Dimension)
	for _, v := range idx.Vectors {
		if distType == Cosine {
			v = normalizeVector(v)
		}
		flat = append(flat, v...)
	}
	if err := fi.Add(flat); err != nil {
		fi.Delete()
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}
	return &faissEntry{version: idx.Version, distance: distType, index: fi}, nil
}

// Save 持久化索引并重建Faiss索引
func (s *FaissStore) Save(ctx context.Context, idx *Index) error {
	if err := s.files.Save(ctx, idx); err != nil {
		return err
	}
	entry, err := build(idx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if old, ok := s.indexes[idx.ID]; ok {
		old.index.Delete()
	}
	s.indexes[idx.ID] = entry
	s.mu.Unlock()
	return nil
}

// Load 读取完整索引
func (s *FaissStore) Load(ctx context.Context, indexID string) (*Index, error) {
	return s.files.Load(ctx, indexID)
}

// NearestNeighbors 使用Faiss搜索
func (s *FaissStore) NearestNeighbors(ctx context.Context, indexID string, query []float32, k int) ([]Match, error) {
	idx, err := s.files.get(indexID)
	if err != nil {
		return nil, err
	}
	if err := ValidateVector(query, idx.Dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.indexes[indexID]
	if !ok || entry.version != idx.Version {
		if ok {
			entry.index.Delete()
		}
		if entry, err = build(idx); err != nil {
			return nil, err
		}
		s.indexes[indexID] = entry
	}

	if entry.distance == Cosine {
		query = normalizeVector(query)
	}
	if k > len(idx.Chunks) {
		k = len(idx.Chunks)
	}
	distances, labels, err := entry.index.Search(query, int64(k))
	if err != nil {
		return nil, fmt.Errorf("faiss search failed: %w", err)
	}

	matches := make([]Match, 0, len(labels))
	for i, label := range labels {
		if label < 0 || int(label) >= len(idx.Chunks) {
			continue
		}
		m := Match{Chunk: idx.Chunks[label], Position: int(label)}
		switch entry.distance {
		case Cosine:
			m.Distance = 1 - distances[i]
		case DotProduct:
			m.Distance = distances[i]
		default:
			// Faiss的L2返回平方距离
			m.Distance = float32(math.Sqrt(float64(distances[i])))
		}
		m.Score = DistanceToScore(m.Distance, entry.distance)
		matches = append(matches, m)
	}
	SortMatches(matches)
	return matches, nil
}

// Delete 删除索引
func (s *FaissStore) Delete(ctx context.Context, indexID string) error {
	s.mu.Lock()
	if entry, ok := s.indexes[indexID]; ok {
		entry.index.Delete()
		delete(s.indexes, indexID)
	}
	s.mu.Unlock()
	return s.files.Delete(ctx, indexID)
}

// Exists 判断索引是否存在
func (s *FaissStore) Exists(ctx context.Context, indexID string) (bool, error) {
	return s.files.Exists(ctx, indexID)
}

// Close 释放Faiss索引
func (s *FaissStore) Close() error {
	s.mu.Lock()
	for id, entry := range s.indexes {
		entry.index.Delete()
		delete(s.indexes, id)
	}
	s.mu.Unlock()
	return s.files.Close()
}

func init() {
	RegisterStore("faiss", NewFaissStore)
}
