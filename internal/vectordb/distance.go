package vectordb

import (
	"fmt"
	"math"
	"sort"
)

// ComputeDistance 计算两个向量间的距离
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrInvalidDimension, len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// cosineDistance 余弦距离 = 1 - 余弦相似度
func cosineDistance(v1, v2 []float32) float32 {
	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)
	if norm1 == 0 || norm2 == 0 {
		return 1.0
	}

	similarity := dotProduct(v1, v2) / (norm1 * norm2)
	if similarity > 1.0 {
		similarity = 1.0
	}
	return 1.0 - similarity
}

// dotProduct 计算两个向量的点积
func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := range v1 {
		dot += v1[i] * v2[i]
	}
	return dot
}

// euclideanDistance 计算欧几里德距离
func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := range v1 {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// normalizeVector 归一化向量，零向量原样返回
func normalizeVector(v []float32) []float32 {
	norm := vectorNorm(v)
	if norm == 0 {
		return v
	}
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// distanceOrDefault 未记录度量的索引按余弦距离处理
func distanceOrDefault(d DistanceType) DistanceType {
	if d == "" {
		return Cosine
	}
	return d
}

// DistanceToScore 将距离转换为评分，越大越相似
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		return 1 - distance
	case DotProduct:
		// 点积本身就是相似度
		return distance
	case Euclidean:
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// ValidateVector 验证向量维度和有效性
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}
	return nil
}

// SortMatches 按评分降序排序，评分相同时按片段序号升序
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Position < matches[j].Position
	})
}

// BruteForceSearch 对完整索引做线性扫描，供内存和文件存储复用
func BruteForceSearch(idx *Index, query []float32, k int) ([]Match, error) {
	if err := ValidateVector(query, idx.Dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}

	distType := distanceOrDefault(idx.Distance)

	matches := make([]Match, 0, len(idx.Chunks))
	for i, v := range idx.Vectors {
		d, err := ComputeDistance(query, v, distType)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{
			Chunk:    idx.Chunks[i],
			Position: i,
			Distance: d,
			Score:    DistanceToScore(d, distType),
		})
	}

	SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// cloneIndex 深拷贝索引，避免调用方修改存储内部数据
func cloneIndex(idx *Index) *Index {
	out := *idx
	out.Chunks = append([]Chunk(nil), idx.Chunks...)
	out.Vectors = make([][]float32, len(idx.Vectors))
	for i, v := range idx.Vectors {
		out.Vectors[i] = append([]float32(nil), v...)
	}
	return &out
}
