package vectordb

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

const qdrantUpsertBatch = 128

// QdrantStore 基于Qdrant的索引存储，每个索引对应一个集合
// 模型标识、版本等索引级信息冗余写在每个点的payload里
type QdrantStore struct {
	client *qdrant.Client
	prefix string
}

// NewQdrantStore 创建Qdrant索引存储，URL形如 http://localhost:6334
func NewQdrantStore(config Config) (Store, error) {
	raw := config.URL
	if raw == "" {
		raw = "http://localhost:6334"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}
	port := 6334
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: config.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	prefix := config.CollectionPrefix
	if prefix == "" {
		prefix = "esg_"
	}
	return &QdrantStore{client: client, prefix: prefix}, nil
}

// collection 索引ID映射为合法的集合名
func (s *QdrantStore) collection(indexID string) string {
	var sb strings.Builder
	sb.WriteString(s.prefix)
	for _, r := range indexID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteString(fmt.Sprintf(".%x", r))
		}
	}
	return sb.String()
}

func qdrantDistance(d DistanceType) qdrant.Distance {
	switch d {
	case DotProduct:
		return qdrant.Distance_Dot
	case Euclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

// Save 删除旧集合后重建并写入全部点
func (s *QdrantStore) Save(ctx context.Context, idx *Index) error {
	if err := idx.Validate(); err != nil {
		return err
	}
	name := s.collection(idx.ID)

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to drop old collection: %w", err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(len(idx.Vectors[0])),
			Distance: qdrantDistance(idx.Distance),
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	points := make([]*qdrant.PointStruct, len(idx.Chunks))
	for i, c := range idx.Chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(i)),
			Vectors: qdrant.NewVectors(idx.Vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":   c.Content,
				"source_id": c.SourceID,
				"offset":    c.Offset,
				"index_id":  idx.ID,
				"model":     idx.Model,
				"version":   idx.Version,
				"distance":  string(distanceOrDefault(idx.Distance)),
				"built_at":  idx.BuiltAt.Format(time.RFC3339Nano),
			}),
		}
	}

	for start := 0; start < len(points); start += qdrantUpsertBatch {
		end := start + qdrantUpsertBatch
		if end > len(points) {
			end = len(points)
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points[start:end],
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}
	return nil
}

// Load 读取集合中全部点并按序号还原索引
func (s *QdrantStore) Load(ctx context.Context, indexID string) (*Index, error) {
	name := s.collection(indexID)
	if err := s.requireCollection(ctx, name); err != nil {
		return nil, err
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count points: %w", err)
	}
	if count == 0 {
		return nil, ErrIndexNotFound
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          qdrant.PtrOf(uint32(count)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll points: %w", err)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].GetId().GetNum() < points[j].GetId().GetNum()
	})

	idx := &Index{ID: indexID}
	for i, p := range points {
		payload := p.GetPayload()
		if i == 0 {
			idx.Model = payload["model"].GetStringValue()
			idx.Version = payload["version"].GetStringValue()
			idx.Distance = DistanceType(payload["distance"].GetStringValue())
			idx.BuiltAt, _ = time.Parse(time.RFC3339Nano, payload["built_at"].GetStringValue())
		}
		vec := p.GetVectors().GetVector().GetData()
		idx.Chunks = append(idx.Chunks, chunkFromPayload(payload))
		idx.Vectors = append(idx.Vectors, vec)
	}
	idx.Dimension = len(idx.Vectors[0])
	return idx, nil
}

// NearestNeighbors 使用Qdrant查询接口
func (s *QdrantStore) NearestNeighbors(ctx context.Context, indexID string, query []float32, k int) ([]Match, error) {
	if err := ValidateVector(query, 0); err != nil {
		return nil, err
	}
	name := s.collection(indexID)
	if err := s.requireCollection(ctx, name); err != nil {
		return nil, err
	}
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection info: %w", err)
	}
	if size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size != uint64(len(query)) {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrInvalidDimension, len(query), size)
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		matches = append(matches, qdrantMatch(
			chunkFromPayload(payload),
			int(hit.GetId().GetNum()),
			hit.GetScore(),
			DistanceType(payload["distance"].GetStringValue()),
		))
	}
	SortMatches(matches)
	return matches, nil
}

// Delete 删除集合
func (s *QdrantStore) Delete(ctx context.Context, indexID string) error {
	name := s.collection(indexID)
	if err := s.requireCollection(ctx, name); err != nil {
		return err
	}
	return s.client.DeleteCollection(ctx, name)
}

// Exists 判断集合是否存在
func (s *QdrantStore) Exists(ctx context.Context, indexID string) (bool, error) {
	return s.client.CollectionExists(ctx, s.collection(indexID))
}

// Close 关闭连接
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) requireCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return ErrIndexNotFound
	}
	return nil
}

// qdrantMatch 把Qdrant返回的分数换成统一的距离和得分
// 欧氏距离集合返回的分数就是距离，余弦和点积返回的是相似度
func qdrantMatch(c Chunk, position int, score float32, distType DistanceType) Match {
	m := Match{Chunk: c, Position: position}
	switch distanceOrDefault(distType) {
	case Euclidean:
		m.Distance = score
		m.Score = DistanceToScore(score, Euclidean)
	case DotProduct:
		m.Distance = score
		m.Score = score
	default:
		m.Distance = 1 - score
		m.Score = score
	}
	return m
}

func chunkFromPayload(payload map[string]*qdrant.Value) Chunk {
	return Chunk{
		Content:  payload["content"].GetStringValue(),
		SourceID: payload["source_id"].GetStringValue(),
		Offset:   int(payload["offset"].GetIntegerValue()),
	}
}

func init() {
	RegisterStore("qdrant", NewQdrantStore)
}
