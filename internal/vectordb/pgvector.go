package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgVectorStore 基于PostgreSQL + pgvector 的索引存储
// 索引头和片段分两张表，Save 在一个事务内删除旧数据并写入新数据
type PgVectorStore struct {
	pool   *pgxpool.Pool
	prefix string
}

// NewPgVectorStore 创建pgvector索引存储，URL为连接串
func NewPgVectorStore(config Config) (Store, error) {
	if config.URL == "" {
		return nil, errors.New("pgvector store requires a connection URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	prefix := config.CollectionPrefix
	if prefix == "" {
		prefix = "esg_"
	}
	s := &PgVectorStore{pool: pool, prefix: prefix}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) indexTable() string { return pgx.Identifier{s.prefix + "indexes"}.Sanitize() }
func (s *PgVectorStore) chunkTable() string { return pgx.Identifier{s.prefix + "chunks"}.Sanitize() }

// migrate 创建扩展和表
func (s *PgVectorStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			index_id  TEXT PRIMARY KEY,
			model     TEXT NOT NULL,
			dimension INT NOT NULL,
			distance  TEXT NOT NULL,
			version   TEXT NOT NULL,
			built_at  TIMESTAMPTZ NOT NULL
		)`, s.indexTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			index_id     TEXT NOT NULL REFERENCES %s(index_id) ON DELETE CASCADE,
			position     INT NOT NULL,
			source_id    TEXT NOT NULL,
			chunk_offset INT NOT NULL,
			content      TEXT NOT NULL,
			embedding    vector NOT NULL,
			PRIMARY KEY (index_id, position)
		)`, s.chunkTable(), s.indexTable()),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate pgvector schema: %w", err)
		}
	}
	return nil
}

// Save 在事务中替换索引
func (s *PgVectorStore) Save(ctx context.Context, idx *Index) error {
	if err := idx.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE index_id = $1`, s.indexTable()), idx.ID); err != nil {
		return fmt.Errorf("failed to delete old index: %w", err)
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (index_id, model, dimension, distance, version, built_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.indexTable()),
		idx.ID, idx.Model, len(idx.Vectors[0]), string(distanceOrDefault(idx.Distance)), idx.Version, idx.BuiltAt)
	if err != nil {
		return fmt.Errorf("failed to insert index header: %w", err)
	}

	batch := &pgx.Batch{}
	insert := fmt.Sprintf(
		`INSERT INTO %s (index_id, position, source_id, chunk_offset, content, embedding) VALUES ($1, $2, $3, $4, $5, $6::vector)`,
		s.chunkTable())
	for i, c := range idx.Chunks {
		batch.Queue(insert, idx.ID, i, c.SourceID, c.Offset, c.Content, encodeVector(idx.Vectors[i]))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return tx.Commit(ctx)
}

// Load 读取完整索引
func (s *PgVectorStore) Load(ctx context.Context, indexID string) (*Index, error) {
	idx := &Index{ID: indexID}
	var distance string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT model, dimension, distance, version, built_at FROM %s WHERE index_id = $1`, s.indexTable()),
		indexID).Scan(&idx.Model, &idx.Dimension, &distance, &idx.Version, &idx.BuiltAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index header: %w", err)
	}
	idx.Distance = DistanceType(distance)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT source_id, chunk_offset, content, embedding::text FROM %s WHERE index_id = $1 ORDER BY position`,
		s.chunkTable()), indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c   Chunk
			raw string
		)
		if err := rows.Scan(&c.SourceID, &c.Offset, &c.Content, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		vec, err := decodeVector(raw)
		if err != nil {
			return nil, err
		}
		idx.Chunks = append(idx.Chunks, c)
		idx.Vectors = append(idx.Vectors, vec)
	}
	return idx, rows.Err()
}

// pgOperator 度量对应的pgvector运算符
// <#> 返回负内积，取反后才是点积
func pgOperator(d DistanceType) string {
	switch d {
	case DotProduct:
		return "<#>"
	case Euclidean:
		return "<->"
	default:
		return "<=>"
	}
}

// NearestNeighbors 按索引记录的度量选择pgvector距离运算符排序
func (s *PgVectorStore) NearestNeighbors(ctx context.Context, indexID string, query []float32, k int) ([]Match, error) {
	if err := ValidateVector(query, 0); err != nil {
		return nil, err
	}

	var (
		dimension int
		raw       string
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT dimension, distance FROM %s WHERE index_id = $1`, s.indexTable()),
		indexID).Scan(&dimension, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index header: %w", err)
	}
	if err := ValidateVector(query, dimension); err != nil {
		return nil, err
	}
	distType, err := ParseDistance(raw)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT position, source_id, chunk_offset, content, embedding %s $2::vector AS distance
		 FROM %s WHERE index_id = $1 ORDER BY distance, position LIMIT $3`, pgOperator(distType), s.chunkTable()),
		indexID, encodeVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest neighbors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m        Match
			distance float64
		)
		if err := rows.Scan(&m.Position, &m.Chunk.SourceID, &m.Chunk.Offset, &m.Chunk.Content, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.Distance = float32(distance)
		if distType == DotProduct {
			m.Distance = -m.Distance
		}
		m.Score = DistanceToScore(m.Distance, distType)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Delete 删除索引，片段随外键级联删除
func (s *PgVectorStore) Delete(ctx context.Context, indexID string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE index_id = $1`, s.indexTable()), indexID)
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIndexNotFound
	}
	return nil
}

// Exists 判断索引是否存在
func (s *PgVectorStore) Exists(ctx context.Context, indexID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE index_id = $1)`, s.indexTable()), indexID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check index: %w", err)
	}
	return exists, nil
}

// Close 关闭连接池
func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}

// encodeVector 转成pgvector的文本表示 [1,2,3]
func encodeVector(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// decodeVector 解析pgvector的文本表示
func decodeVector(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, ErrEmptyVector
	}

	parts := strings.Split(raw, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func init() {
	RegisterStore("pgvector", NewPgVectorStore)
}
