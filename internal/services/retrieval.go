package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fyerfyer/esg-insight/internal/cache"
	"github.com/fyerfyer/esg-insight/internal/document"
	"github.com/fyerfyer/esg-insight/internal/embedding"
	"github.com/fyerfyer/esg-insight/internal/llm"
	"github.com/fyerfyer/esg-insight/internal/metrics"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/fyerfyer/esg-insight/internal/repository"
	"github.com/fyerfyer/esg-insight/internal/vectordb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	// DefaultTopK 每次检索的片段数
	DefaultTopK = 3
	// DefaultGroundingThreshold 最相似片段低于该得分时不做基于检索的回答
	DefaultGroundingThreshold float32 = 0.2
	// ConciseMaxLines 简洁模式最多保留的行数
	ConciseMaxLines = 3
)

// Mode 回答模式
type Mode string

const (
	ModeConcise  Mode = "concise"
	ModeDetailed Mode = "detailed"
)

// ParseMode 解析回答模式，空字符串视为简洁模式
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeConcise:
		return ModeConcise, nil
	case ModeDetailed:
		return ModeDetailed, nil
	default:
		return "", fmt.Errorf("unknown answer mode %q", s)
	}
}

// AnswerState 回答过程的状态
type AnswerState string

const (
	StateIdle               AnswerState = "idle"
	StateRetrieving         AnswerState = "retrieving"
	StateRetrieved          AnswerState = "retrieved"
	StateRetrievalEmpty     AnswerState = "retrieval_empty"
	StateGenerating         AnswerState = "generating"
	StateGrounded           AnswerState = "grounded"
	StateUngroundedFallback AnswerState = "ungrounded_fallback"
	StateDone               AnswerState = "done"
	StateError              AnswerState = "error"
)

// Answer 一次问答的结果
type Answer struct {
	Text     string                `json:"text"`
	Mode     Mode                  `json:"mode"`
	IndexID  string                `json:"index_id"`
	Model    string                `json:"model"`
	Grounded bool                  `json:"grounded"`
	Sources  []llm.SourceReference `json:"sources,omitempty"`
	Trace    []AnswerState         `json:"trace"`
	Cached   bool                  `json:"cached"`
}

// State 最终状态
func (a *Answer) State() AnswerState {
	if len(a.Trace) == 0 {
		return StateIdle
	}
	return a.Trace[len(a.Trace)-1]
}

func (a *Answer) enter(s AnswerState) {
	a.Trace = append(a.Trace, s)
}

// IndexInfo 索引构建结果
type IndexInfo struct {
	IndexID    string    `json:"index_id"`
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	ChunkCount int       `json:"chunk_count"`
	Version    string    `json:"version"`
	Sources    []string  `json:"sources"`
	BuiltAt    time.Time `json:"built_at"`
}

// indexLock 每个索引一把构建锁和一把读写锁
// 构建锁串行化同一索引的构建，读写锁只在写入存储时独占
type indexLock struct {
	build sync.Mutex
	rw    sync.RWMutex
}

// RetrievalService 检索问答服务
// 负责构建索引和基于索引回答问题
type RetrievalService struct {
	embedder embedding.Client
	store    vectordb.Store
	models   map[Mode]llm.Client
	rag      *llm.RAGService
	splitter *document.WindowSplitter
	indexes  repository.IndexRepository
	cache    cache.Cache
	cacheTTL time.Duration
	topK     int
	minScore float32
	denyList []string
	distance vectordb.DistanceType
	logger   *logrus.Logger
	locksMu  sync.Mutex
	locks    map[string]*indexLock
}

// RetrievalOption 检索问答服务配置选项
type RetrievalOption func(*RetrievalService)

// WithIndexRepository 设置索引清单仓储
func WithIndexRepository(repo repository.IndexRepository) RetrievalOption {
	return func(s *RetrievalService) {
		s.indexes = repo
	}
}

// WithAnswerCache 设置回答缓存
func WithAnswerCache(c cache.Cache, ttl time.Duration) RetrievalOption {
	return func(s *RetrievalService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithSplitter 设置切分器
func WithSplitter(splitter *document.WindowSplitter) RetrievalOption {
	return func(s *RetrievalService) {
		if splitter != nil {
			s.splitter = splitter
		}
	}
}

// WithTopK 设置检索片段数
func WithTopK(k int) RetrievalOption {
	return func(s *RetrievalService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithGroundingThreshold 设置基于检索回答的最低相似度
func WithGroundingThreshold(score float32) RetrievalOption {
	return func(s *RetrievalService) {
		s.minScore = score
	}
}

// WithDistance 设置新建索引使用的距离度量
func WithDistance(d vectordb.DistanceType) RetrievalOption {
	return func(s *RetrievalService) {
		if d != "" {
			s.distance = d
		}
	}
}

// WithDenyList 设置拒答短语
func WithDenyList(phrases []string) RetrievalOption {
	return func(s *RetrievalService) {
		s.denyList = phrases
	}
}

// WithRAG 设置提示词服务
func WithRAG(rag *llm.RAGService) RetrievalOption {
	return func(s *RetrievalService) {
		if rag != nil {
			s.rag = rag
		}
	}
}

// WithRetrievalLogger 设置日志记录器
func WithRetrievalLogger(logger *logrus.Logger) RetrievalOption {
	return func(s *RetrievalService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRetrievalService 创建检索问答服务
// concise 和 detailed 分别是两种模式使用的大模型
func NewRetrievalService(
	embedder embedding.Client,
	store vectordb.Store,
	concise llm.Client,
	detailed llm.Client,
	opts ...RetrievalOption,
) (*RetrievalService, error) {
	const op = "retrieval.New"
	if embedder == nil || store == nil || concise == nil || detailed == nil {
		return nil, errorf(KindConfiguration, op, "embedder, store and both language models are required")
	}

	splitter, err := document.NewWindowSplitter(document.DefaultSplitterConfig())
	if err != nil {
		return nil, newError(KindConfiguration, op, err)
	}

	s := &RetrievalService{
		embedder: embedder,
		store:    store,
		models:   map[Mode]llm.Client{ModeConcise: concise, ModeDetailed: detailed},
		rag:      llm.NewRAG(),
		splitter: splitter,
		cacheTTL: time.Hour,
		topK:     DefaultTopK,
		minScore: DefaultGroundingThreshold,
		denyList: DefaultDenyList,
		distance: vectordb.Cosine,
		logger:   logrus.New(),
		locks:    make(map[string]*indexLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// lockFor 获取索引对应的锁
func (s *RetrievalService) lockFor(indexID string) *indexLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[indexID]
	if !ok {
		l = &indexLock{}
		s.locks[indexID] = l
	}
	return l
}

// BuildIndex 切分、嵌入并整体替换索引
func (s *RetrievalService) BuildIndex(ctx context.Context, docs []document.Document, indexID string) (info *IndexInfo, err error) {
	const op = "retrieval.BuildIndex"
	start := time.Now()
	defer func() {
		chunks := 0
		if info != nil {
			chunks = info.ChunkCount
		}
		metrics.RecordIndexBuild(chunks, err)
	}()

	if err := vectordb.ValidateIndexID(indexID); err != nil {
		return nil, newError(KindInvalidInput, op, err)
	}
	if len(docs) == 0 {
		return nil, errorf(KindInvalidInput, op, "no documents to index")
	}
	for _, d := range docs {
		if !utf8.ValidString(d.Text) {
			return nil, errorf(KindInvalidInput, op, "document %s is not valid UTF-8", d.SourceID)
		}
	}

	lock := s.lockFor(indexID)
	lock.build.Lock()
	defer lock.build.Unlock()

	chunks, err := s.splitter.SplitAll(docs)
	if err != nil {
		return nil, newError(KindInvalidInput, op, err)
	}
	if len(chunks) == 0 {
		return nil, errorf(KindInvalidInput, op, "documents contain no text")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embedStart := time.Now()
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	metrics.CaptureExecutionMetrics("embedding", time.Since(embedStart))
	if err != nil {
		return nil, newError(KindEmbeddingProvider, op, err)
	}
	if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
		return nil, errorf(KindEmbeddingProvider, op, "provider returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	idx := &vectordb.Index{
		ID:        indexID,
		Model:     s.embedder.Name(),
		Dimension: len(vectors[0]),
		Distance:  s.distance,
		Version:   uuid.New().String(),
		BuiltAt:   time.Now().UTC(),
		Chunks:    chunks,
		Vectors:   vectors,
	}

	// 保留旧索引，清单写入失败时回滚
	previous, err := s.store.Load(ctx, indexID)
	if err != nil && !errors.Is(err, vectordb.ErrIndexNotFound) {
		return nil, newError(KindIndexPersist, op, err)
	}

	lock.rw.Lock()
	err = s.store.Save(ctx, idx)
	lock.rw.Unlock()
	if err != nil {
		if errors.Is(err, vectordb.ErrInvalidDimension) || errors.Is(err, vectordb.ErrEmptyVector) {
			return nil, newError(KindEmbeddingProvider, op, err)
		}
		return nil, newError(KindIndexPersist, op, err)
	}
	// 存储已经被替换过，无论后续是否成功旧回答都不能再用
	defer s.invalidateAnswers(ctx, indexID)

	info = &IndexInfo{
		IndexID:    indexID,
		Model:      idx.Model,
		Dimension:  idx.Dimension,
		ChunkCount: len(chunks),
		Version:    idx.Version,
		Sources:    sourceIDs(docs),
		BuiltAt:    idx.BuiltAt,
	}
	if err := s.recordManifest(ctx, info); err != nil {
		s.rollback(ctx, lock, indexID, previous)
		return nil, newError(KindIndexPersist, op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"index_id": indexID,
		"model":    info.Model,
		"chunks":   info.ChunkCount,
		"version":  info.Version,
		"elapsed":  time.Since(start).String(),
	}).Info("Index built")
	return info, nil
}

// recordManifest 记录索引清单
func (s *RetrievalService) recordManifest(ctx context.Context, info *IndexInfo) error {
	if s.indexes == nil {
		return nil
	}
	sources, err := json.Marshal(info.Sources)
	if err != nil {
		return err
	}
	err = s.indexes.WithContext(ctx).Upsert(&models.IndexRecord{
		IndexID:    info.IndexID,
		Model:      info.Model,
		Dimension:  info.Dimension,
		ChunkCount: info.ChunkCount,
		Version:    info.Version,
		Sources:    datatypes.JSON(sources),
		BuiltAt:    info.BuiltAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record index manifest: %w", err)
	}
	return nil
}

// rollback 恢复构建前的索引，原来没有索引时删除新写入的
func (s *RetrievalService) rollback(ctx context.Context, lock *indexLock, indexID string, previous *vectordb.Index) {
	lock.rw.Lock()
	defer lock.rw.Unlock()

	var err error
	if previous != nil {
		err = s.store.Save(ctx, previous)
	} else {
		err = s.store.Delete(ctx, indexID)
	}
	if err != nil && !errors.Is(err, vectordb.ErrIndexNotFound) {
		s.logger.WithError(err).WithField("index_id", indexID).Error("Failed to roll back index")
		return
	}
	s.logger.WithField("index_id", indexID).Warn("Index build rolled back")
}

// invalidateAnswers 删除索引相关的回答缓存
func (s *RetrievalService) invalidateAnswers(ctx context.Context, indexID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, cache.IndexPrefix(indexID)); err != nil {
		s.logger.WithError(err).WithField("index_id", indexID).Warn("Failed to invalidate answer cache")
	}
}

// IndexInfo 返回索引清单，先查清单仓储，没有记录时读取存储本身
// 不在进程内缓存，其他进程重建索引后立即可见
func (s *RetrievalService) IndexInfo(ctx context.Context, indexID string) (*IndexInfo, error) {
	const op = "retrieval.IndexInfo"
	if err := vectordb.ValidateIndexID(indexID); err != nil {
		return nil, newError(KindInvalidInput, op, err)
	}

	if s.indexes != nil {
		rec, err := s.indexes.WithContext(ctx).Get(indexID)
		if err == nil {
			info := IndexInfo{
				IndexID:    rec.IndexID,
				Model:      rec.Model,
				Dimension:  rec.Dimension,
				ChunkCount: rec.ChunkCount,
				Version:    rec.Version,
				BuiltAt:    rec.BuiltAt,
			}
			if len(rec.Sources) > 0 {
				_ = json.Unmarshal(rec.Sources, &info.Sources)
			}
			return &info, nil
		}
		if !errors.Is(err, models.ErrIndexRecordNotFound) {
			return nil, newError(KindIndexPersist, op, err)
		}
	}

	lock := s.lockFor(indexID)
	lock.rw.RLock()
	idx, err := s.store.Load(ctx, indexID)
	lock.rw.RUnlock()
	if errors.Is(err, vectordb.ErrIndexNotFound) {
		return nil, newError(KindIndexNotFound, op, fmt.Errorf("index %q does not exist", indexID))
	}
	if err != nil {
		return nil, newError(KindIndexPersist, op, err)
	}

	seen := map[string]bool{}
	var sources []string
	for _, c := range idx.Chunks {
		if !seen[c.SourceID] {
			seen[c.SourceID] = true
			sources = append(sources, c.SourceID)
		}
	}
	info := IndexInfo{
		IndexID:    idx.ID,
		Model:      idx.Model,
		Dimension:  idx.Dimension,
		ChunkCount: len(idx.Chunks),
		Version:    idx.Version,
		Sources:    sources,
		BuiltAt:    idx.BuiltAt,
	}
	return &info, nil
}

// DeleteIndex 删除索引、清单和相关回答缓存
func (s *RetrievalService) DeleteIndex(ctx context.Context, indexID string) error {
	const op = "retrieval.DeleteIndex"
	if err := vectordb.ValidateIndexID(indexID); err != nil {
		return newError(KindInvalidInput, op, err)
	}

	lock := s.lockFor(indexID)
	lock.build.Lock()
	defer lock.build.Unlock()

	lock.rw.Lock()
	err := s.store.Delete(ctx, indexID)
	lock.rw.Unlock()

	if errors.Is(err, vectordb.ErrIndexNotFound) {
		return newError(KindIndexNotFound, op, fmt.Errorf("index %q does not exist", indexID))
	}
	if err != nil {
		return newError(KindIndexPersist, op, err)
	}

	if s.indexes != nil {
		if err := s.indexes.WithContext(ctx).Delete(indexID); err != nil && !errors.Is(err, models.ErrIndexRecordNotFound) {
			return newError(KindIndexPersist, op, err)
		}
	}
	s.invalidateAnswers(ctx, indexID)

	s.logger.WithField("index_id", indexID).Info("Index deleted")
	return nil
}

// Retrieve 返回与查询最相似的片段，不调用大模型
func (s *RetrievalService) Retrieve(ctx context.Context, query, indexID string, k int) ([]vectordb.Match, *IndexInfo, error) {
	const op = "retrieval.Retrieve"
	if strings.TrimSpace(query) == "" || !utf8.ValidString(query) {
		return nil, nil, errorf(KindInvalidInput, op, "query must be non-empty valid UTF-8")
	}
	if k <= 0 {
		k = s.topK
	}

	info, err := s.IndexInfo(ctx, indexID)
	if err != nil {
		return nil, nil, err
	}
	if model := s.embedder.Name(); model != info.Model {
		return nil, info, errorf(KindEmbeddingModelMismatch, op,
			"index %q was built with %s but the current provider is %s", indexID, info.Model, model)
	}

	embedStart := time.Now()
	vector, err := s.embedder.Embed(ctx, query)
	metrics.CaptureExecutionMetrics("embedding", time.Since(embedStart))
	if err != nil {
		return nil, info, newError(KindEmbeddingProvider, op, err)
	}

	lock := s.lockFor(indexID)
	searchStart := time.Now()
	lock.rw.RLock()
	matches, err := s.store.NearestNeighbors(ctx, indexID, vector, k)
	lock.rw.RUnlock()
	metrics.CaptureExecutionMetrics("vector_search", time.Since(searchStart))

	switch {
	case err == nil:
		return matches, info, nil
	case errors.Is(err, vectordb.ErrIndexNotFound):
		return nil, info, newError(KindIndexNotFound, op, err)
	case errors.Is(err, vectordb.ErrInvalidDimension):
		return nil, info, newError(KindEmbeddingModelMismatch, op, err)
	default:
		return nil, info, newError(KindIndexPersist, op, err)
	}
}

// Answer 基于索引回答问题
// 检索结果不可用时退回到通用搜索，session 非空时追加本轮问答
// 检索或生成阶段失败时同时返回错误和以 StateError 结尾的状态轨迹，Text 为空
func (s *RetrievalService) Answer(ctx context.Context, session *Session, query, indexID string, mode Mode) (*Answer, error) {
	const op = "retrieval.Answer"
	ans := &Answer{Mode: mode, IndexID: indexID}
	ans.enter(StateIdle)

	if strings.TrimSpace(query) == "" || !utf8.ValidString(query) {
		return nil, errorf(KindInvalidInput, op, "query must be non-empty valid UTF-8")
	}
	client, ok := s.models[mode]
	if !ok {
		return nil, errorf(KindInvalidInput, op, "unknown answer mode %q", mode)
	}

	info, err := s.IndexInfo(ctx, indexID)
	if err != nil {
		return nil, err
	}

	// 有历史的会话提示词不同，不走缓存
	useCache := s.cache != nil && (session == nil || session.Len() == 0)
	cacheKey := cache.AnswerKey(indexID, info.Version, string(mode), query)
	if useCache {
		var cached Answer
		found, err := cache.GetJSON(ctx, s.cache, cacheKey, &cached)
		if err != nil {
			s.logger.WithError(err).Warn("Answer cache lookup failed")
		}
		metrics.RecordCacheLookup(found)
		if found {
			cached.Cached = true
			if err := s.appendTurns(session, query, cached.Text); err != nil {
				return nil, newError(KindInternal, op, err)
			}
			return &cached, nil
		}
	}

	ans.enter(StateRetrieving)
	matches, _, err := s.Retrieve(ctx, query, indexID, s.topK)
	if err != nil {
		ans.enter(StateError)
		metrics.RecordAnswer(string(mode), string(StateError))
		return ans, err
	}
	if len(matches) == 0 {
		ans.enter(StateRetrievalEmpty)
	} else {
		ans.enter(StateRetrieved)
	}

	ans.enter(StateGenerating)
	var history []llm.Message
	if session != nil {
		history = session.History(0)
	}
	req := &AnswerRequest{
		Query:   query,
		Mode:    mode,
		Matches: matches,
		History: history,
		Client:  client,
	}

	genStart := time.Now()
	result, attempts, err := RunStrategies(ctx, req,
		&GroundedStrategy{RAG: s.rag, MinScore: s.minScore, DenyList: s.denyList},
		&SearchStrategy{RAG: s.rag},
	)
	metrics.CaptureExecutionMetrics("llm_generation", time.Since(genStart))
	if err != nil {
		ans.enter(StateError)
		metrics.RecordAnswer(string(mode), string(StateError))
		return ans, newError(KindAnswerGeneration, op, err)
	}

	for _, a := range attempts {
		if a.Outcome == OutcomeNoAnswer {
			s.logger.WithFields(logrus.Fields{
				"index_id": indexID,
				"strategy": a.Strategy,
				"reason":   a.Reason,
			}).Info("Answer strategy produced no answer")
		}
	}

	if result.Grounded {
		ans.enter(StateGrounded)
	} else {
		ans.enter(StateUngroundedFallback)
	}

	ans.Text = result.Text
	if mode == ModeConcise {
		ans.Text = TruncateLines(result.Text, ConciseMaxLines)
	}
	ans.Model = result.Model
	ans.Grounded = result.Grounded
	ans.Sources = result.Sources
	ans.enter(StateDone)

	if err := s.appendTurns(session, query, ans.Text); err != nil {
		return nil, newError(KindInternal, op, err)
	}

	if useCache {
		if err := cache.SetJSON(ctx, s.cache, cacheKey, ans, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache answer")
		}
	}

	metrics.RecordAnswer(string(mode), string(ans.State()))
	s.logger.WithFields(logrus.Fields{
		"index_id": indexID,
		"mode":     mode,
		"grounded": ans.Grounded,
		"model":    ans.Model,
	}).Info("Question answered")
	return ans, nil
}

// Search 直接走通用搜索，不依赖索引
// 生成失败时和 Answer 一样返回带 StateError 轨迹的结果
func (s *RetrievalService) Search(ctx context.Context, query string, mode Mode) (*Answer, error) {
	const op = "retrieval.Search"
	if strings.TrimSpace(query) == "" || !utf8.ValidString(query) {
		return nil, errorf(KindInvalidInput, op, "query must be non-empty valid UTF-8")
	}
	client, ok := s.models[mode]
	if !ok {
		return nil, errorf(KindInvalidInput, op, "unknown answer mode %q", mode)
	}

	ans := &Answer{Mode: mode}
	ans.enter(StateIdle)
	ans.enter(StateGenerating)
	result, _, err := RunStrategies(ctx, &AnswerRequest{Query: query, Mode: mode, Client: client}, &SearchStrategy{RAG: s.rag})
	if err != nil {
		ans.enter(StateError)
		metrics.RecordAnswer(string(mode), string(StateError))
		return ans, newError(KindAnswerGeneration, op, err)
	}
	ans.enter(StateUngroundedFallback)
	ans.Text = result.Text
	if mode == ModeConcise {
		ans.Text = TruncateLines(result.Text, ConciseMaxLines)
	}
	ans.Model = result.Model
	ans.enter(StateDone)
	return ans, nil
}

// appendTurns 追加用户提问和助手回答
func (s *RetrievalService) appendTurns(session *Session, query, answer string) error {
	if session == nil {
		return nil
	}
	if err := session.Append(llm.RoleUser, query); err != nil {
		return err
	}
	return session.Append(llm.RoleAssistant, answer)
}

// TruncateLines 保留前max个非空行
func TruncateLines(text string, max int) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := make([]string, 0, max)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
		if len(kept) == max {
			break
		}
	}
	return strings.Join(kept, "\n")
}

// sourceIDs 去重后的来源ID
func sourceIDs(docs []document.Document) []string {
	seen := make(map[string]bool, len(docs))
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if !seen[d.SourceID] {
			seen[d.SourceID] = true
			out = append(out, d.SourceID)
		}
	}
	return out
}
