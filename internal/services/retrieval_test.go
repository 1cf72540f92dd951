package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/esg-insight/internal/cache"
	"github.com/fyerfyer/esg-insight/internal/database"
	"github.com/fyerfyer/esg-insight/internal/document"
	"github.com/fyerfyer/esg-insight/internal/embedding"
	"github.com/fyerfyer/esg-insight/internal/llm"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/fyerfyer/esg-insight/internal/repository"
	"github.com/fyerfyer/esg-insight/internal/vectordb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const t1Text = "The sky is blue. ESG audits require transparency."

// quietLogger 测试中只输出错误日志
func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

// newTestDB 打开内存SQLite并迁移
func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:memdb_services_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// newMockModels 创建两种模式的模拟大模型
func newMockModels(t *testing.T) (*llm.MockClient, *llm.MockClient) {
	concise := llm.NewMockClient(t)
	concise.On("Name").Return("groq/" + llm.ModelGroqSmall).Maybe()
	detailed := llm.NewMockClient(t)
	detailed.On("Name").Return("groq/" + llm.ModelGroqLarge).Maybe()
	return concise, detailed
}

// newTestRetrieval 使用哈希嵌入和内存存储创建检索服务
func newTestRetrieval(t *testing.T, store vectordb.Store, concise, detailed llm.Client, opts ...RetrievalOption) *RetrievalService {
	embedder, err := embedding.NewClient("hashing")
	require.NoError(t, err)
	if store == nil {
		store, err = vectordb.NewStore(vectordb.Config{Type: "memory"})
		require.NoError(t, err)
	}
	opts = append([]RetrievalOption{
		WithGroundingThreshold(0.05),
		WithRetrievalLogger(quietLogger()),
	}, opts...)
	svc, err := NewRetrievalService(embedder, store, concise, detailed, opts...)
	require.NoError(t, err)
	return svc
}

func groundedPrompt(p string) bool {
	return strings.Contains(p, "Report excerpts:")
}

func searchPrompt(p string) bool {
	return strings.HasPrefix(p, "Give 3 recent search results")
}

// TestBuildAndAnswerGrounded 构建索引后问题能检索到包含答案的片段
func TestBuildAndAnswerGrounded(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)

	info, err := svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", info.IndexID)
	assert.Equal(t, "hashing/256", info.Model)
	assert.Equal(t, 1, info.ChunkCount)
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, []string{"doc1"}, info.Sources)

	concise.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return groundedPrompt(p) && strings.Contains(p, "transparency") &&
			strings.Contains(p, "what does transparency require?")
	})).Return(&llm.Response{Text: "ESG audits require transparency.\n\nSecond line\nThird line\nFourth line"}, nil).Once()

	session := NewSession("s1")
	ans, err := svc.Answer(ctx, session, "what does transparency require?", "t1", ModeConcise)
	require.NoError(t, err)

	assert.True(t, ans.Grounded)
	assert.Equal(t, "ESG audits require transparency.\nSecond line\nThird line", ans.Text)
	require.NotEmpty(t, ans.Sources)
	assert.Contains(t, ans.Sources[0].Content, "transparency")
	assert.Equal(t, "doc1", ans.Sources[0].SourceID)
	assert.Equal(t, []AnswerState{
		StateIdle, StateRetrieving, StateRetrieved, StateGenerating, StateGrounded, StateDone,
	}, ans.Trace)
	assert.Equal(t, StateDone, ans.State())

	turns := session.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, llm.RoleUser, turns[0].Role)
	assert.Equal(t, "what does transparency require?", turns[0].Content)
	assert.Equal(t, llm.RoleAssistant, turns[1].Role)
	assert.Equal(t, ans.Text, turns[1].Content)
}

// TestRetrieveRoundTrip 与片段原文相同的查询一定在前三个结果中
func TestRetrieveRoundTrip(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed, WithSplitter(mustSplitter(t, 60, 10)))

	text := "Scope 1 emissions fell by twelve percent this year. " +
		"The board added two independent directors to the audit committee. " +
		"Employee safety training hours doubled across all plants. " +
		"Renewable energy now supplies forty percent of our electricity."
	_, err := svc.BuildIndex(ctx, []document.Document{{Text: text, SourceID: "acme"}}, "acme")
	require.NoError(t, err)

	idx, err := svc.store.Load(ctx, "acme")
	require.NoError(t, err)
	require.Greater(t, len(idx.Chunks), 1)

	for _, c := range idx.Chunks {
		matches, _, err := svc.Retrieve(ctx, c.Content, "acme", 3)
		require.NoError(t, err)
		var found bool
		for _, m := range matches {
			if m.Chunk.Content == c.Content {
				found = true
			}
		}
		assert.True(t, found, "chunk %q should be among top-3", c.Content)
	}
}

func mustSplitter(t *testing.T, length, overlap int) *document.WindowSplitter {
	s, err := document.NewWindowSplitter(document.SplitterConfig{ChunkLength: length, ChunkOverlap: overlap, SnapToSpace: true})
	require.NoError(t, err)
	return s
}

// TestAnswerIndexNotFound 索引不存在时返回 IndexNotFound
func TestAnswerIndexNotFound(t *testing.T) {
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)

	ans, err := svc.Answer(context.Background(), NewSession("s"), "anything", "missing", ModeConcise)
	assert.Nil(t, ans)
	assert.ErrorIs(t, err, KindIndexNotFound)
	assert.Equal(t, KindIndexNotFound, KindOf(err))
}

// TestAnswerModelMismatch 查询时的嵌入模型与构建时不同
func TestAnswerModelMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory"})
	require.NoError(t, err)

	concise, detailed := newMockModels(t)
	builder := newTestRetrieval(t, store, concise, detailed)
	_, err = builder.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)

	small, err := embedding.NewClient("hashing", embedding.WithDimensions(64))
	require.NoError(t, err)
	reader, err := NewRetrievalService(small, store, concise, detailed, WithRetrievalLogger(quietLogger()))
	require.NoError(t, err)

	_, err = reader.Answer(ctx, nil, "transparency", "t1", ModeConcise)
	assert.ErrorIs(t, err, KindEmbeddingModelMismatch)
}

// TestAnswerFallbackOnDeny 模型拒答时退回到通用搜索
func TestAnswerFallbackOnDeny(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)
	_, err := svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)

	concise.On("Generate", mock.Anything, mock.MatchedBy(groundedPrompt)).
		Return(&llm.Response{Text: "Sorry, I DON'T KNOW based on these excerpts."}, nil).Once()
	concise.On("Generate", mock.Anything, mock.MatchedBy(searchPrompt)).
		Return(&llm.Response{Text: "1. EU CSRD guide - https://example.com/csrd"}, nil).Once()

	ans, err := svc.Answer(ctx, nil, "what does transparency require?", "t1", ModeConcise)
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, "1. EU CSRD guide - https://example.com/csrd", ans.Text)
	assert.Equal(t, []AnswerState{
		StateIdle, StateRetrieving, StateRetrieved, StateGenerating, StateUngroundedFallback, StateDone,
	}, ans.Trace)
}

// TestAnswerFallbackBelowThreshold 相似度不足时不调用基于检索的生成
func TestAnswerFallbackBelowThreshold(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed, WithGroundingThreshold(0.999))
	_, err := svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)

	concise.On("Generate", mock.Anything, mock.MatchedBy(searchPrompt)).
		Return(&llm.Response{Text: "result"}, nil).Once()

	ans, err := svc.Answer(ctx, nil, "board diversity", "t1", ModeConcise)
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Equal(t, "result", ans.Text)
	concise.AssertNotCalled(t, "Generate", mock.Anything, mock.MatchedBy(groundedPrompt))
}

// TestAnswerGenerationError 模型调用失败时不退回，错误带原因
func TestAnswerGenerationError(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)
	_, err := svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)

	cause := llm.NewLLMError(llm.ErrCodeRateLimited, llm.ErrMsgRateLimited)
	concise.On("Generate", mock.Anything, mock.MatchedBy(groundedPrompt)).Return(nil, cause).Once()

	session := NewSession("s")
	ans, err := svc.Answer(ctx, session, "what does transparency require?", "t1", ModeConcise)
	assert.ErrorIs(t, err, KindAnswerGeneration)
	require.NotNil(t, ans, "failed answers still carry their trace")
	assert.Empty(t, ans.Text)
	assert.Equal(t, StateError, ans.State())
	assert.Equal(t, []AnswerState{StateIdle, StateRetrieving, StateRetrieved, StateGenerating, StateError}, ans.Trace)

	var llmErr llm.LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrCodeRateLimited, llmErr.Code)
	assert.Equal(t, 0, session.Len(), "failed answers are not recorded")
	concise.AssertNotCalled(t, "Generate", mock.Anything, mock.MatchedBy(searchPrompt))
}

// TestDetailedModeReturnsRaw 详细模式使用大模型且不截断
func TestDetailedModeReturnsRaw(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)
	_, err := svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)

	raw := "Line one\nLine two\n\nLine three\nLine four\nLine five  "
	detailed.On("Generate", mock.Anything, mock.MatchedBy(groundedPrompt)).
		Return(&llm.Response{Text: raw}, nil).Once()

	ans, err := svc.Answer(ctx, nil, "what does transparency require?", "t1", ModeDetailed)
	require.NoError(t, err)
	assert.Equal(t, raw, ans.Text)
	assert.Equal(t, "groq/"+llm.ModelGroqLarge, ans.Model)
	concise.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

// TestRebuildReplacesChunks 重建后不会检索到旧文档的片段
func TestRebuildReplacesChunks(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)

	first, err := svc.BuildIndex(ctx, []document.Document{{Text: "Carbon emissions fell sharply.", SourceID: "old"}}, "acme")
	require.NoError(t, err)
	second, err := svc.BuildIndex(ctx, []document.Document{{Text: "Board diversity improved.", SourceID: "new"}}, "acme")
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)

	matches, _, err := svc.Retrieve(ctx, "carbon emissions", "acme", 3)
	require.NoError(t, err)
	for _, m := range matches {
		assert.Equal(t, "new", m.Chunk.SourceID)
		assert.NotContains(t, m.Chunk.Content, "Carbon")
	}

	info, err := svc.IndexInfo(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, second.Version, info.Version)
}

// TestBuildIndexInvalidInput 非法输入
func TestBuildIndexInvalidInput(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)

	_, err := svc.BuildIndex(ctx, nil, "t1")
	assert.ErrorIs(t, err, KindInvalidInput)

	_, err = svc.BuildIndex(ctx, []document.Document{{Text: "  \n\t ", SourceID: "blank"}}, "t1")
	assert.ErrorIs(t, err, KindInvalidInput)

	_, err = svc.BuildIndex(ctx, []document.Document{{Text: "ok", SourceID: "a"}}, "")
	assert.ErrorIs(t, err, KindInvalidInput)

	_, err = svc.BuildIndex(ctx, []document.Document{{Text: "bad \xff utf8", SourceID: "a"}}, "t1")
	assert.ErrorIs(t, err, KindInvalidInput)

	_, err = svc.Answer(ctx, nil, "   ", "t1", ModeConcise)
	assert.ErrorIs(t, err, KindInvalidInput)

	_, err = svc.Answer(ctx, nil, "question", "t1", Mode("verbose"))
	assert.ErrorIs(t, err, KindInvalidInput)
}

// TestBuildIndexEmbeddingError 嵌入失败时不写入索引
func TestBuildIndexEmbeddingError(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)

	embedder := embedding.NewMockClient(t)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, embedding.NewEmbeddingError(embedding.ErrCodeInvalidAPIKey, "bad key")).Once()

	store, err := vectordb.NewStore(vectordb.Config{Type: "memory"})
	require.NoError(t, err)
	svc, err := NewRetrievalService(embedder, store, concise, detailed, WithRetrievalLogger(quietLogger()))
	require.NoError(t, err)

	_, err = svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	assert.ErrorIs(t, err, KindEmbeddingProvider)

	exists, err := store.Exists(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestAnswerCache 相同问题命中缓存，重建索引后缓存失效
func TestAnswerCache(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	svc := newTestRetrieval(t, nil, concise, detailed, WithAnswerCache(c, time.Minute))

	docs := []document.Document{{Text: t1Text, SourceID: "doc1"}}
	_, err = svc.BuildIndex(ctx, docs, "t1")
	require.NoError(t, err)

	concise.On("Generate", mock.Anything, mock.MatchedBy(groundedPrompt)).
		Return(&llm.Response{Text: "Audits require transparency."}, nil).Times(2)

	first, err := svc.Answer(ctx, nil, "what does transparency require?", "t1", ModeConcise)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Answer(ctx, nil, "What does  transparency require?", "t1", ModeConcise)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)

	_, err = svc.BuildIndex(ctx, docs, "t1")
	require.NoError(t, err)

	third, err := svc.Answer(ctx, nil, "what does transparency require?", "t1", ModeConcise)
	require.NoError(t, err)
	assert.False(t, third.Cached)
}

// TestIndexManifestFromRepository 新服务实例从清单仓储读取模型信息
func TestIndexManifestFromRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewIndexRepositoryWithDB(db)
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory"})
	require.NoError(t, err)

	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, store, concise, detailed, WithIndexRepository(repo))
	built, err := svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)

	rec, err := repo.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, built.Version, rec.Version)
	assert.Equal(t, "hashing/256", rec.Model)

	fresh := newTestRetrieval(t, store, concise, detailed, WithIndexRepository(repo))
	info, err := fresh.IndexInfo(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, built.Version, info.Version)
	assert.Equal(t, []string{"doc1"}, info.Sources)

	require.NoError(t, fresh.DeleteIndex(ctx, "t1"))
	_, err = repo.Get("t1")
	assert.Error(t, err)
	_, err = fresh.IndexInfo(ctx, "t1")
	assert.ErrorIs(t, err, KindIndexNotFound)
	assert.ErrorIs(t, fresh.DeleteIndex(ctx, "t1"), KindIndexNotFound)
}

// TestConcurrentBuildAndRetrieve 并发重建时读者只看到完整索引
func TestConcurrentBuildAndRetrieve(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)

	docA := []document.Document{{Text: "carbon emissions and climate targets", SourceID: "a"}}
	docB := []document.Document{{Text: "carbon board audit and ethics", SourceID: "b"}}
	_, err := svc.BuildIndex(ctx, docA, "shared")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			docs := docA
			if i%2 == 0 {
				docs = docB
			}
			_, err := svc.BuildIndex(ctx, docs, "shared")
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			matches, _, err := svc.Retrieve(ctx, "carbon", "shared", 3)
			if assert.NoError(t, err) && assert.Len(t, matches, 1) {
				assert.Contains(t, []string{"a", "b"}, matches[0].Chunk.SourceID)
			}
		}()
	}
	wg.Wait()
}

// TestSearch 直接通用搜索
func TestSearch(t *testing.T) {
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)

	concise.On("Generate", mock.Anything, "Give 3 recent search results with title and link for the query: CSRD deadlines").
		Return(&llm.Response{Text: "a\nb\nc\nd"}, nil).Once()

	ans, err := svc.Search(context.Background(), "CSRD deadlines", ModeConcise)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc", ans.Text)
	assert.Equal(t, StateDone, ans.State())

	_, err = svc.Search(context.Background(), "", ModeConcise)
	assert.ErrorIs(t, err, KindInvalidInput)
}

func TestTruncateLines(t *testing.T) {
	assert.Equal(t, "a\nb\nc", TruncateLines("a\n\nb\r\n  \nc\nd", 3))
	assert.Equal(t, "only", TruncateLines("only", 3))
	assert.Equal(t, "", TruncateLines("\n\n", 3))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeConcise, m)

	m, err = ParseMode(" Detailed ")
	require.NoError(t, err)
	assert.Equal(t, ModeDetailed, m)

	_, err = ParseMode("verbose")
	assert.Error(t, err)
}

func TestNewRetrievalServiceRequiresCollaborators(t *testing.T) {
	_, err := NewRetrievalService(nil, nil, nil, nil)
	assert.ErrorIs(t, err, KindConfiguration)
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindIndexPersist, "op", cause)

	assert.ErrorIs(t, err, KindIndexPersist)
	assert.NotErrorIs(t, err, KindIndexNotFound)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "op: index persist error: boom", err.Error())
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.Equal(t, Kind(""), KindOf(nil))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.Equal(t, KindIndexPersist, KindOf(wrapped))
}

// TestAnswerRetrievalErrorTrace 检索阶段失败时轨迹停在 Error
func TestAnswerRetrievalErrorTrace(t *testing.T) {
	ctx := context.Background()
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory"})
	require.NoError(t, err)
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, store, concise, detailed, WithIndexRepository(repository.NewIndexRepositoryWithDB(newTestDB(t))))
	_, err = svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)

	// 清单还在，存储中的索引被别处删掉
	require.NoError(t, store.Delete(ctx, "t1"))

	ans, err := svc.Answer(ctx, nil, "what does transparency require?", "t1", ModeConcise)
	assert.ErrorIs(t, err, KindIndexNotFound)
	require.NotNil(t, ans)
	assert.Equal(t, []AnswerState{StateIdle, StateRetrieving, StateError}, ans.Trace)
	concise.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

// TestSearchErrorTrace 通用搜索失败时返回带轨迹的结果
func TestSearchErrorTrace(t *testing.T) {
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, nil, concise, detailed)
	concise.On("Generate", mock.Anything, mock.MatchedBy(searchPrompt)).
		Return(nil, errors.New("upstream down")).Once()

	ans, err := svc.Search(context.Background(), "CSRD deadlines", ModeConcise)
	assert.ErrorIs(t, err, KindAnswerGeneration)
	require.NotNil(t, ans)
	assert.Equal(t, StateError, ans.State())
	assert.Empty(t, ans.Text)
}

// TestRebuildVisibleAcrossServices 两个进程共用索引目录，一方重建后另一方立即看到新内容
func TestRebuildVisibleAcrossServices(t *testing.T) {
	for _, withRepo := range []bool{true, false} {
		t.Run(fmt.Sprintf("repository=%v", withRepo), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			var opts []RetrievalOption
			if withRepo {
				opts = append(opts, WithIndexRepository(repository.NewIndexRepositoryWithDB(newTestDB(t))))
			}
			newService := func() *RetrievalService {
				store, err := vectordb.NewStore(vectordb.Config{Type: "file", Path: dir})
				require.NoError(t, err)
				concise, detailed := newMockModels(t)
				return newTestRetrieval(t, store, concise, detailed, opts...)
			}
			server, cli := newService(), newService()

			_, err := cli.BuildIndex(ctx, []document.Document{{Text: "old carbon emissions policy", SourceID: "old"}}, "r1")
			require.NoError(t, err)

			matches, info, err := server.Retrieve(ctx, "carbon emissions", "r1", 3)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "old", matches[0].Chunk.SourceID)
			oldVersion := info.Version

			rebuilt, err := cli.BuildIndex(ctx, []document.Document{{Text: "new board audit governance charter", SourceID: "new"}}, "r1")
			require.NoError(t, err)

			matches, info, err = server.Retrieve(ctx, "board audit", "r1", 3)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "new", matches[0].Chunk.SourceID)
			assert.Equal(t, "new board audit governance charter", matches[0].Chunk.Content)
			assert.Equal(t, rebuilt.Version, info.Version)
			assert.NotEqual(t, oldVersion, info.Version)

			require.NoError(t, cli.DeleteIndex(ctx, "r1"))
			_, _, err = server.Retrieve(ctx, "board audit", "r1", 3)
			assert.ErrorIs(t, err, KindIndexNotFound)
		})
	}
}

// TestBuildIndexManifestFailureRollsBack 清单写入失败时恢复旧索引并清掉旧回答
func TestBuildIndexManifestFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory"})
	require.NoError(t, err)
	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, store, concise, detailed,
		WithIndexRepository(repository.NewIndexRepositoryWithDB(db)),
		WithAnswerCache(c, time.Minute))

	const question = "carbon emissions policy"
	old, err := svc.BuildIndex(ctx, []document.Document{{Text: "old carbon emissions policy", SourceID: "old"}}, "r1")
	require.NoError(t, err)

	concise.On("Generate", mock.Anything, mock.Anything).
		Return(&llm.Response{Text: "answer from the carbon policy"}, nil).Times(2)
	first, err := svc.Answer(ctx, nil, question, "r1", ModeConcise)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	require.NoError(t, db.Migrator().DropTable(&models.IndexRecord{}))

	_, err = svc.BuildIndex(ctx, []document.Document{{Text: "new board audit governance charter", SourceID: "new"}}, "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, KindIndexPersist)

	restored, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, old.Version, restored.Version)
	require.Len(t, restored.Chunks, 1)
	assert.Equal(t, "old", restored.Chunks[0].SourceID)

	var cached Answer
	found, err := cache.GetJSON(ctx, c, cache.AnswerKey("r1", old.Version, string(ModeConcise), question), &cached)
	require.NoError(t, err)
	assert.False(t, found, "answers are invalidated once the store was touched")

	require.NoError(t, database.AutoMigrate(db))
	again, err := svc.Answer(ctx, nil, question, "r1", ModeConcise)
	require.NoError(t, err)
	assert.False(t, again.Cached)
}

// TestBuildIndexManifestFailureRemovesNewIndex 首次构建失败时不留下索引
func TestBuildIndexManifestFailureRemovesNewIndex(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory"})
	require.NoError(t, err)
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, store, concise, detailed, WithIndexRepository(repository.NewIndexRepositoryWithDB(db)))

	require.NoError(t, db.Migrator().DropTable(&models.IndexRecord{}))

	_, err = svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	assert.ErrorIs(t, err, KindIndexPersist)

	exists, err := store.Exists(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestBuildIndexUsesConfiguredDistance 新建索引记录配置的距离度量
func TestBuildIndexUsesConfiguredDistance(t *testing.T) {
	ctx := context.Background()
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory"})
	require.NoError(t, err)
	concise, detailed := newMockModels(t)
	svc := newTestRetrieval(t, store, concise, detailed, WithDistance(vectordb.Euclidean))

	_, err = svc.BuildIndex(ctx, []document.Document{{Text: t1Text, SourceID: "doc1"}}, "t1")
	require.NoError(t, err)

	idx, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, vectordb.Euclidean, idx.Distance)

	matches, _, err := svc.Retrieve(ctx, "transparency", "t1", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.GreaterOrEqual(t, matches[0].Distance, float32(0))
	assert.LessOrEqual(t, matches[0].Score, float32(1))
}
