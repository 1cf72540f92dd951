package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWindowSplitterOffsets 测试每个片段都是原文在Offset处的子串
func TestWindowSplitterOffsets(t *testing.T) {
	splitter, err := NewWindowSplitter(SplitterConfig{ChunkLength: 10, ChunkOverlap: 3})
	require.NoError(t, err)

	text := "abcdefghijklmnopqrstuvwxyz"
	chunks, err := splitter.Split(Document{Text: text, SourceID: "alpha"})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	runes := []rune(text)
	for i, c := range chunks {
		assert.Equal(t, "alpha", c.SourceID)
		assert.LessOrEqual(t, len([]rune(c.Content)), 10)
		assert.Equal(t, string(runes[c.Offset:c.Offset+len([]rune(c.Content))]), c.Content, "chunk %d", i)
	}

	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, 7, chunks[1].Offset)
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last.Content))
}

// TestWindowSplitterSnapToSpace 测试在空白处切分
func TestWindowSplitterSnapToSpace(t *testing.T) {
	splitter, err := NewWindowSplitter(SplitterConfig{ChunkLength: 20, ChunkOverlap: 0, SnapToSpace: true})
	require.NoError(t, err)

	chunks, err := splitter.Split(Document{Text: "carbon emissions fall sharply", SourceID: "s"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "carbon emissions ", chunks[0].Content)
	assert.Equal(t, 17, chunks[1].Offset)
	assert.Equal(t, "fall sharply", chunks[1].Content)
}

// TestWindowSplitterShortText 测试短文本只产生一个片段
func TestWindowSplitterShortText(t *testing.T) {
	splitter, err := NewWindowSplitter(DefaultSplitterConfig())
	require.NoError(t, err)

	chunks, err := splitter.Split(Document{Text: "The sky is blue. ESG audits require transparency.", SourceID: "t1"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Offset)
	assert.Contains(t, chunks[0].Content, "transparency")
}

// TestWindowSplitterEmpty 测试空文本与空白文本
func TestWindowSplitterEmpty(t *testing.T) {
	splitter, err := NewWindowSplitter(DefaultSplitterConfig())
	require.NoError(t, err)

	chunks, err := splitter.Split(Document{Text: ""})
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = splitter.Split(Document{Text: "   \n\t "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// TestWindowSplitterMultibyte 测试按字符而不是字节切分
func TestWindowSplitterMultibyte(t *testing.T) {
	splitter, err := NewWindowSplitter(SplitterConfig{ChunkLength: 4, ChunkOverlap: 1})
	require.NoError(t, err)

	chunks, err := splitter.Split(Document{Text: "碳排放与治理审计", SourceID: "zh"})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "碳排放与", chunks[0].Content)
	assert.Equal(t, 3, chunks[1].Offset)
	assert.Equal(t, "与治理审", chunks[1].Content)
	assert.Equal(t, "审计", chunks[2].Content)
}

// TestWindowSplitterMaxChunks 测试最大分块数量限制
func TestWindowSplitterMaxChunks(t *testing.T) {
	splitter, err := NewWindowSplitter(SplitterConfig{ChunkLength: 5, MaxChunks: 2})
	require.NoError(t, err)

	chunks, err := splitter.Split(Document{Text: strings.Repeat("x", 50)})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

// TestWindowSplitterSplitAll 测试多文档切分保留来源
func TestWindowSplitterSplitAll(t *testing.T) {
	splitter, err := NewWindowSplitter(SplitterConfig{ChunkLength: 100})
	require.NoError(t, err)

	chunks, err := splitter.SplitAll([]Document{
		{Text: "first report", SourceID: "a.pdf"},
		{Text: "second report", SourceID: "b.pdf"},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a.pdf", chunks[0].SourceID)
	assert.Equal(t, "b.pdf", chunks[1].SourceID)
}

func TestNewWindowSplitterInvalid(t *testing.T) {
	_, err := NewWindowSplitter(SplitterConfig{ChunkLength: 0})
	assert.Error(t, err)

	_, err = NewWindowSplitter(SplitterConfig{ChunkLength: 10, ChunkOverlap: 10})
	assert.Error(t, err)
}
