package document

import (
	"fmt"
	"unicode"
)

const (
	// DefaultChunkLength 默认窗口长度（按字符数）
	DefaultChunkLength = 3000
	// DefaultChunkOverlap 默认相邻窗口重叠长度
	DefaultChunkOverlap = 200
)

// Document 待索引的原始文档
type Document struct {
	Text     string // 提取出的文本
	SourceID string // 来源标识，例如文件名
}

// Chunk 文档中的连续片段
type Chunk struct {
	Content  string `json:"content"`   // 片段文本
	SourceID string `json:"source_id"` // 所属文档
	Offset   int    `json:"offset"`    // 在原文中的起始字符位置
}

// Splitter 文本分段器接口
type Splitter interface {
	Split(doc Document) ([]Chunk, error)
}

// SplitterConfig 分段器配置
type SplitterConfig struct {
	ChunkLength  int  // 每个窗口的最大字符数
	ChunkOverlap int  // 相邻窗口的重叠字符数
	SnapToSpace  bool // 是否尽量在空白处切分
	MaxChunks    int  // 最大分块数量（0表示不限制）
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkLength:  DefaultChunkLength,
		ChunkOverlap: DefaultChunkOverlap,
		SnapToSpace:  true,
	}
}

// WindowSplitter 固定长度滑动窗口分段器
type WindowSplitter struct {
	config SplitterConfig
}

// NewWindowSplitter 创建滑动窗口分段器
func NewWindowSplitter(config SplitterConfig) (*WindowSplitter, error) {
	if config.ChunkLength <= 0 {
		return nil, fmt.Errorf("chunk length must be positive, got %d", config.ChunkLength)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkLength {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", config.ChunkLength, config.ChunkOverlap)
	}
	return &WindowSplitter{config: config}, nil
}

// Split 将文档切成窗口，Offset 为片段在原文中的字符下标
func (s *WindowSplitter) Split(doc Document) ([]Chunk, error) {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return []Chunk{}, nil
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + s.config.ChunkLength
		if end >= len(runes) {
			end = len(runes)
		} else if s.config.SnapToSpace {
			end = s.snap(runes, start, end)
		}

		content := string(runes[start:end])
		if !isBlank(content) {
			chunks = append(chunks, Chunk{
				Content:  content,
				SourceID: doc.SourceID,
				Offset:   start,
			})
		}

		if s.config.MaxChunks > 0 && len(chunks) >= s.config.MaxChunks {
			break
		}
		if end == len(runes) {
			break
		}

		next := end - s.config.ChunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// SplitAll 依次切分多个文档
func (s *WindowSplitter) SplitAll(docs []Document) ([]Chunk, error) {
	var all []Chunk
	for _, d := range docs {
		chunks, err := s.Split(d)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", d.SourceID, err)
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// snap 在窗口最后五分之一范围内寻找空白作为切分点
// 找不到时保持原切分点
func (s *WindowSplitter) snap(runes []rune, start, end int) int {
	floor := end - s.config.ChunkLength/5
	if floor <= start+s.config.ChunkOverlap {
		floor = start + s.config.ChunkOverlap + 1
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
