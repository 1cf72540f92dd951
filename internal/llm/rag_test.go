package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestBuildPrompt 测试提示词包含片段、问题和最近的对话
func TestBuildPrompt(t *testing.T) {
	rag := NewRAG(WithHistoryTurns(2))
	sources := []SourceReference{
		{SourceID: "report.pdf", Content: "ESG audits require transparency."},
		{SourceID: "report.pdf", Content: "The sky is blue."},
	}
	history := []Message{
		{Role: RoleUser, Content: "old question"},
		{Role: RoleUser, Content: "what is scope 1?"},
		{Role: RoleAssistant, Content: "direct emissions"},
	}

	prompt := rag.BuildPrompt("what does transparency require?", sources, history)
	assert.Contains(t, prompt, "[1] (report.pdf) ESG audits require transparency.")
	assert.Contains(t, prompt, "[2] (report.pdf) The sky is blue.")
	assert.Contains(t, prompt, "Question: what does transparency require?")
	assert.Contains(t, prompt, "assistant: direct emissions")
	assert.NotContains(t, prompt, "old question")
	assert.NotContains(t, prompt, "{{.")
}

func TestBuildPromptNoHistory(t *testing.T) {
	rag := NewRAG()
	prompt := rag.BuildPrompt("q", nil, nil)
	assert.NotContains(t, prompt, "Conversation so far")
}

// TestRAGAnswer 测试生成回答并带上来源
func TestRAGAnswer(t *testing.T) {
	client := NewMockClient(t)
	client.On("Name").Return("groq/llama3-8b-8192")
	client.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "transparency")
	})).Return(&Response{Text: "Audits require transparency."}, nil)

	rag := NewRAG()
	sources := []SourceReference{{SourceID: "t1", Content: "ESG audits require transparency.", Score: 0.9}}
	resp, err := rag.Answer(context.Background(), client, "what does transparency require?", sources, nil)
	require.NoError(t, err)
	assert.Equal(t, "Audits require transparency.", resp.Answer)
	assert.Equal(t, "groq/llama3-8b-8192", resp.Model)
	assert.Equal(t, sources, resp.Sources)
}

func TestRAGAnswerError(t *testing.T) {
	client := NewMockClient(t)
	client.On("Generate", mock.Anything, mock.Anything).Return(nil, NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited))

	_, err := NewRAG().Answer(context.Background(), client, "q", nil, nil)
	var llmErr LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeRateLimited, llmErr.Code)

	_, err = NewRAG().Answer(context.Background(), client, " ", nil, nil)
	assert.Error(t, err)
}

// TestRAGSearch 测试通用搜索提示词
func TestRAGSearch(t *testing.T) {
	client := NewMockClient(t)
	client.On("Name").Return("groq/llama3-70b-8192")
	client.On("Generate", mock.Anything,
		"Give 3 recent search results with title and link for the query: EU taxonomy").
		Return(&Response{Text: "1. ..."}, nil)

	resp, err := NewRAG().Search(context.Background(), client, "EU taxonomy")
	require.NoError(t, err)
	assert.Equal(t, "1. ...", resp.Answer)
}
