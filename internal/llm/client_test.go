package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.Subset(t, Providers(), []string{"gemini", "groq", "ollama", "openai"})

	_, err := NewClient("unknown")
	require.Error(t, err)
}

// TestMissingAPIKey 测试缺少密钥时返回配置错误
func TestMissingAPIKey(t *testing.T) {
	for _, name := range []string{"groq", "openai", "gemini"} {
		_, err := NewClient(name)
		assert.True(t, IsConfigError(err), name)
	}
	_, err := NewClient("ollama")
	assert.NoError(t, err)
}

func newChatServer(t *testing.T, reply string, seen *map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"llama3-8b-8192",
"choices":[{"index":0,"message":{"role":"assistant","content":` + strconvQuote(reply) + `},"finish_reason":"stop"}],
"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`))
	}))
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// TestGroqClientGenerate 测试Groq通过OpenAI协议生成
func TestGroqClientGenerate(t *testing.T) {
	var body map[string]interface{}
	server := newChatServer(t, "Scope 1 emissions fell.", &body)
	defer server.Close()

	client, err := NewClient("groq", WithAPIKey("gsk-test"), WithBaseURL(server.URL+"/openai/v1/"), WithMaxRetries(0))
	require.NoError(t, err)
	assert.Equal(t, "groq/llama3-8b-8192", client.Name())

	resp, err := client.Generate(context.Background(), "What happened to emissions?",
		WithSystemPrompt("be brief"), WithGenerateMaxTokens(64))
	require.NoError(t, err)
	assert.Equal(t, "Scope 1 emissions fell.", resp.Text)
	assert.Equal(t, 8, resp.TokenCount)

	assert.Equal(t, "llama3-8b-8192", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "user", msgs[1].(map[string]interface{})["role"])
}

// TestOpenAIClientAuthError 测试鉴权失败的错误映射
func TestOpenAIClientAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(WithAPIKey("gsk-test"), WithBaseURL(server.URL+"/v1/"), WithMaxRetries(0))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hello")
	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)
}

func TestGenerateEmptyPrompt(t *testing.T) {
	client, err := NewGroqClient(WithAPIKey("k"))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "  ")
	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
}

// TestOllamaClientChat 测试Ollama非流式对话
func TestOllamaClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, false, req["stream"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"Board meets quarterly."},"done":true,"prompt_eval_count":4,"eval_count":5}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(WithBaseURL(server.URL))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), "How often does the board meet?")
	require.NoError(t, err)
	assert.Equal(t, "Board meets quarterly.", resp.Text)
	assert.Equal(t, 9, resp.TokenCount)
}
