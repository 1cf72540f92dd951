package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// restClient 封装JSON接口调用与重试，供Cohere和HuggingFace客户端复用
type restClient struct {
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func newRESTClient(cfg *Config) *restClient {
	return &restClient{
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}
}

// post 发送JSON请求并解析响应，5xx和网络错误按指数退避重试
func (c *restClient) post(ctx context.Context, url string, reqBody interface{}, respObj interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	var (
		status int
		body   []byte
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		status, body, err = c.do(ctx, url, payload)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return NewEmbeddingError(ErrCodeTimeout, err.Error())
			}
			continue
		}
		if status < 500 {
			break
		}
	}

	if err != nil {
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
	}
	if status != http.StatusOK {
		return statusError(status, string(body))
	}
	if err := json.Unmarshal(body, respObj); err != nil {
		return NewEmbeddingError(ErrCodeBadResponse, fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}

func (c *restClient) do(ctx context.Context, url string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// checkVectors 校验返回的向量数量与维度
func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return NewEmbeddingError(ErrCodeBadResponse,
			fmt.Sprintf("expected %d vectors, got %d", want, len(vectors)))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return NewEmbeddingError(ErrCodeBadResponse, fmt.Sprintf("empty vector at index %d", i))
		}
		if len(v) != len(vectors[0]) {
			return NewEmbeddingError(ErrCodeBadResponse,
				fmt.Sprintf("inconsistent dimensions: %d vs %d", len(v), len(vectors[0])))
		}
	}
	return nil
}
