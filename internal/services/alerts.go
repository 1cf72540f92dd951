package services

import (
	"context"
	"strings"
	"time"

	"github.com/fyerfyer/esg-insight/internal/cache"
	"github.com/fyerfyer/esg-insight/internal/llm"
	"github.com/fyerfyer/esg-insight/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Alert ESG资讯
type Alert struct {
	Text      string    `json:"text"`
	Model     string    `json:"model"`
	FetchedAt time.Time `json:"fetched_at"`
	Cached    bool      `json:"cached"`
}

// AlertService 查询最新ESG资讯，结果按TTL缓存
type AlertService struct {
	client llm.Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewAlertService 创建资讯服务，cache为空时不缓存
func NewAlertService(client llm.Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *AlertService {
	if logger == nil {
		logger = logrus.New()
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &AlertService{client: client, cache: c, ttl: ttl, logger: logger}
}

// Latest 返回最新资讯
func (s *AlertService) Latest(ctx context.Context) (*Alert, error) {
	const op = "alerts.Latest"
	key := cache.GenerateCacheKey(cache.PrefixAlerts, s.client.Name())

	if s.cache != nil {
		var cached Alert
		found, err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err != nil {
			s.logger.WithError(err).Warn("Alert cache lookup failed")
		}
		if found {
			cached.Cached = true
			return &cached, nil
		}
	}

	start := time.Now()
	resp, err := s.client.Generate(ctx, llm.AlertPrompt)
	metrics.CaptureExecutionMetrics("llm_alerts", time.Since(start))
	if err != nil {
		return nil, newError(KindAnswerGeneration, op, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, errorf(KindAnswerGeneration, op, "model returned empty text")
	}

	alert := &Alert{Text: strings.TrimSpace(resp.Text), Model: s.client.Name(), FetchedAt: time.Now().UTC()}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, alert, s.ttl); err != nil {
			s.logger.WithError(err).Warn("Failed to cache alerts")
		}
	}
	return alert, nil
}
