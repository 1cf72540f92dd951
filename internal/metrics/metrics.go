package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPRequestsTotal 按路由、方法和状态码统计请求数
var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "esg_http_requests_total",
	Help: "Total number of requests labelled by route, method and status",
}, []string{"route", "method", "status"})

var httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "esg_http_request_duration_seconds",
	Help:    "HTTP request latency.",
	Buckets: []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30},
}, []string{"route"})

var answersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "esg_answers_total",
	Help: "Answers produced, labelled by mode and final state",
}, []string{"mode", "state"})

var answerCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "esg_answer_cache_total",
	Help: "Answer cache lookups labelled by result",
}, []string{"result"})

var indexBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "esg_index_builds_total",
	Help: "Index builds labelled by status",
}, []string{"status"})

var indexChunks = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "esg_index_chunks",
	Help:    "Number of chunks per built index.",
	Buckets: prometheus.ExponentialBuckets(1, 4, 8),
})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "esg_dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
}, []string{"service"})

var reportsScored = promauto.NewCounter(prometheus.CounterOpts{
	Name: "esg_reports_scored_total",
	Help: "Number of reports scored",
})

// ObserveHTTP 记录一次HTTP请求
func ObserveHTTP(route, method, status string, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// CaptureExecutionMetrics 记录外部依赖调用耗时
func CaptureExecutionMetrics(service string, elapsed time.Duration) {
	dependencyLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

// RecordAnswer 记录回答的模式和最终状态
func RecordAnswer(mode, state string) {
	answersTotal.WithLabelValues(mode, state).Inc()
}

// RecordCacheLookup 记录回答缓存命中情况
func RecordCacheLookup(hit bool) {
	if hit {
		answerCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	answerCacheTotal.WithLabelValues("miss").Inc()
}

// RecordIndexBuild 记录索引构建结果
func RecordIndexBuild(chunks int, err error) {
	if err != nil {
		indexBuilds.WithLabelValues("error").Inc()
		return
	}
	indexBuilds.WithLabelValues("ok").Inc()
	indexChunks.Observe(float64(chunks))
}

// IncReportsScored 报告评分计数
func IncReportsScored() {
	reportsScored.Inc()
}
