package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/esg-insight/api"
	"github.com/fyerfyer/esg-insight/api/handler"
	"github.com/fyerfyer/esg-insight/config"
	"github.com/fyerfyer/esg-insight/internal/cache"
	"github.com/fyerfyer/esg-insight/internal/database"
	"github.com/fyerfyer/esg-insight/internal/document"
	"github.com/fyerfyer/esg-insight/internal/embedding"
	"github.com/fyerfyer/esg-insight/internal/llm"
	"github.com/fyerfyer/esg-insight/internal/repository"
	"github.com/fyerfyer/esg-insight/internal/services"
	"github.com/fyerfyer/esg-insight/internal/vectordb"
	"github.com/fyerfyer/esg-insight/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// App 按配置装配好的服务集合，HTTP服务和命令行工具共用
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Storage   storage.Storage
	Store     vectordb.Store
	Cache     cache.Cache
	Retrieval *services.RetrievalService
	Reports   *services.ReportService
	Sessions  *services.SessionService
	Alerts    *services.AlertService

	closers []io.Closer
}

// New 按配置创建所有依赖
// 缺少提供方密钥等配置问题返回 KindConfiguration 错误
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.setup(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) setup() error {
	cfg := a.Config

	if err := database.Setup(&database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}, a.Logger); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, closerFunc(database.Close))

	fileStorage, err := storage.NewStorage(storage.Config{
		Type:  cfg.Storage.Type,
		Local: storage.LocalConfig{Path: cfg.Storage.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = fileStorage

	distance, err := vectordb.ParseDistance(cfg.VectorDB.Distance)
	if err != nil {
		return configError("app.Distance", err)
	}
	store, err := vectordb.NewStore(vectordb.Config{
		Type:             cfg.VectorDB.Type,
		Path:             cfg.VectorDB.Path,
		URL:              cfg.VectorDB.URL,
		APIKey:           cfg.VectorDB.APIKey,
		CollectionPrefix: cfg.VectorDB.Prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize index store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store)

	if cfg.Cache.Enable {
		c, err := cache.NewCache(cache.Config{
			Type:            cfg.Cache.Type,
			RedisAddr:       cfg.Cache.Address,
			RedisPassword:   cfg.Cache.Password,
			RedisDB:         cfg.Cache.DB,
			Namespace:       cfg.Cache.Namespace,
			DefaultTTL:      time.Duration(cfg.Cache.TTL) * time.Second,
			CleanupInterval: 10 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		a.Cache = c
		if closer, ok := c.(io.Closer); ok {
			a.closers = append(a.closers, closer)
		}
	}

	embedder, err := newEmbedder(cfg.Embed)
	if err != nil {
		return configError("app.Embedding", err)
	}

	concise, err := newLLM(cfg.LLM, cfg.LLM.ConciseModel)
	if err != nil {
		return configError("app.ConciseModel", err)
	}
	detailed, err := newLLM(cfg.LLM, cfg.LLM.DetailedModel)
	if err != nil {
		return configError("app.DetailedModel", err)
	}
	alertModel, err := newLLM(cfg.LLM, cfg.LLM.AlertModel)
	if err != nil {
		return configError("app.AlertModel", err)
	}

	splitter, err := document.NewWindowSplitter(document.SplitterConfig{
		ChunkLength:  cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
		SnapToSpace:  true,
	})
	if err != nil {
		return configError("app.Splitter", err)
	}

	cacheTTL := time.Duration(cfg.Cache.TTL) * time.Second
	retrieval, err := services.NewRetrievalService(embedder, store, concise, detailed,
		services.WithIndexRepository(repository.NewIndexRepository()),
		services.WithAnswerCache(a.Cache, cacheTTL),
		services.WithSplitter(splitter),
		services.WithTopK(cfg.Search.TopK),
		services.WithGroundingThreshold(cfg.Search.MinScore),
		services.WithDistance(distance),
		services.WithRetrievalLogger(a.Logger),
	)
	if err != nil {
		return err
	}
	a.Retrieval = retrieval

	a.Reports = services.NewReportService(fileStorage, repository.NewReportRepository(),
		services.WithRetrieval(retrieval),
		services.WithMaxReportSize(cfg.Server.MaxUploadMB<<20),
		services.WithReportLogger(a.Logger),
	)
	a.Sessions = services.NewSessionService(repository.NewSessionRepository(), services.WithSessionLogger(a.Logger))
	a.Alerts = services.NewAlertService(alertModel, a.Cache, cfg.Alerts.TTL, a.Logger)

	a.Logger.WithFields(logrus.Fields{
		"embedding": embedder.Name(),
		"concise":   concise.Name(),
		"detailed":  detailed.Name(),
		"store":     cfg.VectorDB.Type,
		"storage":   cfg.Storage.Type,
		"cache":     cfg.Cache.Type,
	}).Info("Services initialized")
	return nil
}

// Router 创建HTTP路由
func (a *App) Router() *gin.Engine {
	return api.SetupRouter(api.Handlers{
		Reports:  handler.NewReportHandler(a.Reports),
		QA:       handler.NewQAHandler(a.Retrieval, a.Sessions),
		Sessions: handler.NewSessionHandler(a.Sessions),
		Alerts:   handler.NewAlertHandler(a.Alerts),
	}, api.RouterConfig{
		RateLimit:   a.Config.Server.RateLimit,
		RateBurst:   a.Config.Server.RateBurst,
		MaxUploadMB: a.Config.Server.MaxUploadMB,
	})
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newEmbedder 创建嵌入客户端，配置了多个工作协程时包一层并行批处理
func newEmbedder(cfg config.EmbedConfig) (embedding.Client, error) {
	opts := []embedding.Option{
		embedding.WithAPIKey(cfg.APIKey),
		embedding.WithBatchSize(cfg.BatchSize),
	}
	if cfg.Model != "" {
		opts = append(opts, embedding.WithModel(cfg.Model))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Dimensions > 0 {
		opts = append(opts, embedding.WithDimensions(cfg.Dimensions))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, embedding.WithTimeout(cfg.Timeout))
	}

	client, err := embedding.NewClient(cfg.Provider, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Workers > 1 {
		return embedding.NewBatchProcessor(client, cfg.BatchSize, cfg.Workers), nil
	}
	return client, nil
}

// newLLM 创建指定模型的大模型客户端
func newLLM(cfg config.LLMConfig, model string) (llm.Client, error) {
	opts := []llm.Option{
		llm.WithAPIKey(cfg.APIKey),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTemperature(cfg.Temperature),
	}
	if model != "" {
		opts = append(opts, llm.WithModel(model))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, llm.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, llm.WithTimeout(cfg.Timeout))
	}
	return llm.NewClient(cfg.Provider, opts...)
}

func configError(op string, err error) error {
	return &services.Error{Kind: services.KindConfiguration, Op: op, Err: err}
}

// closerFunc 把函数适配为 io.Closer
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
