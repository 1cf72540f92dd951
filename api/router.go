package api

import (
	"net/http"

	"github.com/fyerfyer/esg-insight/api/handler"
	"github.com/fyerfyer/esg-insight/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Handlers 路由使用的处理器集合，为空的处理器不注册对应路由
type Handlers struct {
	Reports  *handler.ReportHandler
	QA       *handler.QAHandler
	Sessions *handler.SessionHandler
	Alerts   *handler.AlertHandler
}

// RouterConfig 路由配置
type RouterConfig struct {
	RateLimit   float64 // 每个IP每秒请求数，0表示不限流
	RateBurst   int     // 突发请求数
	MaxUploadMB int64   // multipart 内存上限
	EnableCORS  bool    // 是否允许跨域请求
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(h Handlers, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	if cfg.MaxUploadMB > 0 {
		router.MaxMultipartMemory = cfg.MaxUploadMB << 20
	}

	// 应用全局中间件，错误处理需要在限流之前注册
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	if cfg.EnableCORS {
		router.Use(Cors())
	}
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		api.Use(middleware.RateLimit(middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit), burst)))
	}

	if h.Reports != nil {
		reportGroup := api.Group("/reports")
		{
			// 上传报告 - POST /api/reports
			reportGroup.POST("", h.Reports.UploadReport)
			// 报告列表 - GET /api/reports
			reportGroup.GET("", h.Reports.ListReports)
			// 报告详情 - GET /api/reports/:id
			reportGroup.GET("/:id", h.Reports.GetReport)
			// 删除报告 - DELETE /api/reports/:id
			reportGroup.DELETE("/:id", h.Reports.DeleteReport)
			// 重建索引 - POST /api/reports/:id/reindex
			reportGroup.POST("/:id/reindex", h.Reports.ReindexReport)
		}

		// 文本评分 - POST /api/score
		api.POST("/score", h.Reports.ScoreText)
	}

	if h.QA != nil {
		// 问答 - POST /api/qa
		api.POST("/qa", h.QA.AnswerQuestion)
		// 通用搜索 - POST /api/search
		api.POST("/search", h.QA.Search)

		indexGroup := api.Group("/indexes")
		{
			indexGroup.GET("/:id", h.QA.GetIndex)
			indexGroup.DELETE("/:id", h.QA.DeleteIndex)
		}
	}

	if h.Sessions != nil {
		sessionGroup := api.Group("/sessions")
		{
			sessionGroup.POST("", h.Sessions.CreateSession)
			sessionGroup.GET("", h.Sessions.ListSessions)
			sessionGroup.DELETE("/:id", h.Sessions.DeleteSession)
			sessionGroup.GET("/:id/turns", h.Sessions.GetTurns)
			sessionGroup.DELETE("/:id/turns", h.Sessions.ClearSession)
		}
	}

	if h.Alerts != nil {
		// ESG资讯 - GET /api/alerts
		api.GET("/alerts", h.Alerts.GetAlerts)
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
