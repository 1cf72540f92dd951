package handler

import (
	"net/http"

	"github.com/fyerfyer/esg-insight/api/middleware"
	"github.com/fyerfyer/esg-insight/api/model"
	"github.com/fyerfyer/esg-insight/internal/services"
	"github.com/gin-gonic/gin"
)

// AlertHandler 处理ESG资讯请求
type AlertHandler struct {
	alerts *services.AlertService
}

// NewAlertHandler 创建资讯处理器
func NewAlertHandler(alerts *services.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// GetAlerts 获取最新资讯
// GET /api/alerts
func (h *AlertHandler) GetAlerts(c *gin.Context) {
	alert, err := h.alerts.Latest(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.AlertResponse{
		Text:      alert.Text,
		Model:     alert.Model,
		FetchedAt: alert.FetchedAt,
		Cached:    alert.Cached,
	}))
}
