package handler

import (
	"net/http"

	"github.com/fyerfyer/esg-insight/api/middleware"
	"github.com/fyerfyer/esg-insight/api/model"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/fyerfyer/esg-insight/internal/scoring"
	"github.com/fyerfyer/esg-insight/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReportHandler 处理报告和评分相关的API请求
type ReportHandler struct {
	reports *services.ReportService // 报告服务
	logger  *logrus.Logger          // 日志记录器
}

// NewReportHandler 创建新的报告处理器
func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  middleware.GetLogger(),
	}
}

// UploadReport 上传报告，同步完成评分和索引
// POST /api/reports
func (h *ReportHandler) UploadReport(c *gin.Context) {
	var req model.ReportUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, bindError("invalid upload request", err))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			middleware.FieldError: err.Error(),
			"filename":            req.File.Filename,
		}).Error("Failed to open uploaded file")
		middleware.HandleError(c, middleware.NewInternalError("failed to open uploaded file"))
		return
	}
	defer file.Close()

	res, err := h.reports.Upload(c.Request.Context(), file, req.File.Filename, req.IndexID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ReportUploadResponse{
		Report: model.NewReportInfo(res.Report),
		Index:  res.Index,
	}))
}

// GetReport 获取报告详情
// GET /api/reports/:id
func (h *ReportHandler) GetReport(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindError("invalid report id", err))
		return
	}

	report, err := h.reports.Get(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewReportInfo(report)))
}

// ListReports 分页列出报告
// GET /api/reports
func (h *ReportHandler) ListReports(c *gin.Context) {
	var req model.ReportListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, bindError("invalid query parameters", err))
		return
	}

	reports, total, err := h.reports.List(c.Request.Context(), req.Offset(), req.GetPageSize(), models.ReportStatus(req.Status))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.ReportListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Reports:  make([]model.ReportInfo, len(reports)),
	}
	for i, r := range reports {
		resp.Reports[i] = model.NewReportInfo(r)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DeleteReport 删除报告记录和原始文件
// DELETE /api/reports/:id
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindError("invalid report id", err))
		return
	}

	if err := h.reports.Delete(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteResponse{Success: true, ID: req.ID}))
}

// ReindexReport 用存储的原始文件重建索引
// POST /api/reports/:id/reindex
func (h *ReportHandler) ReindexReport(c *gin.Context) {
	var uri model.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, bindError("invalid report id", err))
		return
	}
	var req model.ReindexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleError(c, bindError("invalid reindex request", err))
			return
		}
	}

	info, err := h.reports.Reindex(c.Request.Context(), uri.ID, req.IndexID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(info))
}

// ScoreText 对一段文本评分，不保存
// POST /api/score
func (h *ReportHandler) ScoreText(c *gin.Context) {
	var req model.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, bindError("invalid score request", err))
		return
	}

	report, err := h.reports.Score(c.Request.Context(), req.Text)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	coverage, err := scoring.Coverage(req.Text)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewScoreResponse(report, coverage)))
}
