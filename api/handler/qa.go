package handler

import (
	"net/http"

	"github.com/fyerfyer/esg-insight/api/middleware"
	"github.com/fyerfyer/esg-insight/api/model"
	"github.com/fyerfyer/esg-insight/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	retrieval *services.RetrievalService // 检索问答服务
	sessions  *services.SessionService   // 会话服务，可以为空
	logger    *logrus.Logger             // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(retrieval *services.RetrievalService, sessions *services.SessionService) *QAHandler {
	return &QAHandler{
		retrieval: retrieval,
		sessions:  sessions,
		logger:    middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithField(middleware.FieldError, err.Error()).Warn("Invalid question request")
		middleware.HandleError(c, bindError("invalid question request", err))
		return
	}

	mode, err := services.ParseMode(req.Mode)
	if err != nil {
		middleware.HandleError(c, middleware.NewValidationError(err.Error()))
		return
	}

	ctx := c.Request.Context()
	var session *services.Session
	from := 0
	if req.SessionID != "" {
		if h.sessions == nil {
			middleware.HandleError(c, middleware.NewValidationError("sessions are not enabled"))
			return
		}
		session, err = h.sessions.Load(ctx, req.SessionID)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
		from = session.Len()
	}

	h.logger.WithFields(logrus.Fields{
		"index_id":              req.IndexID,
		"mode":                  mode,
		"session_id":            req.SessionID,
		middleware.FieldTraceID: middleware.GetTraceID(c),
	}).Info("Question received")

	answer, err := h.retrieval.Answer(ctx, session, req.Question, req.IndexID, mode)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	if session != nil {
		if err := h.sessions.SaveNew(ctx, session, from, mode, answer.Sources); err != nil {
			h.logger.WithFields(logrus.Fields{
				middleware.FieldError: err.Error(),
				"session_id":          req.SessionID,
			}).Error("Failed to save session turns")
		}
	}

	resp := model.NewQAResponse(req.Question, answer)
	resp.SessionID = req.SessionID
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// Search 不依赖索引的通用搜索
// POST /api/search
func (h *QAHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, bindError("invalid search request", err))
		return
	}
	mode, err := services.ParseMode(req.Mode)
	if err != nil {
		middleware.HandleError(c, middleware.NewValidationError(err.Error()))
		return
	}

	answer, err := h.retrieval.Search(c.Request.Context(), req.Query, mode)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewQAResponse(req.Query, answer)))
}

// GetIndex 查看索引清单
// GET /api/indexes/:id
func (h *QAHandler) GetIndex(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindError("invalid index id", err))
		return
	}

	info, err := h.retrieval.IndexInfo(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(info))
}

// DeleteIndex 删除索引和相关缓存
// DELETE /api/indexes/:id
func (h *QAHandler) DeleteIndex(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindError("invalid index id", err))
		return
	}

	if err := h.retrieval.DeleteIndex(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteResponse{Success: true, ID: req.ID}))
}
