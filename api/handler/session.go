package handler

import (
	"net/http"

	"github.com/fyerfyer/esg-insight/api/middleware"
	"github.com/fyerfyer/esg-insight/api/model"
	"github.com/fyerfyer/esg-insight/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionHandler 处理会话相关的API请求
type SessionHandler struct {
	sessions *services.SessionService
	logger   *logrus.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   middleware.GetLogger(),
	}
}

// CreateSession 创建会话
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req model.SessionCreateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleError(c, bindError("invalid session request", err))
			return
		}
	}

	session, err := h.sessions.Create(c.Request.Context(), req.Title, req.IndexID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewSessionInfo(session)))
}

// ListSessions 分页列出会话
// GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	var req model.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, bindError("invalid query parameters", err))
		return
	}

	sessions, total, err := h.sessions.List(c.Request.Context(), req.Offset(), req.GetPageSize())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.SessionListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Sessions: make([]model.SessionInfo, len(sessions)),
	}
	for i, s := range sessions {
		resp.Sessions[i] = model.NewSessionInfo(s)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetTurns 列出会话轮次
// GET /api/sessions/:id/turns
func (h *SessionHandler) GetTurns(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindError("invalid session id", err))
		return
	}

	turns, err := h.sessions.Turns(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.SessionTurnsResponse{SessionID: req.ID, Turns: make([]model.TurnInfo, len(turns))}
	for i, t := range turns {
		resp.Turns[i] = model.NewTurnInfo(t)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ClearSession 清空会话轮次
// DELETE /api/sessions/:id/turns
func (h *SessionHandler) ClearSession(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindError("invalid session id", err))
		return
	}

	if err := h.sessions.Clear(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteResponse{Success: true, ID: req.ID}))
}

// DeleteSession 删除会话
// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindError("invalid session id", err))
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteResponse{Success: true, ID: req.ID}))
}
