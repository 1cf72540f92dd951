package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/esg-insight/internal/llm"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/fyerfyer/esg-insight/internal/scoring"
	"github.com/fyerfyer/esg-insight/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// ScoreInfo ESG三项得分
type ScoreInfo struct {
	Environmental float64 `json:"environmental"`
	Social        float64 `json:"social"`
	Governance    float64 `json:"governance"`
}

// ScoreResponse 文本评分响应
type ScoreResponse struct {
	Scores   ScoreInfo                    `json:"scores"`
	Counts   map[string]int               `json:"counts"`
	Matches  map[string]map[string]int    `json:"matches"`
	Total    int                          `json:"total"`
	Coverage map[scoring.Category]float64 `json:"coverage,omitempty"`
}

// NewScoreResponse 转换评分结果
func NewScoreResponse(r scoring.Report, coverage map[scoring.Category]float64) ScoreResponse {
	resp := ScoreResponse{
		Scores: ScoreInfo{
			Environmental: r.Scores[scoring.Environmental],
			Social:        r.Scores[scoring.Social],
			Governance:    r.Scores[scoring.Governance],
		},
		Counts:   make(map[string]int, len(r.Counts)),
		Matches:  make(map[string]map[string]int, len(r.Matches)),
		Total:    r.Total,
		Coverage: coverage,
	}
	for c, n := range r.Counts {
		resp.Counts[string(c)] = n
	}
	for c, m := range r.Matches {
		resp.Matches[string(c)] = m
	}
	return resp
}

// ReportInfo 报告信息
type ReportInfo struct {
	ID         string                    `json:"id"`
	FileName   string                    `json:"filename"`
	FileType   string                    `json:"file_type"`
	FileSize   int64                     `json:"file_size"`
	TextLength int                       `json:"text_length"`
	Status     string                    `json:"status"`
	IndexID    string                    `json:"index_id,omitempty"`
	Error      string                    `json:"error,omitempty"`
	Scores     ScoreInfo                 `json:"scores"`
	Matches    map[string]map[string]int `json:"matches,omitempty"`
	UploadedAt time.Time                 `json:"uploaded_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// NewReportInfo 转换报告记录
func NewReportInfo(r *models.Report) ReportInfo {
	info := ReportInfo{
		ID:         r.ID,
		FileName:   r.FileName,
		FileType:   r.FileType,
		FileSize:   r.FileSize,
		TextLength: r.TextLength,
		Status:     string(r.Status),
		IndexID:    r.IndexID,
		Error:      r.Error,
		Scores: ScoreInfo{
			Environmental: r.Environmental,
			Social:        r.Social,
			Governance:    r.Governance,
		},
		UploadedAt: r.UploadedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.MatchedTerms) > 0 {
		_ = json.Unmarshal(r.MatchedTerms, &info.Matches)
	}
	return info
}

// ReportUploadResponse 报告上传响应
type ReportUploadResponse struct {
	Report ReportInfo          `json:"report"`
	Index  *services.IndexInfo `json:"index,omitempty"`
}

// ReportListResponse 报告列表响应
type ReportListResponse struct {
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Reports  []ReportInfo `json:"reports"`
}

// QASourceInfo 问答来源信息
type QASourceInfo struct {
	SourceID string  `json:"source_id"` // 来源文档
	Offset   int     `json:"offset"`    // 片段在原文中的字符位置
	Text     string  `json:"text"`      // 片段内容
	Score    float32 `json:"score"`     // 相似度
}

// ConvertToSourceInfo 转换引用来源
func ConvertToSourceInfo(sources []llm.SourceReference) []QASourceInfo {
	out := make([]QASourceInfo, len(sources))
	for i, s := range sources {
		out[i] = QASourceInfo{
			SourceID: s.SourceID,
			Offset:   s.Offset,
			Text:     s.Content,
			Score:    s.Score,
		}
	}
	return out
}

// QAResponse 问答响应
type QAResponse struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Mode      string         `json:"mode"`
	IndexID   string         `json:"index_id,omitempty"`
	Model     string         `json:"model,omitempty"`
	Grounded  bool           `json:"grounded"`
	Cached    bool           `json:"cached"`
	Sources   []QASourceInfo `json:"sources"`
	Trace     []string       `json:"trace,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// NewQAResponse 转换回答
func NewQAResponse(question string, a *services.Answer) QAResponse {
	trace := make([]string, len(a.Trace))
	for i, s := range a.Trace {
		trace[i] = string(s)
	}
	return QAResponse{
		Question: question,
		Answer:   a.Text,
		Mode:     string(a.Mode),
		IndexID:  a.IndexID,
		Model:    a.Model,
		Grounded: a.Grounded,
		Cached:   a.Cached,
		Sources:  ConvertToSourceInfo(a.Sources),
		Trace:    trace,
	}
}

// SessionInfo 会话信息
type SessionInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	IndexID   string    `json:"index_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionInfo 转换会话记录
func NewSessionInfo(s *models.Session) SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Title:     s.Title,
		IndexID:   s.IndexID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// SessionListResponse 会话列表响应
type SessionListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Sessions []SessionInfo `json:"sessions"`
}

// TurnInfo 会话中的一轮
type TurnInfo struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Mode      string         `json:"mode,omitempty"`
	Sources   []QASourceInfo `json:"sources,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTurnInfo 转换轮次记录
func NewTurnInfo(t *models.Turn) TurnInfo {
	info := TurnInfo{
		Role:      string(t.Role),
		Content:   t.Content,
		Mode:      t.Mode,
		CreatedAt: t.CreatedAt,
	}
	if len(t.Sources) > 0 {
		var refs []llm.SourceReference
		if err := json.Unmarshal(t.Sources, &refs); err == nil {
			info.Sources = ConvertToSourceInfo(refs)
		}
	}
	return info
}

// SessionTurnsResponse 会话轮次响应
type SessionTurnsResponse struct {
	SessionID string     `json:"session_id"`
	Turns     []TurnInfo `json:"turns"`
}

// AlertResponse ESG资讯响应
type AlertResponse struct {
	Text      string    `json:"text"`
	Model     string    `json:"model"`
	FetchedAt time.Time `json:"fetched_at"`
	Cached    bool      `json:"cached"`
}

// DeleteResponse 删除结果
type DeleteResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}
