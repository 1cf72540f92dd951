package model

import (
	"mime/multipart"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 当前页的起始偏移
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// IDRequest 路径中的资源ID
type IDRequest struct {
	ID string `uri:"id" binding:"required"`
}

// ReportUploadRequest 报告上传请求
type ReportUploadRequest struct {
	File    *multipart.FileHeader `form:"file" binding:"required"`              // 报告文件
	IndexID string                `form:"index_id" binding:"omitempty,max=128"` // 索引ID，为空时使用报告ID
}

// ReportListRequest 报告列表请求
type ReportListRequest struct {
	PaginationRequest
	Status string `form:"status" binding:"omitempty,oneof=scored indexed failed"` // 按状态过滤
}

// ReindexRequest 重建索引请求
type ReindexRequest struct {
	IndexID string `json:"index_id" binding:"omitempty,max=128"`
}

// ScoreRequest 文本评分请求
type ScoreRequest struct {
	Text string `json:"text" binding:"required"`
}

// QARequest 问答请求
type QARequest struct {
	Question  string `json:"question" binding:"required,max=4000"`            // 问题内容
	IndexID   string `json:"index_id" binding:"required,max=128"`             // 在哪个索引上检索
	Mode      string `json:"mode" binding:"omitempty,oneof=concise detailed"` // 回答模式，默认 concise
	SessionID string `json:"session_id" binding:"omitempty"`                  // 可选的会话ID
}

// SearchRequest 通用搜索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required,max=1000"`
	Mode  string `json:"mode" binding:"omitempty,oneof=concise detailed"`
}

// SessionCreateRequest 创建会话请求
type SessionCreateRequest struct {
	Title   string `json:"title" binding:"omitempty,max=200"`
	IndexID string `json:"index_id" binding:"omitempty,max=128"`
}
