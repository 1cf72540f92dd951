package models

import "errors"

var (
	// ErrReportNotFound 报告不存在
	ErrReportNotFound = errors.New("report not found")

	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")

	// ErrIndexRecordNotFound 索引清单不存在
	ErrIndexRecordNotFound = errors.New("index record not found")
)
