package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// FileInfo 文件元数据结构
type FileInfo struct {
	ID       string // 文件唯一标识符
	Name     string // 原始文件名
	Size     int64  // 文件大小(字节)
	MimeType string // 文件MIME类型
	Path     string // 存储内的相对路径，后续读取和删除都用它
}

// Storage 上传报告的原始文件存储
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error)

	// Open 按路径打开文件
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete 按路径删除文件
	Delete(ctx context.Context, path string) error

	// Exists 检查文件是否存在
	Exists(ctx context.Context, path string) (bool, error)
}

// Config 存储配置
type Config struct {
	Type  string // "local" 或 "minio"
	Local LocalConfig
	Minio MinioConfig
}

// NewStorage 根据配置创建存储实现
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// objectPath 按日期分目录生成对象路径
func objectPath(id, filename string, now time.Time) string {
	return fmt.Sprintf("reports/%04d/%02d/%02d/%s%s",
		now.Year(), now.Month(), now.Day(), id, strings.ToLower(filepath.Ext(filename)))
}

// cleanPath 拒绝绝对路径和上级目录
func cleanPath(p string) (string, error) {
	p = filepath.ToSlash(filepath.Clean(p))
	if p == "." || strings.HasPrefix(p, "/") || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("invalid storage path: %q", p)
	}
	return p, nil
}

// getMimeType 根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
