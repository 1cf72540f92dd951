package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalStorage 测试本地存储实现
func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	content := "Our board ensures audit and compliance."
	info, err := s.Save(ctx, bytes.NewBufferString(content), "Acme-2024.TXT")
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "Acme-2024.TXT", info.Name)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "text/plain", info.MimeType)
	assert.True(t, strings.HasPrefix(info.Path, "reports/"))
	assert.True(t, strings.HasSuffix(info.Path, info.ID+".txt"))

	exists, err := s.Exists(ctx, info.Path)
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := s.Open(ctx, info.Path)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	require.NoError(t, s.Delete(ctx, info.Path))
	exists, err = s.Exists(ctx, info.Path)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Open(ctx, info.Path)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, info.Path), ErrNotFound)
}

// TestLocalStorageRejectsTraversal 拒绝越出根目录的路径
func TestLocalStorageRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	_, err = s.Open(ctx, "../etc/passwd")
	assert.Error(t, err)
	_, err = s.Open(ctx, "/etc/passwd")
	assert.Error(t, err)
	_, err = s.Exists(ctx, "..")
	assert.Error(t, err)
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(Config{Type: "local", Local: LocalConfig{Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewStorage(Config{Type: "ftp"})
	assert.Error(t, err)
}

func TestGetMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", getMimeType("report.PDF"))
	assert.Equal(t, "text/markdown", getMimeType("notes.md"))
	assert.Equal(t, "application/octet-stream", getMimeType("archive.zip"))
}
