package services

import (
	"context"
	"strings"
	"testing"

	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/fyerfyer/esg-insight/internal/repository"
	"github.com/fyerfyer/esg-insight/internal/scoring"
	"github.com/fyerfyer/esg-insight/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleReport = "Our board ensures audit and compliance while reducing carbon emissions."

// newTestReportService 使用临时目录和内存数据库创建报告服务
func newTestReportService(t *testing.T, opts ...ReportOption) (*ReportService, storage.Storage) {
	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	repo := repository.NewReportRepositoryWithDB(newTestDB(t))
	opts = append([]ReportOption{WithReportLogger(quietLogger())}, opts...)
	return NewReportService(store, repo, opts...), store
}

func TestReportScore(t *testing.T) {
	svc, _ := newTestReportService(t)

	r, err := svc.Score(context.Background(), exampleReport)
	require.NoError(t, err)
	assert.Equal(t, 40.0, r.Scores[scoring.Environmental])
	assert.Equal(t, 60.0, r.Scores[scoring.Governance])

	_, err = svc.Score(context.Background(), "bad \xff")
	assert.ErrorIs(t, err, KindInvalidInput)
}

func TestReportUploadWithoutRetrieval(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestReportService(t)

	res, err := svc.Upload(ctx, strings.NewReader(exampleReport), "acme-2024.txt", "")
	require.NoError(t, err)
	assert.Nil(t, res.Index)
	assert.Equal(t, models.ReportStatusScored, res.Report.Status)
	assert.Equal(t, 40.0, res.Report.Environmental)
	assert.Equal(t, 0.0, res.Report.Social)
	assert.Equal(t, 60.0, res.Report.Governance)
	assert.Greater(t, res.Report.TextLength, 0)

	exists, err := store.Exists(ctx, res.Report.StoragePath)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := svc.Get(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme-2024.txt", got.FileName)

	_, err = svc.Reindex(ctx, res.Report.ID, "")
	assert.ErrorIs(t, err, KindConfiguration)
}

func TestReportUploadAndIndex(t *testing.T) {
	ctx := context.Background()
	concise, detailed := newMockModels(t)
	retrieval := newTestRetrieval(t, nil, concise, detailed)
	svc, _ := newTestReportService(t, WithRetrieval(retrieval))

	res, err := svc.Upload(ctx, strings.NewReader(exampleReport), "acme.txt", "acme")
	require.NoError(t, err)
	require.NotNil(t, res.Index)
	assert.Equal(t, "acme", res.Index.IndexID)
	assert.Equal(t, models.ReportStatusIndexed, res.Report.Status)
	assert.Equal(t, "acme", res.Report.IndexID)

	matches, _, err := retrieval.Retrieve(ctx, "carbon emissions", "acme", 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "acme.txt", matches[0].Chunk.SourceID)

	info, err := svc.Reindex(ctx, res.Report.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "acme", info.IndexID)
	assert.NotEqual(t, res.Index.Version, info.Version)
}

func TestReportUploadDefaultsIndexToReportID(t *testing.T) {
	concise, detailed := newMockModels(t)
	retrieval := newTestRetrieval(t, nil, concise, detailed)
	svc, _ := newTestReportService(t, WithRetrieval(retrieval))

	res, err := svc.Upload(context.Background(), strings.NewReader(exampleReport), "acme.md", "")
	require.NoError(t, err)
	assert.Equal(t, res.Report.ID, res.Index.IndexID)
}

func TestReportUploadRejects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestReportService(t, WithMaxReportSize(16))

	_, err := svc.Upload(ctx, strings.NewReader("data"), "report.exe", "")
	assert.ErrorIs(t, err, KindInvalidInput)

	_, err = svc.Upload(ctx, strings.NewReader(exampleReport), "report.txt", "")
	assert.ErrorIs(t, err, KindInvalidInput)

	reports, total, err := svc.List(ctx, 0, 10, "")
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Equal(t, int64(0), total)
}

func TestReportDelete(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestReportService(t)

	res, err := svc.Upload(ctx, strings.NewReader(exampleReport), "acme.txt", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, res.Report.ID))
	exists, err := store.Exists(ctx, res.Report.StoragePath)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.Get(ctx, res.Report.ID)
	assert.ErrorIs(t, err, KindNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, res.Report.ID), KindNotFound)
}
